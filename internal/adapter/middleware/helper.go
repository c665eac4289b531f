package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"consigned-credit/pkg/id"
)

func bodyHash(b []byte) string { s := sha256.Sum256(b); return hex.EncodeToString(s[:]) }

func nowUTC() time.Time { return time.Now().UTC() }

func buildKey(method, path, borrowerID, idemKey string) string {
	return "idemp:proposal:" + strings.ToLower(method) + ":" + path + ":" + borrowerID + ":" + idemKey
}

var reUUID = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[1-5][a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)

// validIdempotencyKey accepts a UUID (v1-v5) or a 32-char hex id,
// case-insensitively.
func validIdempotencyKey(k string) bool {
	k = strings.ToLower(strings.TrimSpace(k))
	return reUUID.MatchString(k) || id.Valid(k)
}

// parseRequestAt accepts epoch seconds, epoch milliseconds, or
// RFC3339/RFC3339Nano with an explicit zone. Naive timestamps are rejected.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing " + HeaderRequestAt)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New(HeaderRequestAt + " must be epoch (s/ms) or RFC3339 with timezone")
}

// idempHeaders is the validated header triple that scopes a key.
type idempHeaders struct {
	key        string
	requestAt  time.Time
	borrowerID string
}

func readHeaders(h http.Header, now time.Time) (idempHeaders, error) {
	var out idempHeaders

	out.key = strings.TrimSpace(h.Get(HeaderIdempotencyKey))
	if out.key == "" {
		return out, errors.New("missing " + HeaderIdempotencyKey)
	}
	if !validIdempotencyKey(out.key) {
		return out, errors.New("invalid " + HeaderIdempotencyKey + " format")
	}

	at, err := parseRequestAt(h.Get(HeaderRequestAt))
	if err != nil {
		return out, err
	}
	if at.Before(now.Add(-maxClockSkew)) || at.After(now.Add(maxClockSkew)) {
		return out, errors.New(HeaderRequestAt + " too skewed")
	}
	out.requestAt = at

	out.borrowerID = strings.TrimSpace(h.Get(HeaderBorrowerID))
	if out.borrowerID == "" {
		return out, errors.New("missing " + HeaderBorrowerID)
	}
	if !id.Valid(out.borrowerID) {
		return out, errors.New("invalid " + HeaderBorrowerID)
	}
	return out, nil
}

// entryStore keeps idempotency entries as JSON strings in redis.
type entryStore struct{ rdb *redis.Client }

func newEntryStore(rdb *redis.Client) entryStore { return entryStore{rdb: rdb} }

// reserve writes an in-progress marker unless the key already exists.
func (s entryStore) reserve(ctx context.Context, key string, e idempEntry) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func (s entryStore) load(ctx context.Context, key string) (idempEntry, error) {
	var e idempEntry
	v, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(v, &e)
	return e, err
}

func (s entryStore) save(ctx context.Context, key string, e idempEntry, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, payload, ttl).Err()
}

func (s entryStore) release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
