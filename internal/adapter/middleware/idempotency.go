package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestAt      = "X-Request-At"
	HeaderBorrowerID     = "X-Borrower-Id"
	HeaderReplayed       = "Idempotent-Replayed"

	// in-progress marker lifetime; a crashed handler frees the key after this
	provisionalLockTTL = 60 * time.Second
	maxClockSkew       = 10 * time.Minute
	storeTimeout       = 2 * time.Second
)

type idempEntry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	Body        []byte    `json:"body"`
	BodySHA256  string    `json:"body_sha256"`
	Key         string    `json:"key"`
	RequestAtMS int64     `json:"request_at_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// replayable reports whether e holds a finished response.
func (e idempEntry) replayable() bool { return !e.InProgress && e.Code != 0 && len(e.Body) > 0 }

// teeWriter copies the response body aside while writing it through.
type teeWriter struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Idempotency makes proposal creation safe to retry. A request is keyed by
// route, X-Borrower-Id and Idempotency-Key; a repeat with the same body gets
// the stored response (422 margin rejections included), a repeat with a
// different body gets 409. 5xx responses free the key.
func Idempotency(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	store := newEntryStore(rdb)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			now := nowUTC()
			hdr, err := readHeaders(req.Header, now)
			if err != nil {
				return badRequest(c, err.Error())
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			bhash := bodyHash(body)

			key := buildKey(req.Method, c.Path(), hdr.borrowerID, strings.ToLower(hdr.key))
			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()

			ok, err := store.reserve(ctx, key, idempEntry{
				InProgress:  true,
				BodySHA256:  bhash,
				Key:         hdr.key,
				RequestAtMS: hdr.requestAt.UnixMilli(),
				CreatedAt:   now,
			})
			if err != nil {
				logger.ErrorContext(ctx, "idempotency store unavailable", "key", key, "err", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !ok {
				return replay(ctx, c, store, key, bhash, logger)
			}

			tee := &teeWriter{ResponseWriter: c.Response().Writer, code: http.StatusOK}
			c.Response().Writer = tee
			if err := next(c); err != nil {
				c.Error(err)
			}

			// the request context may already be gone
			storeCtx, storeCancel := context.WithTimeout(context.Background(), storeTimeout)
			defer storeCancel()
			if tee.code >= http.StatusInternalServerError {
				if err := store.release(storeCtx, key); err != nil {
					logger.WarnContext(storeCtx, "idempotency release failed", "key", key, "err", err)
				}
				return nil
			}
			final := idempEntry{
				Code:        tee.code,
				Body:        tee.buf.Bytes(),
				BodySHA256:  bhash,
				Key:         hdr.key,
				RequestAtMS: hdr.requestAt.UnixMilli(),
				CreatedAt:   nowUTC(),
			}
			if err := store.save(storeCtx, key, final, ttl); err != nil {
				logger.WarnContext(storeCtx, "idempotency save failed", "key", key, "err", err)
			}
			return nil
		}
	}
}

func replay(ctx context.Context, c echo.Context, store entryStore, key, bhash string, logger *slog.Logger) error {
	cur, err := store.load(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "idempotency entry load failed", "key", key, "err", err)
	}
	switch {
	case cur.BodySHA256 != "" && cur.BodySHA256 != bhash:
		return c.JSON(http.StatusConflict, map[string]string{"error": HeaderIdempotencyKey + " reused with different body"})
	case cur.replayable():
		c.Response().Header().Set(HeaderReplayed, "true")
		return c.Blob(cur.Code, echo.MIMEApplicationJSON, cur.Body)
	}
	return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
