package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"consigned-credit/internal/domain/loan"
)

const DefaultSimulationTTL = time.Hour

// Store is the byte-level backend behind SimulationCache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// SimulationCache memoizes simulations per exact input tuple. Concurrent
// callers for the same key share one computation. Errors are never stored.
type SimulationCache struct {
	store Store
	ttl   time.Duration
	group singleflight.Group
	log   *slog.Logger
}

func NewSimulationCache(store Store, ttl time.Duration, log *slog.Logger) *SimulationCache {
	if ttl <= 0 {
		ttl = DefaultSimulationTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &SimulationCache{store: store, ttl: ttl, log: log}
}

func (c *SimulationCache) TTL() time.Duration { return c.ttl }

type flightResult struct {
	sim loan.LoanSimulation
	hit bool
}

// GetOrCompute returns the cached simulation for key or runs compute once
// for all concurrent callers. hit reports whether the value came from the store.
func (c *SimulationCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (loan.LoanSimulation, error),
) (loan.LoanSimulation, bool, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		if sim, ok := c.load(ctx, key); ok {
			return flightResult{sim: sim, hit: true}, nil
		}
		sim, err := compute()
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, sim)
		return flightResult{sim: sim}, nil
	})
	if err != nil {
		return loan.LoanSimulation{}, false, err
	}
	res := v.(flightResult)
	return res.sim, res.hit, nil
}

// Store failures degrade to recomputation.
func (c *SimulationCache) load(ctx context.Context, key string) (loan.LoanSimulation, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("simulation cache read failed", "key", key, "err", err)
		return loan.LoanSimulation{}, false
	}
	if !ok {
		return loan.LoanSimulation{}, false
	}
	var sim loan.LoanSimulation
	if err := json.Unmarshal(raw, &sim); err != nil {
		c.log.Warn("simulation cache entry corrupt", "key", key, "err", err)
		return loan.LoanSimulation{}, false
	}
	return sim, true
}

func (c *SimulationCache) save(ctx context.Context, key string, sim loan.LoanSimulation) {
	raw, err := json.Marshal(sim)
	if err != nil {
		c.log.Warn("simulation cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("simulation cache write failed", "key", key, "err", err)
	}
}

// Key hashes the ordered input tuple into a fixed-size cache key.
func Key(flow loan.Flow, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return strings.ToLower(string(flow)) + ":" + hex.EncodeToString(h[:])
}

// MemoryStore is an in-process Store, used when redis is disabled.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memEntry
	now   func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memEntry{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	// opportunistic sweep keeps the map bounded by live entries
	for k, e := range m.items {
		if !now.Before(e.expires) {
			delete(m.items, k)
		}
	}
	m.items[key] = memEntry{val: append([]byte(nil), val...), expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
