// Package cache holds recently computed inference results in memory.
//
// Entries expire lazily: an expired entry stays in place, occupying a
// capacity slot, until a Get discovers it or it is evicted. When the cache
// is full, Insert first evicts the entry with the oldest creation time,
// found by scanning every shard. Reads never refresh an entry's age.
package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 16

// ErrInvalidConfig is returned by New for non-positive limits.
var ErrInvalidConfig = errors.New("invalid cache config")

// Stats reports cache performance counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

type entry struct {
	value     []float32
	createdAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for creation and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithShards sets the number of lock stripes. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// Cache is a striped, capacity-bounded TTL cache of float vectors.
type Cache struct {
	shards     []*shard
	shardCount int
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	// insertMu serializes evict-then-insert so the capacity bound holds
	// under concurrent inserts. Get never takes it.
	insertMu sync.Mutex
	count    atomic.Int64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
}

// New creates a Cache holding at most maxEntries entries for ttl each.
func New(maxEntries int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be positive, got %d", ErrInvalidConfig, maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, ttl)
	}

	c := &Cache{
		shardCount: defaultShards,
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.shards = make([]*shard, c.shardCount)
	for i := range c.shards {
		c.shards[i] = &shard{items: map[string]entry{}}
	}
	return c, nil
}

// Key derives a cache key from the model name, the input and any
// parameters that influence the result.
func Key(model, input string, params ...string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(input))
	if len(params) > 0 {
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(params, "\x00")))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (c *Cache) isExpired(e entry, now time.Time) bool {
	return now.Sub(e.createdAt) >= c.ttl
}

// Get returns a copy of the cached value when present and not expired.
// An expired entry is removed as a side effect.
func (c *Cache) Get(key string) ([]float32, bool) {
	sh := c.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	now := c.now()
	if c.isExpired(e, now) {
		sh.mu.Lock()
		// Another writer may have refreshed the key since the read.
		if cur, ok := sh.items[key]; ok && c.isExpired(cur, now) {
			delete(sh.items, key)
			c.count.Add(-1)
			c.expired.Add(1)
		}
		sh.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	out := make([]float32, len(e.value))
	copy(out, e.value)
	return out, true
}

// Insert stores value under key with the current time. When the cache is
// at capacity it first evicts the oldest entry, even if key is already
// present.
func (c *Cache) Insert(key string, value []float32) {
	stored := make([]float32, len(value))
	copy(stored, value)

	c.insertMu.Lock()
	defer c.insertMu.Unlock()

	if c.count.Load() >= int64(c.maxEntries) {
		c.evictOldest()
	}

	sh := c.shardFor(key)
	sh.mu.Lock()
	if _, exists := sh.items[key]; !exists {
		c.count.Add(1)
	}
	sh.items[key] = entry{value: stored, createdAt: c.now()}
	sh.mu.Unlock()
}

// evictOldest removes the entry with the oldest creation time. The scan
// locks one shard at a time, so it sees a snapshot per shard only.
// Callers must hold insertMu.
func (c *Cache) evictOldest() {
	var (
		oldestKey   string
		oldestShard *shard
		oldestTime  time.Time
		found       bool
	)

	for _, sh := range c.shards {
		sh.mu.RLock()
		for k, e := range sh.items {
			if !found || e.createdAt.Before(oldestTime) {
				oldestKey, oldestShard, oldestTime = k, sh, e.createdAt
				found = true
			}
		}
		sh.mu.RUnlock()
	}

	if !found {
		return
	}

	oldestShard.mu.Lock()
	if _, ok := oldestShard.items[oldestKey]; ok {
		delete(oldestShard.items, oldestKey)
		c.count.Add(-1)
		c.evictions.Add(1)
	}
	oldestShard.mu.Unlock()
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (c *Cache) PurgeExpired() int {
	now := c.now()
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if c.isExpired(e, now) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	c.count.Add(-int64(removed))
	c.expired.Add(int64(removed))
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.insertMu.Lock()
	defer c.insertMu.Unlock()

	for _, sh := range c.shards {
		sh.mu.Lock()
		n := len(sh.items)
		sh.items = map[string]entry{}
		c.count.Add(-int64(n))
		sh.mu.Unlock()
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	return int(c.count.Load())
}

// IsEmpty reports whether the cache holds no entries.
func (c *Cache) IsEmpty() bool {
	return c.Len() == 0
}

// MaxEntries returns the capacity.
func (c *Cache) MaxEntries() int { return c.maxEntries }

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Stats returns cache performance metrics.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}
