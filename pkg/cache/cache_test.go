package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, maxEntries int, ttl time.Duration, clk *fakeClock) *Cache {
	t.Helper()
	c, err := New(maxEntries, ttl, WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRejectsInvalidLimits(t *testing.T) {
	if _, err := New(0, time.Minute); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero capacity, got %v", err)
	}
	if _, err := New(10, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero ttl, got %v", err)
	}
}

func TestKey(t *testing.T) {
	k1 := Key("bert", "hello")
	k2 := Key("bert", "hello")
	k3 := Key("roberta", "hello")
	k4 := Key("bert", "hello", "max_length=128")

	if k1 != k2 {
		t.Error("same input should produce same key")
	}
	if k1 == k3 {
		t.Error("different model should produce different key")
	}
	if k1 == k4 {
		t.Error("different params should produce different key")
	}
}

func TestInsertAndGet(t *testing.T) {
	c := newTestCache(t, 10, time.Hour, newFakeClock())

	c.Insert("k", []float32{1, 2, 3})
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("unexpected value: %v", got)
	}

	got[0] = 99
	again, _ := c.Get("k")
	if again[0] != 1 {
		t.Error("returned slice must not alias cached data")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestTTLExpiration(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, 10, time.Minute, clk)

	c.Insert("k", []float32{1})

	clk.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before ttl elapsed")
	}

	clk.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss once ttl elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed, got %d entries", c.Len())
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss until re-inserted")
	}

	c.Insert("k", []float32{2})
	if v, ok := c.Get("k"); !ok || v[0] != 2 {
		t.Errorf("expected fresh value after re-insert, got %v (%v)", v, ok)
	}
}

func TestExpiredEntryHoldsSlotUntilTouched(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, 10, time.Minute, clk)

	c.Insert("k", []float32{1})
	clk.Advance(2 * time.Minute)

	if c.Len() != 1 {
		t.Errorf("expected lazy expiry to keep the entry, got %d", c.Len())
	}
	if n := c.PurgeExpired(); n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
	if !c.IsEmpty() {
		t.Error("expected empty cache after purge")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, 5, time.Hour, clk)

	for i := range 50 {
		clk.Advance(time.Millisecond)
		c.Insert(fmt.Sprintf("k%d", i), []float32{float32(i)})
		if c.Len() > 5 {
			t.Fatalf("cache holds %d entries after insert %d", c.Len(), i)
		}
	}
	if c.Len() != 5 {
		t.Errorf("expected 5 entries, got %d", c.Len())
	}
	if got := c.Stats().Evictions; got != 45 {
		t.Errorf("expected 45 evictions, got %d", got)
	}
}

func TestEvictsOldestByInsertion(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, 3, time.Hour, clk)

	c.Insert("a", []float32{1})
	clk.Advance(time.Second)
	c.Insert("b", []float32{2})
	clk.Advance(time.Second)
	c.Insert("c", []float32{3})
	clk.Advance(time.Second)

	// Reading "a" does not refresh its age.
	for range 5 {
		c.Get("a")
	}

	c.Insert("d", []float32{4})

	if _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry a to be evicted despite reads")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to remain", k)
		}
	}
}

func TestRefreshAtCapacityEvictsUnrelatedEntry(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, 2, time.Hour, clk)

	c.Insert("a", []float32{1})
	clk.Advance(time.Second)
	c.Insert("b", []float32{2})
	clk.Advance(time.Second)

	c.Insert("b", []float32{3})

	if _, ok := c.Get("a"); ok {
		t.Error("refreshing b at capacity should still evict a")
	}
	if v, ok := c.Get("b"); !ok || v[0] != 3 {
		t.Errorf("expected refreshed b, got %v (%v)", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 10, time.Hour, newFakeClock())

	c.Insert("h1", []float32{1})
	c.Insert("h2", []float32{2})
	c.Clear()

	if !c.IsEmpty() {
		t.Errorf("expected 0 entries after clear, got %d", c.Len())
	}
	if _, ok := c.Get("h1"); ok {
		t.Error("expected miss after clear")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, 10, time.Hour, newFakeClock())

	c.Insert("h1", []float32{1})
	c.Get("h1") // hit
	c.Get("h2") // miss

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestConcurrentInsertsRespectCapacity(t *testing.T) {
	c, err := New(20, time.Hour, WithShards(4))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("g%d-k%d", g, i)
				c.Insert(key, []float32{float32(i)})
				c.Get(key)
				if n := c.Len(); n > 20 {
					t.Errorf("cache holds %d entries", n)
					return
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() != 20 {
		t.Errorf("expected full cache of 20, got %d", c.Len())
	}
}
