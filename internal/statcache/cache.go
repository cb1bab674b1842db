// Package statcache memoizes rolling-window factor statistics so overlapping
// rebalance windows don't recompute the same numbers. Values are pure
// functions of historical data up to the window end, so cached entries are
// immutable and eviction only costs recomputation, never correctness.
package statcache

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies one cached statistic: an asset's factor value over a
// window ending at a date.
type Key struct {
	Asset  string
	Factor string
	Window int
	Skip   int
	End    int64 // Unix seconds of the window end date
}

// NewKey builds a Key from a time.Time end date.
func NewKey(asset, factor string, window, skip int, end time.Time) Key {
	return Key{Asset: asset, Factor: factor, Window: window, Skip: skip, End: end.Unix()}
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type cacheEntry struct {
	key   Key
	value float64
}

// Cache is a bounded, concurrency-safe LRU cache. Concurrent misses on the
// same key may race to compute redundantly, but insertion is if-absent: the
// first computed value wins and all callers observe an identical result
// (values for a key are immutable by construction).
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*list.Element
	order    *list.List // front = most recently used
	stats    Stats
}

// New creates a Cache bounded to capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Key]*list.Element, capacity),
		order:    list.New(),
	}
}

// GetOrCompute returns the cached value for key, computing and inserting it
// on a miss. The compute function runs outside the cache lock.
func (c *Cache) GetOrCompute(key Key, compute func() float64) float64 {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.stats.Hits++
		v := el.Value.(cacheEntry).value
		c.mu.Unlock()
		return v
	}
	c.stats.Misses++
	c.mu.Unlock()

	v := compute()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent miss may have inserted the key while we computed. Keep
	// the existing entry; both computations saw identical inputs.
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(cacheEntry).value
	}

	c.entries[key] = c.order.PushFront(cacheEntry{key: key, value: v})
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(cacheEntry).key)
		c.stats.Evictions++
	}
	return v
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
