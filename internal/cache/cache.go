package cache

import (
	"sync"

	"github.com/yairfalse/pulse/internal/logger"
)

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	HitRatio  float64 `json:"hit_ratio"`
}

type entry[V any] struct {
	value    V
	touched  uint64
	inserted uint64
}

// Cache is a bounded key/value store with least-recently-used eviction.
// A read counts as a touch. Touch order uses a monotonic counter rather
// than wall-clock time so eviction order is total; insertion order
// breaks ties.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[K]*entry[V]
	clock    uint64
	seq      uint64
	stats    Stats
	log      logger.Logger
}

// New creates a cache bounded to capacity entries. Capacities below 1
// fall back to 1.
func New[K comparable, V any](capacity int, log logger.Logger) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache[K, V]{
		capacity: capacity,
		entries:  make(map[K]*entry[V]),
		log:      log,
	}
}

// Get returns the value for key, touching the entry on hit.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	c.clock++
	e.touched = c.clock
	c.stats.Hits++
	return e.value, true
}

// Set inserts or overwrites key. Inserting a new key at capacity first
// evicts the entry with the smallest touch stamp, ties broken by
// insertion order.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.touched = c.clock
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	c.seq++
	c.entries[key] = &entry[V]{
		value:    value,
		touched:  c.clock,
		inserted: c.seq,
	}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries. Hit and miss counters survive.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[V])
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.entries)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// evictOldest removes the least-recently-touched entry. Caller holds the
// lock.
func (c *Cache[K, V]) evictOldest() {
	var (
		victim K
		found  bool
		oldest *entry[V]
	)

	for key, e := range c.entries {
		if !found || e.touched < oldest.touched ||
			(e.touched == oldest.touched && e.inserted < oldest.inserted) {
			victim = key
			oldest = e
			found = true
		}
	}

	if found {
		delete(c.entries, victim)
		c.stats.Evictions++
	}
}
