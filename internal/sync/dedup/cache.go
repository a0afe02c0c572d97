// Package dedup tracks recently seen event ids so a listener can treat a
// redelivered message as a silent no-op. The cache is process-local and
// memory-bounded: it is lost on restart and evicts in bulk under pressure,
// so handlers still need their own idempotent local key checks.
package dedup

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds the cache when no explicit limit is configured.
const DefaultMaxEntries = 10000

// evictFraction of the oldest entries is dropped when the cache is full.
const evictFraction = 0.2

// Cache is a bounded first-seen set of event ids. Safe for concurrent use,
// though the bus dispatches serially from a single listener.
type Cache struct {
	mu    sync.Mutex
	max   int
	seen  map[string]time.Time
	order []string
}

// New builds a cache holding at most max ids. Non-positive max falls back
// to DefaultMaxEntries.
func New(max int) *Cache {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Cache{
		max:  max,
		seen: make(map[string]time.Time, max),
	}
}

// Seen reports whether the event id has been recorded and not yet evicted.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// Add records an event id with the current time as its first-seen stamp.
// Inserting beyond the configured maximum first evicts the oldest 20% of
// entries by first-seen order. Re-adding a known id refreshes nothing.
func (c *Cache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return
	}
	if len(c.order) >= c.max {
		c.evictLocked()
	}
	c.seen[id] = time.Now()
	c.order = append(c.order, id)
}

// FirstSeen returns when the id was first recorded, if it still is.
func (c *Cache) FirstSeen(id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.seen[id]
	return ts, ok
}

// Len returns the number of ids currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// evictLocked drops the oldest floor(max*0.2) entries, minimum one so a
// full cache always makes room. Must be called while holding c.mu.
func (c *Cache) evictLocked() {
	n := int(float64(c.max) * evictFraction)
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, id := range c.order[:n] {
		delete(c.seen, id)
	}
	c.order = c.order[n:]
}
