package cache

import (
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/internal/analysis"
)

// Cache memoizes completed analyses by normalized product key. Entries expire
// after a fixed TTL, and when the cache is full the oldest-inserted entry is
// evicted. A single mutex guards the whole structure; at a cap of around a
// hundred entries striping would buy nothing.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	cap     int
	entries map[string]*entry
	order   []string // insertion order, oldest first
	now     func() time.Time
}

type entry struct {
	value      analysis.Result
	insertedAt time.Time
}

// New creates a cache with the given TTL and capacity. Non-positive values
// fall back to one hour and 100 entries.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]*entry, capacity),
		now:     time.Now,
	}
}

// Get returns the cached result for key, if present and not expired. An
// expired entry is purged on the way out.
func (c *Cache) Get(key string) (analysis.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return analysis.Result{}, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.remove(key)
		return analysis.Result{}, false
	}
	return e.value, true
}

// Put inserts a result, evicting the oldest-inserted entry first when the
// cache is at capacity. Re-inserting an existing key refreshes its timestamp
// and moves it to the back of the eviction order.
func (c *Cache) Put(key string, value analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	for len(c.entries) >= c.cap && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = &entry{value: value, insertedAt: c.now()}
	c.order = append(c.order, key)
}

// Len reports the number of entries currently held, expired or not. Exposed
// for the health endpoint.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes key from both the map and the order slice.
// Caller must hold c.mu.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
