// internal/utils/cache/cache.go
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTL is a bounded map whose entries expire after a fixed duration. When full,
// the oldest inserted entry is evicted.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[K]*list.Element
	now      func() time.Time

	// Statistics (accessed atomically)
	hits   uint64
	misses uint64
}

// NewTTL creates a cache holding at most capacity entries for ttl each.
func NewTTL[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &TTL[K, V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(el)
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}
	atomic.AddUint64(&c.hits, 1)
	return e.value, true
}

// Set stores value under key, replacing and refreshing any existing entry.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.capacity {
		c.removeLocked(c.order.Front())
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of stored entries, expired ones included until touched.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanupExpired drops every expired entry and returns how many were removed.
func (c *TTL[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry[K, V]).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns hit and miss counters.
func (c *TTL[K, V]) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

func (c *TTL[K, V]) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
