// internal/utils/cache/cache_test.go
package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int, ttl time.Duration) (*TTL[string, int], *clock) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string, int](capacity, ttl)
	c.now = clk.now
	return c, clk
}

func TestTTL_Expiry(t *testing.T) {
	c, clk := newTestCache(4, 30*time.Second)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.advance(29 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clk.advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestTTL_EvictsOldestWhenFull(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // refresh moves a behind b
	c.Set("c", 4)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestTTL_CleanupExpired(t *testing.T) {
	c, clk := newTestCache(10, time.Second)
	c.Set("a", 1)
	clk.advance(500 * time.Millisecond)
	c.Set("b", 2)
	clk.advance(600 * time.Millisecond)

	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())
	c.Delete("b")
	assert.Equal(t, 0, c.Len())
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c := NewTTL[string, int](64, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (id*j)%100)
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
