package cache

import (
	"sync"
	"time"

	"BusScope/pkg/clock"
)

type entry struct {
	v      any
	exp    time.Time
	access time.Time
}

// TTLCache is an in-process cache with per entry expiry. When MaxEntries is
// reached the least recently read entry is evicted.
type TTLCache struct {
	mu         sync.RWMutex
	m          map[string]*entry
	clock      clock.Clock
	maxEntries int
}

type TTLOption func(*TTLCache)

func WithClock(c clock.Clock) TTLOption { return func(t *TTLCache) { t.clock = c } }

// WithMaxEntries bounds the cache size; n <= 0 means unbounded.
func WithMaxEntries(n int) TTLOption { return func(t *TTLCache) { t.maxEntries = n } }

func NewTTLCache(opts ...TTLOption) *TTLCache {
	c := &TTLCache{m: make(map[string]*entry), clock: clock.Real{}, maxEntries: 1024}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTLCache) Get(key string) (any, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && now.After(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	e.access = now
	return e.v, true
}

func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	now := c.clock.Now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && c.maxEntries > 0 && len(c.m) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.m[key] = &entry{v: v, exp: exp, access: now}
}

func (c *TTLCache) Delete(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
}

// Sweep drops expired entries and returns how many were removed.
func (c *TTLCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// evictLocked removes an expired entry if there is one, else the least recently used.
func (c *TTLCache) evictLocked(now time.Time) {
	var oldest string
	var oldestAt time.Time
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			return
		}
		if oldest == "" || e.access.Before(oldestAt) {
			oldest, oldestAt = k, e.access
		}
	}
	if oldest != "" {
		delete(c.m, oldest)
	}
}

// Implement BytesCache
func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		if b, ok2 := v.([]byte); ok2 {
			return b, true, nil
		}
	}
	return nil, false, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
