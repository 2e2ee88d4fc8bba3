package tools

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	value   []string
	expires time.Time
}

// resultCache memoizes lookups per key for a TTL and collapses concurrent
// misses for the same key into one load. A TTL <= 0 disables caching but
// still collapses concurrent loads. Expired entries are swept at most once
// per TTL, on the next store.
type resultCache struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]cacheEntry
	lastSweep time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// get returns the cached value for key or loads it. The load is shared by
// every waiter, so it runs detached from any one caller's cancellation; a
// cancelled caller stops waiting without failing the others.
func (c *resultCache) get(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		e, ok := c.entries[key]
		c.mu.Unlock()
		if ok && c.now().Before(e.expires) {
			return e.value, nil
		}
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.store(key, value)
		}
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *resultCache) store(key string, value []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.ttl {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
		c.lastSweep = now
	}
	c.entries[key] = cacheEntry{value: value, expires: now.Add(c.ttl)}
}

func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
