package fetch

import (
	"context"
	"sync"
	"time"
)

// Doer is the minimal fetch interface the cache wraps.
type Doer interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Cache wraps a Doer with a TTL cache keyed by exact URL string.
//
// Sharing by URL equality is intentional: missions of different types
// monitoring the same page reuse one response per cycle. Failed fetches
// are never cached. Concurrent requests for the same URL may both hit
// the network; last writer wins, which is harmless.
type Cache struct {
	doer Doer
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *Result
	expires time.Time
}

// NewCache creates a Cache. A ttl of 0 defaults to 2 minutes, enough to
// cover one evaluation cycle without serving stale content across cycles.
func NewCache(doer Doer, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{
		doer:    doer,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Fetch returns a cached response for url when fresh, otherwise delegates
// to the wrapped Doer and caches the success.
func (c *Cache) Fetch(ctx context.Context, url string) (*Result, error) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expires) {
		return e.result, nil
	}

	result, err := c.doer.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[url] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
	// Opportunistic sweep so long-running processes don't accumulate
	// entries for removed missions.
	if len(c.entries) > 1024 {
		now := time.Now()
		for k, v := range c.entries {
			if now.After(v.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.mu.Unlock()

	return result, nil
}
