package llm

import (
	"sync"
	"time"
)

// cacheEntry is a cached category prediction.
type cacheEntry struct {
	expiry   time.Time
	category string
}

// categoryCache provides thread-safe TTL caching of category predictions.
type categoryCache struct {
	entries   map[string]cacheEntry
	stopCh    chan struct{}
	now       func() time.Time
	ttl       time.Duration
	mu        sync.RWMutex
	closeOnce sync.Once
}

// newCategoryCache creates a new cache with the specified TTL.
func newCategoryCache(ttl time.Duration) *categoryCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &categoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a category if it exists and hasn't expired.
func (c *categoryCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.expiry) {
		return "", false
	}

	return entry.category, true
}

// set stores a category.
func (c *categoryCache) set(key, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		category: category,
		expiry:   c.now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *categoryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *categoryCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

// size returns the number of entries in the cache.
func (c *categoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *categoryCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}
