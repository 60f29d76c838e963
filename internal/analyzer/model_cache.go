package analyzer

import (
	"sync"
	"time"
)

type cachedFit struct {
	fit      *fitted
	storedAt time.Time
}

// defaultModelCacheEntries bounds the analyzer's own model cache
const defaultModelCacheEntries = 64

// ModelCache keeps fitted models by data fingerprint so forecasts can skip refitting
type ModelCache struct {
	mu         sync.RWMutex
	entries    map[string]cachedFit
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewModelCache creates a cache whose entries expire after ttl and which holds at most
// maxEntries fits, evicting the oldest first. ttl <= 0 disables expiry; maxEntries <= 0
// removes the bound.
func NewModelCache(ttl time.Duration, maxEntries int) *ModelCache {
	return &ModelCache{entries: make(map[string]cachedFit), ttl: ttl, maxEntries: maxEntries, now: time.Now}
}

func (c *ModelCache) put(key string, f *fitted) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	if _, ok := c.entries[key]; !ok && c.maxEntries > 0 {
		for len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
	}
	c.entries[key] = cachedFit{fit: f, storedAt: c.now()}
}

func (c *ModelCache) get(key string) (*fitted, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}
	return e.fit, true
}

// Len reports the number of live entries
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if !c.expired(e) {
			n++
		}
	}
	return n
}

func (c *ModelCache) expired(e cachedFit) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}

// evictExpired must be called with the write lock held
func (c *ModelCache) evictExpired() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

// evictOldest must be called with the write lock held
func (c *ModelCache) evictOldest() {
	var oldest string
	var at time.Time
	for k, e := range c.entries {
		if oldest == "" || e.storedAt.Before(at) {
			oldest, at = k, e.storedAt
		}
	}
	delete(c.entries, oldest)
}
