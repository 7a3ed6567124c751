package governor

import (
	"sync"
	"time"
)

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// responseCache holds raw successful responses keyed by endpoint and body.
// Entries are never invalidated by writes; they only expire.
type responseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(endpoint string, payload []byte) string {
	return endpoint + "\n" + string(payload)
}

func (c *responseCache) get(key string, now time.Time) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if now.Sub(entry.storedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock, a fresher entry may have landed
		if current, ok := c.entries[key]; ok && now.Sub(current.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (c *responseCache) put(key string, data []byte, now time.Time) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{data: data, storedAt: now}
}

// purge drops expired entries and returns how many were removed
func (c *responseCache) purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *responseCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
