package validator

import (
	"sync"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// cacheEntry is a validation result with an expiry. An entry is readable
// only while now < expiresAt; expired entries are purged on lookup.
type cacheEntry struct {
	result    domain.ValidationResult
	expiresAt time.Time
}

// resultCache maps a stream URL (exact string, not normalized) to its most
// recent validation result. Concurrent puts for the same URL are
// last-write-wins; there is no cross-URL ordering requirement.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResultCache() *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get returns the cached result for url, evicting it first if expired.
func (c *resultCache) get(url string) (domain.ValidationResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok {
		return domain.ValidationResult{}, false
	}

	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent put may have
		// refreshed the entry.
		if cur, ok := c.entries[url]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, url)
		}
		c.mu.Unlock()
		return domain.ValidationResult{}, false
	}

	return entry.result, true
}

// put stores a result, choosing the TTL by outcome: successTTL for valid
// results, the fixed short failureTTL otherwise.
func (c *resultCache) put(result domain.ValidationResult, successTTL time.Duration) {
	ttl := successTTL
	if !result.IsValid {
		ttl = failureTTL
	}

	c.mu.Lock()
	c.entries[result.URL] = cacheEntry{
		result:    result,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

func (c *resultCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *resultCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
