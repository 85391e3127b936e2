package linker

import (
	"sync"
	"time"

	linkerModels "stitch/internal/domain/models/linker"
)

// LookupCache is a bounded, TTL-capped cache of parent-query results. It is
// a performance optimization only: the engine is correct with a nil cache,
// and cached entries are keyed without the exclude-request-id so idempotent
// re-linking filters self-matches on read.
type LookupCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	candidates []linkerModels.ParentCandidate
	storedAt   time.Time
}

// NewLookupCache creates a cache holding at most maxEntries results, each
// valid for ttl.
func NewLookupCache(maxEntries int, ttl time.Duration) *LookupCache {
	return &LookupCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached candidates for key, or false when absent or expired.
func (c *LookupCache) Get(key string) ([]linkerModels.ParentCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.candidates, true
}

// Put stores candidates under key, evicting the oldest entry when full.
func (c *LookupCache) Put(key string, candidates []linkerModels.ParentCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{candidates: candidates, storedAt: c.now()}
}

// Len returns the current number of cached entries.
func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LookupCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
