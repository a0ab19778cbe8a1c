package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-memory TTL cache bounded by entry count.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	max     int
}

type cacheEntry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time // zero means never expires
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// MaxEntries bounds the cache. When full, the oldest entry by
	// insertion time is evicted to make room. Default: 1000
	MaxEntries int
}

// NewMemoryCache creates an in-memory cache with the given config.
func NewMemoryCache(config MemoryConfig) *MemoryCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		max:     config.MaxEntries,
	}
}

// Get retrieves a value. Returns (nil, false) on miss or expiry; expired
// entries are cleaned up lazily.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if entry.expired(time.Now()) {
		// Only drop the entry we observed expire; a concurrent Set may
		// have replaced it between the two lock acquisitions.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Set stores a value, evicting the oldest entry first if the cache is at
// capacity. TTL <= 0 means the entry never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := time.Now()
	entry := &cacheEntry{value: value, createdAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = entry
	return nil
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Linear scan; the cache is bounded at a few thousand entries.
func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Invalidate removes every entry whose key starts with prefix and returns
// the number removed.
func (c *MemoryCache) Invalidate(_ context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports current occupancy.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	valid := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			valid++
		}
	}
	return Stats{Entries: len(c.entries), Valid: valid, Max: c.max}
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
