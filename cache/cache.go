package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	// Entries is the number of stored entries, expired or not.
	Entries int
	// Valid is the number of entries that have not expired.
	Valid int
	// Max is the configured capacity.
	Max int
}

// Cache is the interface for caching API call results.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get should never error; it returns (nil, false) on miss.
// - Expiry: a non-positive TTL means the entry never expires.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss or expiry.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value with the given TTL. TTL <= 0 means never expires.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate removes every entry whose key starts with prefix and
	// returns the number removed. An empty prefix clears the cache.
	Invalidate(ctx context.Context, prefix string) int

	// Stats reports current occupancy.
	Stats() Stats
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
