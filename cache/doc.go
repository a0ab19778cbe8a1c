// Package cache provides TTL caching for expensive AWS API results.
//
// It provides a Cache interface with a bounded in-memory implementation,
// SHA-256-based key derivation from operation arguments, prefix
// invalidation, and a lookup-or-compute wrapper whose cache write failures
// never surface to callers.
package cache
