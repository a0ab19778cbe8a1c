package resilience

import (
	"math"
	"math/rand"
	"time"
)

// FullJitter returns a retry delay drawn uniformly from
// [0, min(cap, base * 2^attempt)]. Attempt numbering starts at zero.
func FullJitter(base time.Duration, attempt int, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	exp := float64(base) * math.Pow(2, float64(attempt))
	upper := math.Min(float64(cap), exp)
	if upper <= 0 {
		return 0
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return time.Duration(rand.Float64() * upper)
}
