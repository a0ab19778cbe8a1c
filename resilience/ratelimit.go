package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterConfig configures the token bucket.
type LimiterConfig struct {
	// Rate is the sustained number of acquisitions allowed per second.
	// Default: 5
	Rate float64

	// Capacity is the maximum token balance. Default: Rate.
	Capacity float64
}

// Limiter is a token bucket rate limiter with continuous refill. Acquire
// blocks the caller until a token is available rather than failing.
type Limiter struct {
	rate     float64
	capacity float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewLimiter creates a rate limiter with a full bucket.
func NewLimiter(config LimiterConfig) *Limiter {
	if config.Rate <= 0 {
		config.Rate = 5
	}
	if config.Capacity <= 0 {
		config.Capacity = config.Rate
	}
	return &Limiter{
		rate:       config.Rate,
		capacity:   config.Capacity,
		tokens:     config.Capacity,
		lastRefill: time.Now(),
	}
}

// Acquire consumes one token, sleeping for exactly the refill deficit when
// the bucket is empty and re-checking after each sleep. It returns early only
// on context cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens returns the current token balance after refill.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)
	l.lastRefill = now

	l.tokens += elapsed.Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
}
