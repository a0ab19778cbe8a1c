package resilience

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(LimiterConfig{})

	if l.rate != 5 {
		t.Errorf("rate = %v, want 5", l.rate)
	}
	if l.capacity != 5 {
		t.Errorf("capacity = %v, want rate", l.capacity)
	}
	if l.Tokens() > l.capacity {
		t.Errorf("Tokens() = %v, exceeds capacity %v", l.Tokens(), l.capacity)
	}
}

func TestLimiter_BurstWithinCapacity(t *testing.T) {
	l := NewLimiter(LimiterConfig{Rate: 100, Capacity: 3})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of capacity took %v, want near-instant", elapsed)
	}
}

func TestLimiter_ThroughputBound(t *testing.T) {
	// With rate R and N > R sequential acquisitions, elapsed >= (N-R)/R.
	rate := 50.0
	n := 60
	l := NewLimiter(LimiterConfig{Rate: rate})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	minimum := time.Duration(float64(n-int(rate)) / rate * float64(time.Second))
	if elapsed < minimum {
		t.Errorf("N=%d acquisitions at rate %v took %v, want >= %v", n, rate, elapsed, minimum)
	}
}

func TestLimiter_TokensNeverExceedCapacity(t *testing.T) {
	l := NewLimiter(LimiterConfig{Rate: 1000, Capacity: 2})

	time.Sleep(20 * time.Millisecond)
	if tokens := l.Tokens(); tokens < 0 || tokens > 2 {
		t.Errorf("Tokens() = %v, want within [0, 2]", tokens)
	}
}

func TestLimiter_AcquireHonorsCancellation(t *testing.T) {
	l := NewLimiter(LimiterConfig{Rate: 0.5, Capacity: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	err := l.Acquire(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}
