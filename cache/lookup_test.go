package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// failingCache rejects every write.
type failingCache struct {
	*MemoryCache
}

func (f *failingCache) Set(context.Context, string, any, time.Duration) error {
	return errors.New("write failed")
}

func TestLookup_ComputesOnMissAndCaches(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (string, error) {
		calls++
		return "computed", nil
	}

	for i := 0; i < 3; i++ {
		got, err := Lookup(ctx, c, "k", time.Minute, nil, compute)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if got != "computed" {
			t.Errorf("Lookup() = %q, want computed", got)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

func TestLookup_ComputeErrorPropagates(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	boom := errors.New("boom")

	_, err := Lookup(context.Background(), c, "k", time.Minute, nil, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Lookup() error = %v, want %v", err, boom)
	}
	if stats := c.Stats(); stats.Entries != 0 {
		t.Errorf("Entries = %d after failed compute, want 0", stats.Entries)
	}
}

func TestLookup_WriteFailureDoesNotFailCall(t *testing.T) {
	c := &failingCache{NewMemoryCache(MemoryConfig{})}

	got, err := Lookup(context.Background(), c, "k", time.Minute, nil, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Lookup() error = %v, want nil despite write failure", err)
	}
	if got != 7 {
		t.Errorf("Lookup() = %d, want 7", got)
	}
}

func TestLookup_TypeMismatchRecomputes(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	_ = c.Set(ctx, "k", "a string", time.Minute)

	got, err := Lookup(ctx, c, "k", time.Minute, nil, func(ctx context.Context) (int, error) {
		return 99, nil
	})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != 99 {
		t.Errorf("Lookup() = %d, want 99 (recomputed)", got)
	}
}

func TestLookup_NilCachePassesThrough(t *testing.T) {
	got, err := Lookup[int](context.Background(), nil, "k", time.Minute, nil, func(ctx context.Context) (int, error) {
		return 5, nil
	})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != 5 {
		t.Errorf("Lookup() = %d, want 5", got)
	}
}
