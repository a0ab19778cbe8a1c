package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	if err := c.Set(ctx, "cost:GetCostAndUsage:abc", 42, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := c.Get(ctx, "cost:GetCostAndUsage:abc")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if got != 42 {
		t.Errorf("Get() = %v, want 42", got)
	}
}

func TestMemoryCache_GetMiss(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})

	if _, ok := c.Get(context.Background(), "absent"); ok {
		t.Error("Get() hit on absent key, want miss")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok := c.Get(ctx, "short"); !ok {
		t.Fatal("Get() miss before expiry, want hit")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("Get() hit after expiry, want miss")
	}
	if stats := c.Stats(); stats.Entries != 0 {
		t.Errorf("Entries = %d after lazy cleanup, want 0", stats.Entries)
	}
}

func TestMemoryCache_ExpiredCleanupKeepsConcurrentSet(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	// Race an expired-entry Get against a Set of the same key. The lazy
	// cleanup must never remove the replacement entry.
	for i := 0; i < 200; i++ {
		if err := c.Set(ctx, "k", "stale", time.Nanosecond); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Get(ctx, "k")
		}()
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "k", "fresh", time.Minute)
		}()
		wg.Wait()

		got, ok := c.Get(ctx, "k")
		if !ok || got != "fresh" {
			t.Fatalf("iteration %d: Get() = %v, %v, want fresh, true", i, got, ok)
		}
	}
}

func TestMemoryCache_NonPositiveTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	if err := c.Set(ctx, "forever", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get(ctx, "forever"); !ok {
		t.Error("Get() miss for TTL=0 entry, want hit")
	}
}

func TestMemoryCache_EvictsOldestAtCapacity(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxEntries: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		// Distinct insertion times so eviction order is deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	if err := c.Set(ctx, "k3", 3, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok := c.Get(ctx, "k0"); ok {
		t.Error("oldest entry k0 survived eviction")
	}
	for _, key := range []string{"k1", "k2", "k3"} {
		if _, ok := c.Get(ctx, key); !ok {
			t.Errorf("entry %s evicted, want kept", key)
		}
	}
	if stats := c.Stats(); stats.Entries != 3 {
		t.Errorf("Entries = %d, want 3", stats.Entries)
	}
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxEntries: 2})
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, time.Minute)
	_ = c.Set(ctx, "b", 2, time.Minute)
	_ = c.Set(ctx, "a", 3, time.Minute)

	got, ok := c.Get(ctx, "a")
	if !ok || got != 3 {
		t.Errorf("Get(a) = %v, %v, want 3, true", got, ok)
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Error("entry b evicted by overwrite of a")
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		wantRemoved int
		wantLeft    int
	}{
		{"by namespace", "cost:", 2, 1},
		{"everything", "", 3, 0},
		{"no match", "nothing:", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMemoryCache(MemoryConfig{})
			ctx := context.Background()
			_ = c.Set(ctx, "cost:a", 1, time.Minute)
			_ = c.Set(ctx, "cost:b", 2, time.Minute)
			_ = c.Set(ctx, "org:c", 3, time.Minute)

			if removed := c.Invalidate(ctx, tt.prefix); removed != tt.wantRemoved {
				t.Errorf("Invalidate(%q) = %d, want %d", tt.prefix, removed, tt.wantRemoved)
			}
			if stats := c.Stats(); stats.Entries != tt.wantLeft {
				t.Errorf("Entries = %d, want %d", stats.Entries, tt.wantLeft)
			}
		})
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	_ = c.Set(ctx, "live", 1, time.Minute)
	_ = c.Set(ctx, "dead", 2, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	stats := c.Stats()
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.Valid != 1 {
		t.Errorf("Valid = %d, want 1", stats.Valid)
	}
	if stats.Max != 10 {
		t.Errorf("Max = %d, want 10", stats.Max)
	}
}

func TestMemoryCache_SetRejectsInvalidKey(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{})

	if err := c.Set(context.Background(), "  ", 1, time.Minute); err != ErrInvalidKey {
		t.Errorf("Set() error = %v, want ErrInvalidKey", err)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid", "cost:GetCostAndUsage:abc123", nil},
		{"empty", "", ErrInvalidKey},
		{"whitespace only", "   ", ErrInvalidKey},
		{"newline", "a\nb", ErrInvalidKey},
		{"carriage return", "a\rb", ErrInvalidKey},
		{"too long", string(make([]byte, MaxKeyLength+1)), ErrKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.key); err != tt.wantErr {
				t.Errorf("ValidateKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
