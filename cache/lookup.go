package cache

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/lewisbuilds/AWS-FinOps-Dashboard/cache")

	hitCounter, _ = meter.Int64Counter("cache.hits",
		metric.WithDescription("Lookups served from cache"))
	missCounter, _ = meter.Int64Counter("cache.misses",
		metric.WithDescription("Lookups that fell through to compute"))
)

// Lookup returns the cached value under key if present, otherwise calls
// compute, stores the result, and returns it. A cache write failure is
// logged and dropped; it never fails the computed result. A cached value
// of the wrong type is treated as a miss and recomputed.
func Lookup[T any](ctx context.Context, c Cache, key string, ttl time.Duration, logger *slog.Logger, compute func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if c != nil {
		if raw, ok := c.Get(ctx, key); ok {
			if value, ok := raw.(T); ok {
				hitCounter.Add(ctx, 1)
				return value, nil
			}
			logger.Warn("cached value has unexpected type, recomputing", "key", key)
		}
	}
	missCounter.Add(ctx, 1)

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if c != nil {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}
