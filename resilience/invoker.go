package resilience

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
)

var (
	tracer = otel.Tracer("github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience")
	meter  = otel.Meter("github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience")

	retryCounter, _ = meter.Int64Counter("resilience.retries",
		metric.WithDescription("Transient failures retried"))
)

// InvokerConfig configures the composed envelope.
type InvokerConfig struct {
	// MaxRetries is the number of retries after the initial attempt for
	// transient failures. Default: 5
	MaxRetries int

	// BackoffBase is the base of the full-jitter exponential backoff.
	// Default: 300ms
	BackoffBase time.Duration

	// BackoffMax caps the backoff upper bound. Default: 8s
	BackoffMax time.Duration

	// IsTransient classifies an error as retryable. Default: nothing is
	// transient, every failure propagates immediately.
	IsTransient func(error) bool

	// Logger receives retry and fail-fast events. Default: slog.Default()
	Logger *slog.Logger

	// OnRetry is called before each backoff sleep.
	OnRetry func(operation string, attempt int, err error, delay time.Duration)
}

// Invoker wraps a logical outbound call with the shared rate limiter,
// circuit breaker, and a full-jitter retry loop. Every outbound API call in
// the process goes through one Invoke.
type Invoker struct {
	limiter *Limiter
	breaker *Breaker
	config  InvokerConfig
}

// NewInvoker creates an invoker sharing the given limiter and breaker.
func NewInvoker(limiter *Limiter, breaker *Breaker, config InvokerConfig) *Invoker {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 300 * time.Millisecond
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 8 * time.Second
	}
	if config.IsTransient == nil {
		config.IsTransient = func(error) bool { return false }
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Invoker{limiter: limiter, breaker: breaker, config: config}
}

// Breaker returns the shared circuit breaker.
func (inv *Invoker) Breaker() *Breaker {
	return inv.breaker
}

// Invoke runs fn under the envelope:
//
//  1. If the breaker rejects the call, fail fast with a rate_limit error
//     without consuming a token.
//  2. Acquire one rate limiter token (blocking).
//  3. Execute fn. Success records breaker success and returns.
//  4. Permanent failures record breaker failure and propagate immediately.
//     Transient failures retry with full-jitter backoff until MaxRetries is
//     exhausted, then record breaker failure and propagate the last error.
//
// The breaker is consulted once per logical call, not once per attempt.
// Every admitted call records exactly one breaker outcome, so a half-open
// trial always reaches a verdict even when it is retried or cancelled.
func (inv *Invoker) Invoke(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "invoke")
	span.SetAttributes(attribute.String("operation", operation))
	defer span.End()

	if !inv.breaker.Allow() {
		state := inv.breaker.State().String()
		failures := inv.breaker.Failures()
		inv.config.Logger.Warn("circuit breaker open, failing fast",
			"operation", operation, "state", state, "failures", failures)
		err := errs.Wrap(ErrCircuitOpen, errs.KindRateLimit, "circuit breaker open",
			"operation", operation, "state", state, "failures", failures)
		span.SetStatus(codes.Error, "circuit open")
		return err
	}

	attempt := 0
	for {
		if err := inv.limiter.Acquire(ctx); err != nil {
			inv.breaker.RecordFailure()
			span.SetStatus(codes.Error, "limiter acquire failed")
			return err
		}

		err := fn(ctx)
		if err == nil {
			inv.breaker.RecordSuccess()
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return nil
		}

		if !inv.config.IsTransient(err) || attempt >= inv.config.MaxRetries {
			inv.breaker.RecordFailure()
			span.RecordError(err)
			span.SetStatus(codes.Error, "invoke failed")
			return err
		}

		delay := FullJitter(inv.config.BackoffBase, attempt, inv.config.BackoffMax)
		retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
		inv.config.Logger.Info("retrying transient failure",
			"operation", operation, "attempt", attempt+1, "delay", delay, "error", err)
		if inv.config.OnRetry != nil {
			inv.config.OnRetry(operation, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			inv.breaker.RecordFailure()
			return ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

// Do runs a result-returning call through the invoker.
func Do[T any](ctx context.Context, inv *Invoker, operation string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := inv.Invoke(ctx, operation, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
