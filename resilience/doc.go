// Package resilience wraps every outbound API call in a composed envelope.
//
// The package provides three primitives and one composition:
//
//   - Limiter: token bucket with continuous refill. Acquisition blocks the
//     caller, sleeping for exactly the token deficit, instead of failing.
//
//   - Breaker: circuit breaker cycling closed -> open -> half-open. After the
//     consecutive failure threshold trips the breaker, calls fail fast until
//     the reset window elapses; then exactly one probe is admitted, and its
//     outcome drives the next state.
//
//   - FullJitter: exponential backoff delay drawn uniformly from
//     [0, min(cap, base * 2^attempt)].
//
//   - Invoker: the composition used at every call site. The breaker is
//     consulted before a token is consumed; transient failures are retried
//     with full-jitter backoff; permanent failures propagate immediately.
//
// Usage:
//
//	limiter := resilience.NewLimiter(resilience.LimiterConfig{Rate: 5})
//	breaker := resilience.NewBreaker(resilience.BreakerConfig{
//	    FailThreshold: 5,
//	    ResetTimeout:  time.Minute,
//	})
//	inv := resilience.NewInvoker(limiter, breaker, resilience.InvokerConfig{
//	    MaxRetries:  5,
//	    IsTransient: awsauth.IsTransient,
//	})
//
//	out, err := resilience.Do(ctx, inv, "ce.GetCostAndUsage", func(ctx context.Context) (*costexplorer.GetCostAndUsageOutput, error) {
//	    return client.GetCostAndUsage(ctx, input)
//	})
//
// The limiter and breaker are shared, mutable, cross-cutting state; all of
// their mutations happen inside a single critical section per primitive, so
// an Invoker is safe for concurrent use.
package resilience
