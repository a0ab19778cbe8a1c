package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCheckTimeout indicates a probe did not finish within the deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates no probe is registered under the name.
	ErrCheckerNotFound = errors.New("health: checker not found")
)

// AggregatorConfig configures the probe set.
type AggregatorConfig struct {
	// Timeout bounds one CheckAll sweep. Default: 10 seconds.
	Timeout time.Duration

	// Parallel runs probes concurrently when true.
	Parallel bool
}

// Aggregator runs a named set of permission probes and folds their results
// into an overall status.
type Aggregator struct {
	config   AggregatorConfig
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string // registration order
}

// NewAggregator creates an aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	cfg := AggregatorConfig{Timeout: 10 * time.Second, Parallel: true}
	if len(config) > 0 {
		cfg = config[0]
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Second
		}
	}
	return &Aggregator{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds a probe under its name, replacing any previous registration.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := checker.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// CheckerNames returns registered probe names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs a single named probe.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, ErrCheckerNotFound
	}
	return a.runCheck(ctx, checker), nil
}

// CheckAll runs every registered probe and returns the results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := make(map[string]Checker, len(a.checkers))
	for name, checker := range a.checkers {
		checkers[name] = checker
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(checkers))
	if len(checkers) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if a.config.Parallel {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for name, checker := range checkers {
			wg.Add(1)
			go func(name string, checker Checker) {
				defer wg.Done()
				result := a.runCheck(ctx, checker)
				mu.Lock()
				results[name] = result
				mu.Unlock()
			}(name, checker)
		}
		wg.Wait()
	} else {
		for name, checker := range checkers {
			results[name] = a.runCheck(ctx, checker)
		}
	}
	return results
}

// OverallStatus folds probe results: any unhealthy probe makes the set
// unhealthy, otherwise any degraded probe makes it degraded.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func (a *Aggregator) runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
