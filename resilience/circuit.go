package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow normally.
	StateClosed State = iota
	// StateOpen means calls fail fast until the reset window elapses.
	StateOpen
	// StateHalfOpen means a single probe call is admitted.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailThreshold int

	// ResetTimeout is how long the breaker stays open before admitting a
	// half-open probe. Default: 60 seconds
	ResetTimeout time.Duration

	// OnStateChange is called when the breaker transitions between states.
	OnStateChange func(from, to State)
}

// Breaker is a circuit breaker cycling Closed -> Open -> HalfOpen
// indefinitely. A half-open probe success fully resets the breaker; a probe
// failure re-opens it with a fresh timer.
type Breaker struct {
	config BreakerConfig

	mu        sync.Mutex
	failures  int
	openedAt  time.Time
	halfOpen  bool
	probeUsed bool
}

// NewBreaker creates a circuit breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailThreshold <= 0 {
		config.FailThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	return &Breaker{config: config}
}

// Allow reports whether a call may proceed. While open it returns false until
// the reset window elapses, then transitions to half-open and admits exactly
// one probe; further calls are rejected until the probe outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return true
	}
	if b.halfOpen {
		if b.probeUsed {
			return false
		}
		b.probeUsed = true
		return true
	}
	if time.Since(b.openedAt) >= b.config.ResetTimeout {
		b.halfOpen = true
		b.probeUsed = true
		b.notify(StateOpen, StateHalfOpen)
		return true
	}
	return false
}

// RecordSuccess resets the breaker to closed with a zero failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.stateLocked()
	b.failures = 0
	b.openedAt = time.Time{}
	b.halfOpen = false
	b.probeUsed = false
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// RecordFailure counts a failure. A half-open probe failure re-opens the
// breaker immediately with a fresh reset timer; in the closed state the
// breaker trips once the consecutive failure count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halfOpen {
		b.failures = b.config.FailThreshold
		b.openedAt = time.Now()
		b.halfOpen = false
		b.probeUsed = false
		b.notify(StateHalfOpen, StateOpen)
		return
	}
	b.failures++
	if b.failures >= b.config.FailThreshold && b.openedAt.IsZero() {
		b.openedAt = time.Now()
		b.notify(StateClosed, StateOpen)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) stateLocked() State {
	switch {
	case b.openedAt.IsZero():
		return StateClosed
	case b.halfOpen:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
