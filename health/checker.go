package health

import (
	"context"
	"time"
)

// Status is the outcome level of a permission probe.
type Status int

const (
	// StatusHealthy means the capability is available.
	StatusHealthy Status = iota
	// StatusDegraded means an optional capability is unavailable.
	StatusDegraded
	// StatusUnhealthy means a required capability is unavailable.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of one probe.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result carrying the failure.
func Degraded(message string, err error) Result {
	return Result{Status: StatusDegraded, Message: message, Error: err, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result carrying the failure.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is one named permission probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
