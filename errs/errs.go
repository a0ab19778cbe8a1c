// Package errs defines the typed error taxonomy shared by all components.
//
// Every user-visible failure carries a stable kind string plus a context map
// of key/value diagnostic detail, so callers can branch on kind and log
// structured context without parsing messages.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Stable error kinds.
const (
	// KindConfiguration marks invalid settings caught at startup validation.
	KindConfiguration = "configuration"

	// KindAuth marks missing or rejected credentials. Errors of this kind
	// carry remediation guidance in their context under "remediation".
	KindAuth = "auth"

	// KindAuthorization marks authenticated-but-denied responses.
	KindAuthorization = "authorization"

	// KindRateLimit marks an open circuit breaker or exhausted retries on
	// throttling-class failures.
	KindRateLimit = "rate_limit"

	// KindDataRetrieval marks non-auth, non-throttling failures from a
	// billing, compliance, or recommendation call.
	KindDataRetrieval = "data_retrieval"
)

// Error is a typed error with a stable kind and diagnostic context.
type Error struct {
	Kind    string
	Message string
	Context map[string]any
	Err     error
}

// New creates an Error of the given kind. Trailing arguments are interpreted
// as alternating context keys and values; a dangling key is ignored.
func New(kind, message string, kv ...any) *Error {
	return &Error{Kind: kind, Message: message, Context: contextFrom(kv)}
}

// Wrap creates an Error of the given kind wrapping a cause.
func Wrap(err error, kind, message string, kv ...any) *Error {
	return &Error{Kind: kind, Message: message, Context: contextFrom(kv), Err: err}
}

func contextFrom(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	ctx := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx[key] = kv[i+1]
	}
	return ctx
}

// Error renders "kind: message [k=v ...]: cause".
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of the error with an extra context entry.
func (e *Error) With(key string, value any) *Error {
	clone := *e
	clone.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// KindOf returns the kind of err, or "" when err carries no kind.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
