package observe

import (
	"io"
	"log/slog"
	"os"
)

// ParseLevel parses a string log level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON structured logger writing to stderr.
func NewLogger(level string) *slog.Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON structured logger with a custom writer.
// Credential-bearing fields are redacted.
func NewLoggerWithWriter(level string, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactSensitive,
	})
	return slog.New(handler)
}

// NewDiscardLogger creates a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// redactedKeys are fields whose values must never reach the log stream.
var redactedKeys = map[string]bool{
	"password":          true,
	"secret":            true,
	"token":             true,
	"session_token":     true,
	"api_key":           true,
	"access_key_id":     true,
	"secret_access_key": true,
	"credential":        true,
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
