// Package observe provides unified telemetry setup for the dashboard.
//
// It wires OpenTelemetry tracing and metrics providers behind one Observer,
// plus slog-based JSON structured logging with credential redaction.
package observe
