// Package alert dispatches structured cost-anomaly notifications.
//
// A Dispatcher fans one capped Event out to its sinks. Sink failures are
// logged and swallowed; alerting is best-effort and never fails detection.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/anomaly"
)

// MaxItems caps the number of anomalies carried in one event.
const MaxItems = 10

// Event is one structured alert notification.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Count     int               `json:"anomaly_count"`
	Anomalies []anomaly.Flagged `json:"anomalies"`
	Context   map[string]any    `json:"context,omitempty"`
}

// Sink delivers an event to one destination.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: delivery failures return an error; they must not panic.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Name() string
}

// Dispatcher fans events out to a fixed set of sinks built at startup.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With("component", "alert"),
		now:    time.Now,
	}
}

// DispatchAnomalies publishes a cost-anomaly event carrying at most MaxItems
// anomalies. Nothing is dispatched for an empty list. Sink failures are
// logged, never returned.
func (d *Dispatcher) DispatchAnomalies(ctx context.Context, anomalies []anomaly.Flagged, eventContext map[string]any) {
	if len(anomalies) == 0 {
		return
	}

	capped := anomalies
	if len(capped) > MaxItems {
		capped = capped[:MaxItems]
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      "cost_anomaly",
		Timestamp: d.now().UTC(),
		Count:     len(anomalies),
		Anomalies: capped,
		Context:   eventContext,
	}

	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			d.logger.Error("alert delivery failed",
				"sink", sink.Name(), "event_id", event.ID, "error", err)
		}
	}
}
