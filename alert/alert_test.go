package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/anomaly"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/observe"
)

// captureSink records published events.
type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func flaggedPoints(n int) []anomaly.Flagged {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	out := make([]anomaly.Flagged, n)
	for i := range out {
		out[i] = anomaly.Flagged{
			Point:   anomaly.Point{Date: base.AddDate(0, 0, i), Value: float64(100 + i)},
			Methods: []string{anomaly.MethodZScore},
		}
	}
	return out
}

func TestDispatcher_CapsAtMaxItems(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(observe.NewDiscardLogger(), sink)

	d.DispatchAnomalies(context.Background(), flaggedPoints(25), map[string]any{"history_days": 60})

	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.events))
	}
	event := sink.events[0]
	if len(event.Anomalies) != MaxItems {
		t.Errorf("event carries %d anomalies, want cap %d", len(event.Anomalies), MaxItems)
	}
	if event.Count != 25 {
		t.Errorf("Count = %d, want full count 25", event.Count)
	}
	if event.ID == "" {
		t.Error("event ID empty")
	}
	if event.Type != "cost_anomaly" {
		t.Errorf("Type = %q, want cost_anomaly", event.Type)
	}
}

func TestDispatcher_EmptyListDispatchesNothing(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(observe.NewDiscardLogger(), sink)

	d.DispatchAnomalies(context.Background(), nil, nil)

	if len(sink.events) != 0 {
		t.Errorf("got %d events for empty anomaly list, want 0", len(sink.events))
	}
}

func TestDispatcher_SinkFailureDoesNotPanicOrStop(t *testing.T) {
	failing := &captureSink{err: errors.New("delivery failed")}
	working := &captureSink{}
	d := NewDispatcher(observe.NewDiscardLogger(), failing, working)

	d.DispatchAnomalies(context.Background(), flaggedPoints(1), nil)

	if len(working.events) != 1 {
		t.Errorf("working sink got %d events, want 1 despite earlier sink failure", len(working.events))
	}
}

// fakeSNS records publish inputs.
type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSSink_PublishesJSON(t *testing.T) {
	client := &fakeSNS{}
	sink := SNSSink{Client: client, TopicARN: "arn:aws:sns:us-east-1:111111111111:finops-alerts"}

	err := sink.Publish(context.Background(), Event{
		ID:        "e-1",
		Type:      "cost_anomaly",
		Count:     2,
		Anomalies: flaggedPoints(2),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("got %d publishes, want 1", len(client.inputs))
	}
	input := client.inputs[0]
	if aws.ToString(input.TopicArn) != sink.TopicARN {
		t.Errorf("TopicArn = %q, want %q", aws.ToString(input.TopicArn), sink.TopicARN)
	}
	if !strings.Contains(aws.ToString(input.Message), `"cost_anomaly"`) {
		t.Errorf("Message = %q, want JSON payload with event type", aws.ToString(input.Message))
	}
	if !strings.Contains(aws.ToString(input.Subject), "2") {
		t.Errorf("Subject = %q, want anomaly count", aws.ToString(input.Subject))
	}
}

func TestSNSSink_PublishError(t *testing.T) {
	sink := SNSSink{Client: &fakeSNS{err: errors.New("topic gone")}, TopicARN: "arn"}

	if err := sink.Publish(context.Background(), Event{ID: "e-1"}); err == nil {
		t.Error("Publish() error = nil, want error")
	}
}

func TestLogSink_NeverErrors(t *testing.T) {
	sink := LogSink{Logger: observe.NewDiscardLogger()}
	if err := sink.Publish(context.Background(), Event{ID: "e-1", Count: 3}); err != nil {
		t.Errorf("Publish() error = %v, want nil", err)
	}
}
