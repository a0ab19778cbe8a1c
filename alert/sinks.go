package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// LogSink writes alerts to the structured log, the default destination when
// no external sink is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Publish(_ context.Context, event Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("cost anomalies detected",
		"alert_type", event.Type,
		"event_id", event.ID,
		"anomaly_count", event.Count,
		"context", event.Context)
	return nil
}

// SNSAPI is the subset of the SNS client the sink uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes alerts to an SNS topic as JSON.
type SNSSink struct {
	Client   SNSAPI
	TopicARN string
}

func (s SNSSink) Name() string { return "sns" }

func (s SNSSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alert: failed to encode event: %w", err)
	}

	_, err = s.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.TopicARN),
		Subject:  aws.String(fmt.Sprintf("Cost anomalies detected (%d)", event.Count)),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("alert: sns publish failed: %w", err)
	}
	return nil
}

// Ensure sinks implement Sink
var (
	_ Sink = LogSink{}
	_ Sink = SNSSink{}
)
