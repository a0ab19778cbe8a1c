package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/alert"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/anomaly"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/billing"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/cache"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/observe"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "finops",
	Short:        "AWS FinOps dashboard: costs, anomalies, compliance, and recommendations",
	Long:         "finops queries AWS Cost Explorer, Organizations, and Resource Groups Tagging\nacross one or many accounts, with caching, rate limiting, and typed errors.",
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired component graph shared by every command.
type app struct {
	settings *config.Settings
	observer observe.Observer
	manager  *awsauth.Manager
	invoker  *resilience.Invoker
	store    cache.Cache
	factory  billing.ClientFactory
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := strings.ToLower(settings.Observe.LogLevel)
	if level == "warning" {
		level = "warn"
	}
	observer, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "finops-dashboard",
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   settings.Observe.TracingExporter != "" && settings.Observe.TracingExporter != "none",
			Exporter:  settings.Observe.TracingExporter,
			SamplePct: settings.Observe.TraceSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  settings.Observe.MetricsExporter != "" && settings.Observe.MetricsExporter != "none",
			Exporter: settings.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: level},
	})
	if err != nil {
		return nil, err
	}

	logger := observer.Logger()
	transitions, _ := otel.Meter("github.com/lewisbuilds/AWS-FinOps-Dashboard/cmd/finops").
		Int64Counter("resilience.breaker_transitions",
			metric.WithDescription("Circuit breaker state transitions"))
	invoker := resilience.NewInvoker(
		resilience.NewLimiter(resilience.LimiterConfig{Rate: settings.Resilience.RateRPS}),
		resilience.NewBreaker(resilience.BreakerConfig{
			FailThreshold: settings.Resilience.FailThreshold,
			ResetTimeout:  settings.Resilience.ResetTimeout(),
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
				transitions.Add(context.Background(), 1,
					metric.WithAttributes(attribute.String("to", to.String())))
			},
		}),
		resilience.InvokerConfig{
			MaxRetries:  settings.Resilience.MaxRetries,
			BackoffBase: settings.Resilience.BackoffBase(),
			BackoffMax:  settings.Resilience.BackoffMax(),
			IsTransient: awsauth.IsTransient,
			Logger:      logger,
		},
	)

	return &app{
		settings: settings,
		observer: observer,
		manager:  awsauth.NewManager(settings, logger),
		invoker:  invoker,
		store:    cache.NewMemoryCache(cache.MemoryConfig{MaxEntries: settings.Cache.MaxEntries}),
		factory:  billing.SDKClientFactory{},
	}, nil
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.observer.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
	}
}

func (a *app) aggregator() *billing.Aggregator {
	return billing.NewAggregator(a.settings, a.manager, a.invoker, a.store, a.factory, a.observer.Logger())
}

// analyzer builds the analyzer with its detector and alert sinks. The SNS
// sink is attached only when a topic is configured.
func (a *app) analyzer(ctx context.Context) (*billing.Analyzer, error) {
	detector := anomaly.NewDetector(anomaly.Config{
		ZThreshold: a.settings.Anomaly.ZScoreThreshold,
		MinPoints:  a.settings.Anomaly.MinPoints,
		Method:     a.settings.Anomaly.Method,
		Backend:    anomaly.MADBackend{},
	})

	logger := a.observer.Logger()
	sinks := []alert.Sink{alert.LogSink{Logger: logger}}
	if arn := a.settings.Anomaly.AlertTopicARN; arn != "" {
		session, err := a.manager.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, alert.SNSSink{Client: newSNSClient(session.Config), TopicARN: arn})
	}
	dispatcher := alert.NewDispatcher(logger, sinks...)

	return billing.NewAnalyzer(a.settings, a.manager, a.invoker, a.store, a.factory, detector, dispatcher, logger), nil
}

func newSNSClient(cfg aws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}
