package observe

import (
	"context"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "minimal valid",
			config:  Config{ServiceName: "finops"},
			wantErr: false,
		},
		{
			name:    "missing service name",
			config:  Config{},
			wantErr: true,
		},
		{
			name: "valid tracing stdout",
			config: Config{
				ServiceName: "finops",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 0.5},
			},
			wantErr: false,
		},
		{
			name: "unknown tracing exporter",
			config: Config{
				ServiceName: "finops",
				Tracing:     TracingConfig{Enabled: true, Exporter: "zipkin"},
			},
			wantErr: true,
		},
		{
			name: "sample pct out of range",
			config: Config{
				ServiceName: "finops",
				Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1.5},
			},
			wantErr: true,
		},
		{
			name: "valid prometheus metrics",
			config: Config{
				ServiceName: "finops",
				Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
			},
			wantErr: false,
		},
		{
			name: "unknown metrics exporter",
			config: Config{
				ServiceName: "finops",
				Metrics:     MetricsConfig{Enabled: true, Exporter: "statsd"},
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			config: Config{
				ServiceName: "finops",
				Logging:     LoggingConfig{Enabled: true, Level: "verbose"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewObserver_AllDisabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "finops"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer obs.Shutdown(context.Background())

	if obs.Tracer() == nil {
		t.Error("Tracer() = nil, want noop tracer")
	}
	if obs.Meter() == nil {
		t.Error("Meter() = nil, want noop meter")
	}
	if obs.Logger() == nil {
		t.Error("Logger() = nil, want discard logger")
	}
	if obs.Gatherer() != nil {
		t.Error("Gatherer() != nil with metrics disabled")
	}
}

func TestNewObserver_PrometheusGatherer(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "finops",
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer obs.Shutdown(context.Background())

	if obs.Gatherer() == nil {
		t.Fatal("Gatherer() = nil with prometheus exporter")
	}
	if _, err := obs.Gatherer().Gather(); err != nil {
		t.Errorf("Gather() error = %v", err)
	}
}

func TestObserver_ShutdownIdempotent(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "finops",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1.0},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	if _, err := NewObserver(context.Background(), Config{}); err == nil {
		t.Error("NewObserver() error = nil, want validation error")
	}
}
