package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config configures the telemetry bootstrap.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// MetricReader is the pluggable export path (Prometheus, OTLP, stdout).
	// Nil disables metrics; all instruments degrade to no-ops.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry holds the initialized providers and instruments.
type Telemetry struct {
	MeterProvider metric.MeterProvider
	Metrics       *Metrics
	Logger        *slog.Logger

	shutdown func(context.Context) error
}

// Init sets up the meter provider and registers it globally. A nil reader
// yields a provider with no export path, which the instruments treat as
// no-ops.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var opts []sdkmetric.Option
	opts = append(opts, sdkmetric.WithResource(res))
	if cfg.MetricReader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.MetricReader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)

	metrics, err := NewMetrics(provider.Meter("nordlys"))
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(provider)
	if cfg.MetricReader != nil {
		cfg.Logger.Info("metrics initialized", "service", cfg.ServiceName)
	} else {
		cfg.Logger.Info("metrics disabled, no reader configured")
	}

	return &Telemetry{
		MeterProvider: provider,
		Metrics:       metrics,
		Logger:        cfg.Logger,
		shutdown:      provider.Shutdown,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}
