// Package observability holds the OpenTelemetry instruments for the
// command engine, the event log and the projection runtime.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// Metrics holds all metric instruments.
type Metrics struct {
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	EventsPushed  metric.Int64Counter
	PushConflicts metric.Int64Counter
	PushLatency   metric.Float64Histogram

	ProjectionLag    metric.Float64Gauge
	ProjectionErrors metric.Int64Counter
}

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"iam.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"iam.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"iam.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsPushed, err = meter.Int64Counter(
		"iam.events.pushed",
		metric.WithDescription("Total events appended to the log"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.pushed: %w", err)
	}

	m.PushConflicts, err = meter.Int64Counter(
		"iam.events.push.conflicts",
		metric.WithDescription("Pushes rejected by optimistic concurrency"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.push.conflicts: %w", err)
	}

	m.PushLatency, err = meter.Float64Histogram(
		"iam.events.push.latency",
		metric.WithDescription("Push latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.push.latency: %w", err)
	}

	m.ProjectionLag, err = meter.Float64Gauge(
		"iam.projection.lag",
		metric.WithDescription("Projection lag in positions behind the log head"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.lag: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"iam.projection.errors",
		metric.WithDescription("Projection reduce errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.errors: %w", err)
	}

	return m, nil
}

// RecordCommand records one command execution.
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("command_type", commandType),
	}
	m.CommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.CommandTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		errorAttrs := append(attrs,
			attribute.String("error_code", string(apperr.CodeOf(err))),
		)
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// RecordPush records a push outcome.
func (m *Metrics) RecordPush(ctx context.Context, duration time.Duration, eventCount int, err error) {
	m.PushLatency.Record(ctx, duration.Seconds())
	if err == nil {
		m.EventsPushed.Add(ctx, int64(eventCount))
		return
	}
	if apperr.IsConcurrencyConflict(err) {
		m.PushConflicts.Add(ctx, 1)
	}
}

// RecordProjection records the projection's lag and a possible error.
func (m *Metrics) RecordProjection(ctx context.Context, name string, lag uint64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("projection", name),
	}
	m.ProjectionLag.Record(ctx, float64(lag), metric.WithAttributes(attrs...))
	if err != nil {
		m.ProjectionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
