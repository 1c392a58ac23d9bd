package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/observability"
)

func TestRecordCommand(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCommand(ctx, "user.add", 5*time.Millisecond, nil)
	metrics.RecordCommand(ctx, "user.add", 5*time.Millisecond,
		apperr.ThrowNotFound(nil, "USER-001", "not found"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			counts[m.Name] = true
		}
	}
	assert.True(t, counts["iam.command.total"])
	assert.True(t, counts["iam.command.errors"])
	assert.True(t, counts["iam.command.duration"])
}

func TestRecordPushConflict(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordPush(ctx, time.Millisecond, 0,
		apperr.ThrowConcurrencyConflict(nil, "SQL-003", "conflict"))
	metrics.RecordPush(ctx, time.Millisecond, 3, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	seen := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			seen[m.Name] = true
		}
	}
	assert.True(t, seen["iam.events.pushed"])
	assert.True(t, seen["iam.events.push.conflicts"])
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:  "nordlys-test",
		MetricReader: sdkmetric.NewManualReader(),
	})
	require.NoError(t, err)
	require.NotNil(t, tel.Metrics)
	tel.Metrics.RecordProjection(ctx, "users", 2, nil)
	assert.NoError(t, tel.Shutdown(ctx))

	// Without a reader the instruments still work as no-ops.
	tel, err = observability.Init(ctx, observability.Config{ServiceName: "nordlys-test"})
	require.NoError(t, err)
	tel.Metrics.RecordCommand(ctx, "user.add", time.Millisecond, nil)
	assert.NoError(t, tel.Shutdown(ctx))
}
