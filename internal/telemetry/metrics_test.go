package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordEventDropped(ctx)
		m.RecordEventWriteFailure(ctx)
		m.RecordPageIndexed(ctx, "example.com", 3, 1)
		m.RecordRecommendation(ctx, "ok")
		m.RecordRateLimited(ctx, "memory")
	})
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordEventDropped(ctx)
		m.RecordEventWriteFailure(ctx)
		m.RecordPageIndexed(ctx, "example.com", 1, 1)
		m.RecordRecommendation(ctx, "ok")
		m.RecordRateLimited(ctx, "redis")
	})
}

func TestInit_EmptyDSN(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestStartSpan_WithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.op", SpanAttributes{Domain: "example.com", Operation: "test"})
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.SetError(assert.AnError)
		span.End()
	})
}
