package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", "add")))
	m.Retries.Add(ctx, 2)
	m.Interrupts.Add(ctx, 1)

	tests := []struct {
		name string
		want int64
	}{
		{"openagent.requests", 2},
		{"openagent.tool.calls", 1},
		{"openagent.retries", 2},
		{"openagent.interrupts", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findMetric(t, reader, tt.name)
			require.NotNil(t, got)
			sum, ok := got.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RequestDuration.Record(ctx, 0.2)
	m.ToolDuration.Record(ctx, 0.01)
	m.ToolDuration.Record(ctx, 0.03)

	for name, count := range map[string]uint64{
		"openagent.request.duration": 1,
		"openagent.tool.duration":    2,
	} {
		got := findMetric(t, reader, name)
		require.NotNil(t, got, name)
		hist, ok := got.Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, hist.DataPoints, 1)
		assert.Equal(t, count, hist.DataPoints[0].Count)
		assert.Equal(t, "s", got.Unit)
	}
}

func TestTracer(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer(tp).Start(context.Background(), SpanTool)
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanTool, spans[0].Name)
	assert.Equal(t, scopeName, spans[0].InstrumentationScope.Name)

	assert.NotNil(t, Tracer(nil))
}

func TestDefaultMetrics(t *testing.T) {
	assert.Same(t, DefaultMetrics(), DefaultMetrics())
}
