// Package observe provides the OpenTelemetry metrics and tracing used by
// sessions and tools.
//
// Instruments are created from a metric.MeterProvider. Without explicit
// configuration the global provider is used, which is a no-op until
// InitProvider installs the SDK with a Prometheus exporter. Tests should use
// NewMetrics with their own provider.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/spetersoncode/openagent"

// Metrics holds the instruments recorded by sessions.
type Metrics struct {
	// Requests counts transport requests. Attributes: model, status.
	Requests metric.Int64Counter
	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter
	// Retries counts retried transport attempts.
	Retries metric.Int64Counter
	// Interrupts counts exchanges ended by Interrupt.
	Interrupts metric.Int64Counter
	// RequestDuration is the time from opening a request to the end of its turn.
	RequestDuration metric.Float64Histogram
	// ToolDuration is the time spent in tool handlers.
	ToolDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	met := &Metrics{}
	var err error

	if met.Requests, err = m.Int64Counter("openagent.requests",
		metric.WithDescription("Chat completion requests by model and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("openagent.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("openagent.retries",
		metric.WithDescription("Retried transport attempts."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("openagent.interrupts",
		metric.WithDescription("Exchanges ended by an interrupt."),
	); err != nil {
		return nil, err
	}
	if met.RequestDuration, err = m.Float64Histogram("openagent.request.duration",
		metric.WithDescription("Latency of one streamed request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("openagent.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: " + err.Error())
		}
	})
	return defaultMetrics
}
