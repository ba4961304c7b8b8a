// Package observe provides application-wide observability primitives for
// MockFlow: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all MockFlow metrics.
const meterName = "github.com/MrWong99/mockflow"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks turn-producer LLM inference latency.
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks interview tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Interview progression ---

	// StageTransitions counts stage changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...), attribute.String("kind", ...)
	// where kind is one of voluntary, forced, skip.
	StageTransitions metric.Int64Counter

	// Questions counts ask_question requests. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("outcome", ...)
	Questions metric.Int64Counter

	// GuardDenials counts voluntary transitions rejected by the
	// minimum-question gate. Use with attribute:
	//   attribute.String("stage", ...)
	GuardDenials metric.Int64Counter

	// InterviewsEnded counts finalized interviews. Use with attribute:
	//   attribute.String("ended_by", ...)
	InterviewsEnded metric.Int64Counter

	// --- Provider and tool counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// ActiveInterviews tracks the number of live interview sessions.
	ActiveInterviews metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for LLM
// and tool latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("mockflow.llm.duration",
		metric.WithDescription("Latency of turn-producer LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("mockflow.tool_execution.duration",
		metric.WithDescription("Latency of interview tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Interview counters.
	if met.StageTransitions, err = m.Int64Counter("mockflow.stage.transitions",
		metric.WithDescription("Total stage transitions by source, target, and kind."),
	); err != nil {
		return nil, err
	}
	if met.Questions, err = m.Int64Counter("mockflow.questions",
		metric.WithDescription("Total ask_question requests by stage and outcome."),
	); err != nil {
		return nil, err
	}
	if met.GuardDenials, err = m.Int64Counter("mockflow.guard.denials",
		metric.WithDescription("Voluntary transitions denied by the minimum-question gate."),
	); err != nil {
		return nil, err
	}
	if met.InterviewsEnded, err = m.Int64Counter("mockflow.interviews.ended",
		metric.WithDescription("Finalized interviews by termination reason."),
	); err != nil {
		return nil, err
	}

	// Provider and tool counters.
	if met.ProviderRequests, err = m.Int64Counter("mockflow.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("mockflow.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mockflow.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInterviews, err = m.Int64UpDownCounter("mockflow.active_interviews",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mockflow.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTransition records one stage change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to, kind string) {
	m.StageTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("kind", kind),
		),
	)
}

// RecordQuestion records an ask_question outcome.
func (m *Metrics) RecordQuestion(ctx context.Context, stage, outcome string) {
	m.Questions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordGuardDenial records a rejected voluntary transition.
func (m *Metrics) RecordGuardDenial(ctx context.Context, stage string) {
	m.GuardDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordInterviewEnded records a finalized interview.
func (m *Metrics) RecordInterviewEnded(ctx context.Context, endedBy string) {
	m.InterviewsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("ended_by", endedBy)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
