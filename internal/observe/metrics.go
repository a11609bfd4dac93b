// Package observe provides application-wide observability primitives for
// Pitchline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Pitchline metrics.
const meterName = "github.com/pitchline-ai/pitchline"

// Rejection reasons recorded on [Metrics.FragmentsRejected].
const (
	ReasonEcho      = "echo"
	ReasonDuplicate = "duplicate"
	ReasonEmpty     = "empty"
	ReasonLeak      = "leak"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FragmentsCommitted counts fragments accepted into the call record.
	// Use with attribute.String("speaker", ...).
	FragmentsCommitted metric.Int64Counter

	// FragmentsRejected counts fragments dropped by the pipeline. Use with
	// attributes: attribute.String("speaker", ...), attribute.String("reason", ...)
	// where reason is one of the Reason* constants.
	FragmentsRejected metric.Int64Counter

	// CallsFinalized counts completed calls by outcome ("ended", "failed").
	CallsFinalized metric.Int64Counter

	// AnalysisErrors counts analysis backend failures by provider.
	AnalysisErrors metric.Int64Counter

	// --- Latency histograms ---

	// AssemblyDuration tracks transcript assembly latency.
	AssemblyDuration metric.Float64Histogram

	// AnalysisDuration tracks post-call analysis latency.
	AnalysisDuration metric.Float64Histogram

	// PersistDuration tracks call record persistence latency.
	PersistDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("route", ...)
	// where route is the collapsed route pattern, not the raw path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Assembly
// is sub-millisecond, analysis can take tens of seconds; the spread covers
// both.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FragmentsCommitted, err = m.Int64Counter("pitchline.fragments.committed",
		metric.WithDescription("Total transcript fragments committed, by speaker."),
	); err != nil {
		return nil, err
	}
	if met.FragmentsRejected, err = m.Int64Counter("pitchline.fragments.rejected",
		metric.WithDescription("Total transcript fragments rejected, by speaker and reason."),
	); err != nil {
		return nil, err
	}
	if met.CallsFinalized, err = m.Int64Counter("pitchline.calls.finalized",
		metric.WithDescription("Total finalized calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisErrors, err = m.Int64Counter("pitchline.analysis.errors",
		metric.WithDescription("Total analysis backend failures by provider."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.AssemblyDuration, err = m.Float64Histogram("pitchline.assembly.duration",
		metric.WithDescription("Latency of transcript assembly."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("pitchline.analysis.duration",
		metric.WithDescription("Latency of post-call analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("pitchline.persist.duration",
		metric.WithDescription("Latency of call record persistence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("pitchline.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchline.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordFragmentCommitted records one accepted fragment.
func (m *Metrics) RecordFragmentCommitted(ctx context.Context, speaker string) {
	m.FragmentsCommitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordFragmentRejected records one dropped fragment with its reason.
func (m *Metrics) RecordFragmentRejected(ctx context.Context, speaker, reason string) {
	m.FragmentsRejected.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("speaker", speaker),
			attribute.String("reason", reason),
		),
	)
}

// RecordCallFinalized records one completed call with its outcome.
func (m *Metrics) RecordCallFinalized(ctx context.Context, outcome string) {
	m.CallsFinalized.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordAnalysisError records one analysis backend failure.
func (m *Metrics) RecordAnalysisError(ctx context.Context, provider string) {
	m.AnalysisErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
