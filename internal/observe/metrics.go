// Package observe provides application-wide observability primitives for
// VoxPrep: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxPrep metrics.
const meterName = "github.com/voxprep/voxprep"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AckWaitDuration tracks how long the engine waited for the server to
	// acknowledge a streaming start.
	AckWaitDuration metric.Float64Histogram

	// PlaybackDuration tracks question speech playback time.
	PlaybackDuration metric.Float64Histogram

	// SessionDuration tracks complete interview duration, recorded once per
	// finished interview.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// ChannelEvents counts inbound channel events. Use with attribute:
	//   attribute.String("type", ...)
	ChannelEvents metric.Int64Counter

	// ChunksSent counts outbound audio chunks.
	ChunksSent metric.Int64Counter

	// QuestionsAsked counts questions delivered to the candidate.
	QuestionsAsked metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts session-level failures. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("phase", ...)
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of interviews currently in progress.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for real-time audio round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines bucket boundaries (in seconds) for whole-interview
// durations.
var sessionBuckets = []float64{
	30, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AckWaitDuration, err = m.Float64Histogram("voxprep.ack_wait.duration",
		metric.WithDescription("Time spent waiting for the server streaming acknowledgment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxprep.playback.duration",
		metric.WithDescription("Question speech playback time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxprep.session.duration",
		metric.WithDescription("Duration of completed interviews."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChannelEvents, err = m.Int64Counter("voxprep.channel.events",
		metric.WithDescription("Inbound channel events by type."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("voxprep.capture.chunks_sent",
		metric.WithDescription("Outbound audio chunks forwarded to the server."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsAsked, err = m.Int64Counter("voxprep.session.questions",
		metric.WithDescription("Questions delivered to the candidate."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("voxprep.session.errors",
		metric.WithDescription("Session-level failures by kind and phase."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxprep.active_sessions",
		metric.WithDescription("Interviews currently in progress."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxprep.http.request.duration",
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

// RecordChannelEvent records one inbound event with its wire type.
func (m *Metrics) RecordChannelEvent(ctx context.Context, eventType string) {
	m.ChannelEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordEngineError records a session failure with the standard attribute
// set.
func (m *Metrics) RecordEngineError(ctx context.Context, kind, phase string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("phase", phase),
		),
	)
}

// RecordSessionComplete records one finished interview and its duration.
func (m *Metrics) RecordSessionComplete(ctx context.Context, d time.Duration) {
	m.SessionDuration.Record(ctx, d.Seconds())
}
