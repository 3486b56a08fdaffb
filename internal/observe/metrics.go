// Package observe provides application-wide observability primitives for
// Selene: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Selene metrics.
const meterName = "github.com/MrWong99/selene"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks speech recognition latency per utterance.
	ASRDuration metric.Float64Histogram

	// SLMDuration tracks speech language model latency from request to the
	// end of the token stream.
	SLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency from the first text
	// segment to the last audio chunk.
	TTSDuration metric.Float64Histogram

	// ControlDuration tracks control-plane model latency (rendering hints,
	// diarization gating).
	ControlDuration metric.Float64Histogram

	// ResponseDuration tracks end-of-utterance to end-of-response latency.
	ResponseDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finalized user utterances. Use with attribute:
	//   attribute.String("session", ...)
	Utterances metric.Int64Counter

	// BargeIns counts responses cut short by the user speaking over them.
	BargeIns metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts component backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.ASRDuration, err = m.Float64Histogram("selene.asr.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SLMDuration, err = m.Float64Histogram("selene.slm.duration",
		metric.WithDescription("Latency of speech language model streaming."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("selene.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ControlDuration, err = m.Float64Histogram("selene.control.duration",
		metric.WithDescription("Latency of control-plane model decisions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = m.Float64Histogram("selene.response.duration",
		metric.WithDescription("End-to-end latency from utterance to finished response."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("selene.utterances",
		metric.WithDescription("Total finalized user utterances by session."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("selene.barge_ins",
		metric.WithDescription("Total responses interrupted by user speech."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("selene.provider.errors",
		metric.WithDescription("Total component backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("selene.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("selene.http.request.duration",
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

// ObserveSince records the time elapsed since start on h. Nil-safe on both
// the receiver and the instrument so sessions without metrics wiring can call
// it unconditionally.
func (m *Metrics) ObserveSince(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	if m == nil || h == nil {
		return
	}
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}

// ObserveASR records transcription latency for one utterance. Nil-safe.
func (m *Metrics) ObserveASR(ctx context.Context, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSince(ctx, m.ASRDuration, start)
}

// ObserveSLM records language-model streaming latency. Nil-safe.
func (m *Metrics) ObserveSLM(ctx context.Context, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSince(ctx, m.SLMDuration, start)
}

// ObserveTTS records synthesis latency. Nil-safe.
func (m *Metrics) ObserveTTS(ctx context.Context, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSince(ctx, m.TTSDuration, start)
}

// ObserveControl records control-plane decision latency. Nil-safe.
func (m *Metrics) ObserveControl(ctx context.Context, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSince(ctx, m.ControlDuration, start)
}

// ObserveResponse records end-to-end response latency. Nil-safe.
func (m *Metrics) ObserveResponse(ctx context.Context, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSince(ctx, m.ResponseDuration, start)
}

// RecordUtterance records one finalized user utterance. Nil-safe.
func (m *Metrics) RecordUtterance(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session", sessionID)),
	)
}

// RecordBargeIn records one interrupted response. Nil-safe.
func (m *Metrics) RecordBargeIn(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session", sessionID)),
	)
}

// RecordProviderError records a component backend error. Nil-safe.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// SessionStarted bumps the active-session gauge. Nil-safe.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded drops the active-session gauge. Nil-safe.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
