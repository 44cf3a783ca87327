// Package observe provides application-wide observability primitives for
// phonoplay: OpenTelemetry metrics, tracing, structured logging and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus exporter installed by [InitProvider]. Tests should build
// their own [Metrics] with [NewMetrics] and a ManualReader instead of using
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phonoplay metrics.
const meterName = "github.com/MrWong99/phonoplay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ── Provider latency ──

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks word-suggestion completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks narration synthesis latency (cache misses only).
	TTSDuration metric.Float64Histogram

	// CatalogDuration tracks candidate fetch latency. Attribute: source.
	CatalogDuration metric.Float64Histogram

	// ── Counters ──

	// ProviderRequests counts provider API calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// SessionsStarted counts practice sessions by outcome of the catalog
	// fetch. Attribute: state (ready, empty, unavailable).
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts sessions that reached the last word.
	SessionsCompleted metric.Int64Counter

	// Attempts counts graded attempts. Attribute: verdict.
	Attempts metric.Int64Counter

	// NarrationCache counts narration lookups. Attribute: result (hit, miss).
	NarrationCache metric.Int64Counter

	// ── Gauges ──

	// ActiveSessions tracks the number of sessions held in memory.
	ActiveSessions metric.Int64UpDownCounter

	// ── HTTP ──

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds. Cloud speech
// calls for a single word usually land between 250ms and 2.5s.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.STTDuration, err = histogram("phonoplay.stt.duration", "Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("phonoplay.llm.duration", "Latency of LLM word suggestion."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("phonoplay.tts.duration", "Latency of text-to-speech synthesis."); err != nil {
		return nil, err
	}
	if met.CatalogDuration, err = histogram("phonoplay.catalog.duration", "Latency of catalog candidate fetches."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("phonoplay.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phonoplay.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("phonoplay.sessions.started",
		metric.WithDescription("Practice sessions started by initial state."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("phonoplay.sessions.completed",
		metric.WithDescription("Practice sessions that reached the last word."),
	); err != nil {
		return nil, err
	}
	if met.Attempts, err = m.Int64Counter("phonoplay.attempts",
		metric.WithDescription("Graded pronunciation attempts by verdict."),
	); err != nil {
		return nil, err
	}
	if met.NarrationCache, err = m.Int64Counter("phonoplay.narration.cache",
		metric.WithDescription("Narration cache lookups by result."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("phonoplay.active_sessions",
		metric.WithDescription("Number of practice sessions held in memory."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("phonoplay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSessionStarted records a new session and the state it resolved to.
func (m *Metrics) RecordSessionStarted(ctx context.Context, state string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordCatalogFetch records the latency of one candidate fetch from source.
func (m *Metrics) RecordCatalogFetch(ctx context.Context, source string, d time.Duration) {
	m.CatalogDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("source", source)))
}

// RecordAttempt records one graded attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, verdict string) {
	m.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordNarrationCache records a narration cache hit or miss.
func (m *Metrics) RecordNarrationCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.NarrationCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
