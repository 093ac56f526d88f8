// Package observe provides application-wide observability primitives for
// chorus: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all chorus metrics.
const meterName = "github.com/MrWong99/chorus"

// Cache fetch outcomes recorded on [Metrics.CacheFetches].
const (
	OutcomeHit       = "hit"
	OutcomeMiss      = "miss"
	OutcomeCoalesced = "coalesced"
	OutcomeError     = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks provider resolve latency, including the cache
	// fetch it triggers.
	ResolveDuration metric.Float64Histogram

	// RetrievalDuration tracks the time spent downloading one source into the
	// cache. Use with attribute:
	//   attribute.String("retriever", ...)
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CacheFetches counts download cache lookups. Use with attribute:
	//   attribute.String("outcome", hit|miss|coalesced|error)
	CacheFetches metric.Int64Counter

	// PlaybackStarts counts transport start attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	PlaybackStarts metric.Int64Counter

	// Commands counts chat command invocations. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// SelectionRejections counts selection controls pressed by someone other
	// than the requester.
	SelectionRejections metric.Int64Counter

	// --- Gauges ---

	// PendingTracks tracks the number of queued (not yet playing) tracks
	// across all chats.
	PendingTracks metric.Int64UpDownCounter

	// ActivePlaybacks tracks the number of chats currently streaming.
	ActivePlaybacks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration is labelled with method, route pattern and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Downloads
// of a full song regularly take tens of seconds, hence the long tail.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("chorus.provider.resolve.duration",
		metric.WithDescription("Latency of provider resolve including the cache fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("chorus.cache.retrieval.duration",
		metric.WithDescription("Latency of downloading one source into the cache."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("chorus.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CacheFetches, err = m.Int64Counter("chorus.cache.fetches",
		metric.WithDescription("Total download cache fetches by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("chorus.playback.starts",
		metric.WithDescription("Total transport start attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("chorus.commands",
		metric.WithDescription("Total chat command invocations by command and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("chorus.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SelectionRejections, err = m.Int64Counter("chorus.selection.rejections",
		metric.WithDescription("Selection controls activated by a user other than the requester."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.PendingTracks, err = m.Int64UpDownCounter("chorus.queue.pending",
		metric.WithDescription("Number of queued tracks across all chats."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("chorus.playback.active",
		metric.WithDescription("Number of chats currently streaming."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chorus.http.request.duration",
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

// Status maps an error to the "ok"/"error" status attribute value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCacheFetch records one cache lookup with the given outcome.
func (m *Metrics) RecordCacheFetch(ctx context.Context, outcome string) {
	m.CacheFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPlaybackStart records a transport start attempt.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, status string) {
	m.PlaybackStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCommand records a chat command invocation.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}
