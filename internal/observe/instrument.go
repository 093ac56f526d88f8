package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// instrumentedProvider records spans and metrics around every provider call.
type instrumentedProvider struct {
	next    provider.Provider
	metrics *Metrics
}

var _ provider.Provider = (*instrumentedProvider)(nil)

// InstrumentProvider wraps p so that Search and Resolve are traced and
// counted on m. A nil m selects [DefaultMetrics].
func InstrumentProvider(p provider.Provider, m *Metrics) provider.Provider {
	if m == nil {
		m = DefaultMetrics()
	}
	return &instrumentedProvider{next: p, metrics: m}
}

func (p *instrumentedProvider) Name() string { return p.next.Name() }

func (p *instrumentedProvider) Search(ctx context.Context, keyword string) ([]track.Summary, error) {
	ctx, span := StartSpan(ctx, "provider.Search", trace.WithAttributes(
		attribute.String("provider", p.next.Name()),
	))
	defer span.End()

	res, err := p.next.Search(ctx, keyword)
	p.record(ctx, span, "search", err)
	span.SetAttributes(attribute.Int("results", len(res)))
	return res, err
}

func (p *instrumentedProvider) Resolve(ctx context.Context, input string, requester track.Requester) (track.Record, error) {
	ctx, span := StartSpan(ctx, "provider.Resolve", trace.WithAttributes(
		attribute.String("provider", p.next.Name()),
	))
	defer span.End()

	start := time.Now()
	rec, err := p.next.Resolve(ctx, input, requester)
	p.metrics.ResolveDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", p.next.Name())))
	p.record(ctx, span, "resolve", err)
	if err == nil {
		span.SetAttributes(
			attribute.String("track.source_id", rec.SourceID),
			attribute.Bool("track.playable", rec.Playable()),
		)
	}
	return rec, err
}

func (p *instrumentedProvider) record(ctx context.Context, span trace.Span, kind string, err error) {
	p.metrics.RecordProviderRequest(ctx, p.next.Name(), kind, Status(err))
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.next.Name(), kind)
		FailSpan(span, err)
	}
}
