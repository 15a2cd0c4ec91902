package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "better404"

// Metrics holds the application counters
type Metrics struct {
	EventsDropped       metric.Int64Counter
	EventWriteFailures  metric.Int64Counter
	PagesIndexed        metric.Int64Counter
	ChunksWithoutVector metric.Int64Counter
	Recommendations     metric.Int64Counter
	RateLimited         metric.Int64Counter
}

// InitMetrics registers counters on the global meter provider
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(meterName))
}

// NewMetrics registers counters on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	eventsDropped, err := meter.Int64Counter(
		"recommendation.events.dropped",
		metric.WithDescription("Recommendation events dropped because the queue was full"),
	)
	if err != nil {
		return nil, err
	}

	eventWriteFailures, err := meter.Int64Counter(
		"recommendation.events.write_failures",
		metric.WithDescription("Recommendation events that failed to persist"),
	)
	if err != nil {
		return nil, err
	}

	pagesIndexed, err := meter.Int64Counter(
		"indexing.pages.total",
		metric.WithDescription("Pages upserted by the indexing pipeline"),
	)
	if err != nil {
		return nil, err
	}

	chunksWithoutVector, err := meter.Int64Counter(
		"indexing.chunks.without_vector",
		metric.WithDescription("Chunks stored with a null embedding"),
	)
	if err != nil {
		return nil, err
	}

	recommendations, err := meter.Int64Counter(
		"recommendations.total",
		metric.WithDescription("Recommendation requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"recommendations.rate_limited",
		metric.WithDescription("Recommendation requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		EventsDropped:       eventsDropped,
		EventWriteFailures:  eventWriteFailures,
		PagesIndexed:        pagesIndexed,
		ChunksWithoutVector: chunksWithoutVector,
		Recommendations:     recommendations,
		RateLimited:         rateLimited,
	}, nil
}

// RecordEventDropped counts an event lost to a full queue
func (m *Metrics) RecordEventDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.EventsDropped.Add(ctx, 1)
}

// RecordEventWriteFailure counts an event the store rejected
func (m *Metrics) RecordEventWriteFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.EventWriteFailures.Add(ctx, 1)
}

// RecordPageIndexed counts one page upsert for a domain
func (m *Metrics) RecordPageIndexed(ctx context.Context, domain string, chunks, withoutVector int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("domain", domain))
	m.PagesIndexed.Add(ctx, 1, attrs)
	if withoutVector > 0 {
		m.ChunksWithoutVector.Add(ctx, int64(withoutVector), attrs)
	}
}

// RecordRecommendation counts a served or rejected recommendation request
func (m *Metrics) RecordRecommendation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Recommendations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRateLimited counts a request rejected by the limiter
func (m *Metrics) RecordRateLimited(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}
