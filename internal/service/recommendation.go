package service

import (
	"context"
	"errors"
	"time"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/telemetry"
)

const (
	MinTopN     = 1
	MaxTopN     = 20
	DefaultTopN = 5
)

// RecommendInput is a recommendation request after transport validation.
// Origin carries the Origin header, or Referer when Origin is absent.
type RecommendInput struct {
	SiteKey  string
	URL      string
	Referrer string
	TopN     int
	Origin   string
}

// EventSink accepts events without blocking the caller.
type EventSink interface {
	Dispatch(event domain.RecommendationEvent) bool
}

// RecommendationService answers "which page did the visitor want?" for a
// dead link on a verified site.
type RecommendationService struct {
	sites       SiteRepository
	search      ChunkSearcher
	embedder    Embedder
	queries     *QueryBuilder
	events      EventSink
	metrics     *telemetry.Metrics
	topNDefault int
	now         func() time.Time
}

type RecommendationConfig struct {
	TopNDefault int
	Metrics     *telemetry.Metrics
}

func NewRecommendationService(
	sites SiteRepository,
	search ChunkSearcher,
	embedder Embedder,
	queries *QueryBuilder,
	events EventSink,
	cfg RecommendationConfig,
) *RecommendationService {
	topN := cfg.TopNDefault
	if topN < MinTopN || topN > MaxTopN {
		topN = DefaultTopN
	}
	return &RecommendationService{
		sites:       sites,
		search:      search,
		embedder:    embedder,
		queries:     queries,
		events:      events,
		metrics:     cfg.Metrics,
		topNDefault: topN,
		now:         time.Now,
	}
}

// Recommend authorizes the request against the site key, then ranks the
// site's chunks against a query built from the dead URL.
func (s *RecommendationService) Recommend(ctx context.Context, in RecommendInput) ([]domain.RecommendationResult, error) {
	started := s.now()

	site, err := s.authorize(ctx, in)
	if err != nil {
		s.metrics.RecordRecommendation(ctx, outcomeOf(err))
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "recommendation.search", telemetry.SpanAttributes{
		Domain:    site.Name,
		URL:       in.URL,
		Operation: "recommend",
	})
	defer span.End()

	k := clampTopN(in.TopN, s.topNDefault)
	query := s.queries.Build(ctx, in.URL, in.Referrer)

	vec, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		s.metrics.RecordRecommendation(ctx, "error")
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "query embedding failed", err)
	}

	results, err := s.search.SearchChunks(ctx, site.ID, vec, k)
	if err != nil {
		span.SetError(err)
		s.metrics.RecordRecommendation(ctx, "error")
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "chunk search failed", err)
	}

	if s.events != nil {
		s.events.Dispatch(domain.RecommendationEvent{
			DomainID:   site.ID,
			RequestURL: in.URL,
			Referrer:   in.Referrer,
			Results:    results,
			LatencyMs:  s.now().Sub(started).Milliseconds(),
		})
	}
	s.metrics.RecordRecommendation(ctx, "ok")

	return results, nil
}

// authorize runs before any embedding or chunk read.
func (s *RecommendationService) authorize(ctx context.Context, in RecommendInput) (*domain.Site, error) {
	site, err := s.sites.GetBySiteKey(ctx, in.SiteKey)
	if err != nil {
		if errors.Is(err, domain.ErrSiteNotFound) || domain.HasCode(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrUnknownSiteKey
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "site lookup failed", err)
	}
	if !site.Verified {
		return nil, domain.ErrUnknownSiteKey
	}

	if in.Origin != "" {
		host, err := domain.HostOf(in.Origin)
		if err != nil || host != site.Name {
			return nil, domain.ErrOriginMismatch
		}
	}

	host, err := domain.HostOf(in.URL)
	if err != nil || host != site.Name {
		return nil, domain.ErrURLMismatch
	}

	return site, nil
}

func clampTopN(requested, fallback int) int {
	k := requested
	if k == 0 {
		k = fallback
	}
	return max(MinTopN, min(MaxTopN, k))
}

func outcomeOf(err error) string {
	switch {
	case domain.HasCode(err, domain.ErrCodeUnauthorized):
		return "unauthorized"
	case domain.HasCode(err, domain.ErrCodeForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
