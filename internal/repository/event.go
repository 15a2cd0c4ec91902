package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better404/better404/internal/domain"
)

// RecommendationEventRepository appends served recommendations.
type RecommendationEventRepository struct {
	db dbtx
}

func NewRecommendationEventRepository(pool *pgxpool.Pool) *RecommendationEventRepository {
	return &RecommendationEventRepository{db: pool}
}

func (r *RecommendationEventRepository) Create(ctx context.Context, event domain.RecommendationEvent) error {
	results := event.Results
	if results == nil {
		results = []domain.RecommendationResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO recommendation_events (domain_id, request_url, referrer, results, latency_ms)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.DomainID,
		event.RequestURL,
		nullableString(event.Referrer),
		resultsJSON,
		event.LatencyMs,
	)
	return err
}

// CountByDomain is used by the status report and tests.
func (r *RecommendationEventRepository) CountByDomain(ctx context.Context, domainID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM recommendation_events WHERE domain_id = $1`,
		domainID,
	).Scan(&n)
	return n, err
}
