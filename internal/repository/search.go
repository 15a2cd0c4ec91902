package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/better404/better404/internal/domain"
)

const snippetLength = 200

type SearchRepository struct {
	db dbtx
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{db: pool}
}

// SearchChunks ranks the domain's embedded chunks by cosine similarity to vec.
func (r *SearchRepository) SearchChunks(ctx context.Context, domainID string, vec []float32, k int) ([]domain.RecommendationResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.url, p.title, 1 - (c.embedding <=> $2) AS score, substring(c.text from 1 for $4)
		 FROM chunks c
		 JOIN pages p ON p.id = c.page_id
		 WHERE p.domain_id = $1 AND c.embedding IS NOT NULL
		 ORDER BY c.embedding <=> $2
		 LIMIT $3`,
		domainID, pgvector.NewVector(vec), k, snippetLength,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RecommendationResult, 0, k)
	for rows.Next() {
		var res domain.RecommendationResult
		var title, snippet *string
		if err := rows.Scan(&res.URL, &title, &res.Score, &snippet); err != nil {
			return nil, err
		}
		res.Title = derefString(title)
		res.Snippet = derefString(snippet)
		results = append(results, res)
	}
	return results, rows.Err()
}
