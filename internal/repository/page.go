package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/better404/better404/internal/domain"
)

// beginner is satisfied by *pgxpool.Pool and pgx.Tx. On a pgx.Tx, Begin
// opens a savepoint.
type beginner interface {
	dbtx
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PageRepository struct {
	db beginner
}

func NewPageRepository(pool *pgxpool.Pool) *PageRepository {
	return &PageRepository{db: pool}
}

func NewPageRepositoryWithTx(tx pgx.Tx) *PageRepository {
	return &PageRepository{db: tx}
}

// IndexPage upserts the page and replaces its chunk set in one transaction.
// A chunk whose vector insert fails is retried without the vector; a chunk
// that still fails is skipped.
func (r *PageRepository) IndexPage(ctx context.Context, in domain.IndexPageInput) (domain.IndexPageResult, error) {
	var res domain.IndexPageResult

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO pages (id, domain_id, url, title, status, content_hash, last_crawled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (domain_id, url) DO UPDATE
		 SET title = EXCLUDED.title,
		     status = EXCLUDED.status,
		     content_hash = EXCLUDED.content_hash,
		     last_crawled_at = NOW()
		 RETURNING id`,
		uuid.NewString(), in.DomainID, in.URL, in.Title, in.Status, in.ContentHash,
	).Scan(&res.PageID)
	if err != nil {
		return res, fmt.Errorf("upsert page: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE page_id = $1`, res.PageID); err != nil {
		return res, fmt.Errorf("delete chunks: %w", err)
	}

	for _, c := range in.Chunks {
		withVector, err := insertChunk(ctx, tx, res.PageID, c)
		if err != nil {
			slog.Warn("chunk insert failed, skipping", "page_id", res.PageID, "ord", c.Ord, "error", err)
			res.Skipped++
			continue
		}
		res.Stored++
		if !withVector {
			res.WithoutVector++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit page: %w", err)
	}
	return res, nil
}

// insertChunk writes c inside a savepoint so a failed statement does not
// abort the enclosing transaction.
func insertChunk(ctx context.Context, tx pgx.Tx, pageID string, c domain.Chunk) (bool, error) {
	if c.HasEmbedding() {
		err := inSavepoint(ctx, tx, func(sp pgx.Tx) error {
			_, err := sp.Exec(ctx,
				`INSERT INTO chunks (page_id, ord, text, embedding) VALUES ($1, $2, $3, $4)`,
				pageID, c.Ord, c.Text, pgvector.NewVector(c.Embedding),
			)
			return err
		})
		if err == nil {
			return true, nil
		}
		slog.Warn("vector insert failed, storing text only", "page_id", pageID, "ord", c.Ord, "error", err)
	}

	err := inSavepoint(ctx, tx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx,
			`INSERT INTO chunks (page_id, ord, text) VALUES ($1, $2, $3)`,
			pageID, c.Ord, c.Text,
		)
		return err
	})
	return false, err
}

func inSavepoint(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (r *PageRepository) GetByURL(ctx context.Context, domainID, url string) (*domain.Page, error) {
	var p domain.Page
	err := r.db.QueryRow(ctx,
		`SELECT id, domain_id, url, title, status, content_hash, last_crawled_at
		 FROM pages WHERE domain_id = $1 AND url = $2`,
		domainID, url,
	).Scan(&p.ID, &p.DomainID, &p.URL, &p.Title, &p.Status, &p.ContentHash, &p.LastCrawledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPageNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListChunks returns the page's chunks in ordinal order.
func (r *PageRepository) ListChunks(ctx context.Context, pageID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, page_id, ord, text, embedding FROM chunks WHERE page_id = $1 ORDER BY ord`,
		pageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var vec *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.PageID, &c.Ord, &c.Text, &vec); err != nil {
			return nil, err
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Stats returns the number of pages stored for a domain and the most recent
// crawl time, nil when none.
func (r *PageRepository) Stats(ctx context.Context, domainID string) (int, *time.Time, error) {
	var count int
	var last *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), MAX(last_crawled_at) FROM pages WHERE domain_id = $1`,
		domainID,
	).Scan(&count, &last)
	if err != nil {
		return 0, nil, err
	}
	return count, last, nil
}
