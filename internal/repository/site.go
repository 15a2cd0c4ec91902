package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/pagination"
)

const siteColumns = `id, name, site_key_public, verified, last_scraped_at, created_at, updated_at`

type SiteRepository struct {
	db dbtx
}

func NewSiteRepository(pool *pgxpool.Pool) *SiteRepository {
	return &SiteRepository{db: pool}
}

func NewSiteRepositoryWithTx(tx pgx.Tx) *SiteRepository {
	return &SiteRepository{db: tx}
}

func (r *SiteRepository) Create(ctx context.Context, site *domain.Site) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO domains (id, name, site_key_public, verified, last_scraped_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		site.ID, site.Name, site.SiteKeyPublic, site.Verified, site.LastScrapedAt, site.CreatedAt, site.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrSiteAlreadyExists
	}
	return err
}

func (r *SiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	return r.getOne(ctx, `SELECT `+siteColumns+` FROM domains WHERE id = $1`, id)
}

func (r *SiteRepository) GetByName(ctx context.Context, name string) (*domain.Site, error) {
	return r.getOne(ctx, `SELECT `+siteColumns+` FROM domains WHERE name = $1`, name)
}

func (r *SiteRepository) GetBySiteKey(ctx context.Context, siteKey string) (*domain.Site, error) {
	return r.getOne(ctx, `SELECT `+siteColumns+` FROM domains WHERE site_key_public = $1`, siteKey)
}

func (r *SiteRepository) getOne(ctx context.Context, query string, arg any) (*domain.Site, error) {
	site, err := scanSite(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, err
	}
	return site, nil
}

// List returns sites newest first, one keyset page at a time.
func (r *SiteRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[*domain.Site], error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+siteColumns+` FROM domains
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+siteColumns+` FROM domains
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return pagination.Page[*domain.Site]{}, err
	}

	sites, err := scanSites(rows)
	if err != nil {
		return pagination.Page[*domain.Site]{}, err
	}

	return pagination.Trim(sites, limit, func(s *domain.Site) (string, time.Time) {
		return s.ID, s.CreatedAt
	}), nil
}

// ListStale returns verified sites never scraped or last scraped before cutoff.
func (r *SiteRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Site, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+siteColumns+` FROM domains
		 WHERE verified AND (last_scraped_at IS NULL OR last_scraped_at < $1)
		 ORDER BY last_scraped_at ASC NULLS FIRST`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	return scanSites(rows)
}

func (r *SiteRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE domains SET verified = $1, updated_at = NOW() WHERE id = $2`,
		verified, id,
	)
	return affectedOne(cmdTag, err)
}

func (r *SiteRepository) MarkScraped(ctx context.Context, id string, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE domains SET last_scraped_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id,
	)
	return affectedOne(cmdTag, err)
}

func affectedOne(cmdTag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSiteNotFound
	}
	return nil
}

func scanSite(row pgx.Row) (*domain.Site, error) {
	var s domain.Site
	if err := row.Scan(&s.ID, &s.Name, &s.SiteKeyPublic, &s.Verified, &s.LastScrapedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSites(rows pgx.Rows) ([]*domain.Site, error) {
	defer rows.Close()

	var sites []*domain.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}
