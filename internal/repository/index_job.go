package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better404/better404/internal/domain"
)

const indexJobColumns = `id, domain_id, status, retries, error, created_at, processed_at`

type IndexJobRepository struct {
	db dbtx
}

func NewIndexJobRepository(pool *pgxpool.Pool) *IndexJobRepository {
	return &IndexJobRepository{db: pool}
}

func NewIndexJobRepositoryWithTx(tx pgx.Tx) *IndexJobRepository {
	return &IndexJobRepository{db: tx}
}

// Enqueue inserts job unless the domain already has an open one, in which
// case the open job is returned instead.
func (r *IndexJobRepository) Enqueue(ctx context.Context, job *domain.IndexJob) (*domain.IndexJob, error) {
	created, err := scanIndexJob(r.db.QueryRow(ctx,
		`INSERT INTO index_jobs (id, domain_id, status, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (domain_id) WHERE status IN ('pending', 'processing') DO NOTHING
		 RETURNING `+indexJobColumns,
		job.ID, job.DomainID, job.Status, job.Retries, nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	open, err := scanIndexJob(r.db.QueryRow(ctx,
		`SELECT `+indexJobColumns+` FROM index_jobs
		 WHERE domain_id = $1 AND status IN ('pending', 'processing')`,
		job.DomainID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexJobNotFound
		}
		return nil, err
	}
	return open, nil
}

func (r *IndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	job, err := scanIndexJob(r.db.QueryRow(ctx,
		`SELECT `+indexJobColumns+` FROM index_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimLease is how long a job may stay processing before another worker
// may claim it again. It covers replicas that died mid-run.
const ClaimLease = 2 * time.Hour

// ClaimPending moves up to limit pending jobs, and processing jobs whose
// claim is older than ClaimLease, to processing. Concurrent workers never
// claim the same row.
func (r *IndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM index_jobs
			 WHERE status = $1
			    OR (status = $3 AND COALESCE(claimed_at, created_at) < NOW() - $4::interval)
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE index_jobs
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL,
		     claimed_at = NOW()
		 FROM cte
		 WHERE index_jobs.id = cte.id
		 RETURNING index_jobs.id, index_jobs.domain_id, index_jobs.status, index_jobs.retries,
		           index_jobs.error, index_jobs.created_at, index_jobs.processed_at`,
		domain.IndexJobStatusPending, limit, domain.IndexJobStatusProcessing, ClaimLease,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IndexJob
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *IndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.IndexJobStatusCompleted || status == domain.IndexJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func (r *IndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func scanIndexJob(row pgx.Row) (*domain.IndexJob, error) {
	var job domain.IndexJob
	var errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.DomainID, &job.Status, &job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}
