package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3

	// DefaultBatchSize is how many jobs one tick claims. Indexing is heavy,
	// so the default is one site at a time per replica.
	DefaultBatchSize = 1

	statusWriteTimeout = 10 * time.Second
)

// IndexJobRepository defines the job persistence the worker needs
type IndexJobRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

type SiteLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Site, error)
}

type Indexer interface {
	IndexDomain(ctx context.Context, in service.IndexInput) (*service.IndexOutput, error)
}

// IndexWorker claims queued index jobs and runs them.
type IndexWorker struct {
	repo      IndexJobRepository
	sites     SiteLookup
	indexer   Indexer
	batchSize int
}

func NewIndexWorker(repo IndexJobRepository, sites SiteLookup, indexer Indexer, batchSize int) *IndexWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &IndexWorker{repo: repo, sites: sites, indexer: indexer, batchSize: batchSize}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			w.release(ctx, job, ctx.Err())
			continue
		}
		if err := w.processJob(ctx, job); err != nil {
			slog.Error("error processing index job", "job_id", job.ID, "error", err)
		}
	}

	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	ctx, span := telemetry.StartTransaction(ctx, "index_job", "job.process")
	defer span.End()

	site, err := w.sites.GetByID(ctx, job.DomainID)
	if ctx.Err() != nil {
		w.release(ctx, job, ctx.Err())
		return nil
	}
	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	slog.Info("processing index job", "job_id", job.ID, "domain", site.Name)

	out, err := w.indexer.IndexDomain(ctx, service.IndexInput{Domain: site.Name})
	if ctx.Err() != nil {
		w.release(ctx, job, ctx.Err())
		return nil
	}
	if err != nil {
		span.SetError(err)
		return w.handleJobFailure(ctx, job, err)
	}

	statusCtx, cancel := statusContext(ctx)
	defer cancel()
	if err := w.repo.UpdateStatus(statusCtx, job.ID, domain.IndexJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	slog.Info("index job completed", "job_id", job.ID, "domain", site.Name, "pages", out.PagesIndexed)
	return nil
}

// handleJobFailure retries transient failures up to MaxRetries. Errors
// caused by the site itself (gone, unverified) fail the job at once.
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, jobErr error) error {
	slog.Warn("index job failed", "job_id", job.ID, "error", jobErr)

	ctx, cancel := statusContext(ctx)
	defer cancel()

	if isPermanent(jobErr) {
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		telemetry.CaptureError(ctx, jobErr)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}

// release hands a job interrupted by shutdown back to the queue without
// spending a retry.
func (w *IndexWorker) release(ctx context.Context, job *domain.IndexJob, cause error) {
	ctx, cancel := statusContext(ctx)
	defer cancel()

	msg := fmt.Sprintf("interrupted: %v", cause)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, msg); err != nil {
		slog.Error("failed to release index job", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("index job released", "job_id", job.ID, "reason", cause)
}

// statusContext outlives ctx so job bookkeeping still lands during shutdown.
func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}

func isPermanent(err error) bool {
	return domain.HasCode(err, domain.ErrCodeNotFound) ||
		domain.HasCode(err, domain.ErrCodeForbidden) ||
		domain.HasCode(err, domain.ErrCodeValidation)
}
