package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/better404/better404/internal/domain"
)

// DefaultRescrapeInterval is how old a verified site's last scrape may get
// before the rescrape sweep queues it again.
const DefaultRescrapeInterval = 7 * 24 * time.Hour

// IndexJobService queues background indexing runs.
type IndexJobService struct {
	txRunner TxRunner
	uuidGen  UUIDGenerator
	now      func() time.Time
}

func NewIndexJobService(txRunner TxRunner) *IndexJobService {
	return NewIndexJobServiceWithUUIDGen(txRunner, &DefaultUUIDGenerator{})
}

func NewIndexJobServiceWithUUIDGen(txRunner TxRunner, uuidGen UUIDGenerator) *IndexJobService {
	return &IndexJobService{
		txRunner: txRunner,
		uuidGen:  uuidGen,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue queues an index job for a verified site. An open job for the same
// site is returned instead of a new one.
func (s *IndexJobService) Enqueue(ctx context.Context, name string) (*domain.IndexJob, error) {
	host, err := domain.ParseSiteName(name)
	if err != nil {
		return nil, domain.ErrInvalidSiteName
	}

	var job *domain.IndexJob
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		site, err := repos.Sites().GetByName(ctx, host)
		if err != nil {
			return err
		}
		if !site.Verified {
			return domain.ErrSiteUnverified
		}

		job, err = repos.IndexJobs().Enqueue(ctx, domain.NewIndexJob(s.uuidGen.NewString(), site.ID, s.now()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueStale queues every verified site whose last scrape is older than
// interval, or that was never scraped. It returns the number of jobs queued.
func (s *IndexJobService) EnqueueStale(ctx context.Context, interval time.Duration) (int, error) {
	if interval <= 0 {
		interval = DefaultRescrapeInterval
	}
	cutoff := s.now().Add(-interval)

	queued := 0
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		sites, err := repos.Sites().ListStale(ctx, cutoff)
		if err != nil {
			return err
		}

		for _, site := range sites {
			if _, err := repos.IndexJobs().Enqueue(ctx, domain.NewIndexJob(s.uuidGen.NewString(), site.ID, s.now())); err != nil {
				return err
			}
			queued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if queued > 0 {
		slog.Info("queued stale sites for rescrape", "count", queued, "cutoff", cutoff)
	}
	return queued, nil
}

// Get returns a job by id.
func (s *IndexJobService) Get(ctx context.Context, id string) (*domain.IndexJob, error) {
	var job *domain.IndexJob
	err := s.txRunner.ReadTx(ctx, func(repos TxRepositories) error {
		var err error
		job, err = repos.IndexJobs().GetByID(ctx, id)
		return err
	})
	return job, err
}
