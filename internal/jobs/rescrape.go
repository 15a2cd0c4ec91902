package jobs

import (
	"context"
	"fmt"
	"time"
)

type StaleEnqueuer interface {
	EnqueueStale(ctx context.Context, interval time.Duration) (int, error)
}

// RescrapeScheduler queues verified sites whose index has gone stale. Run
// it through a Worker; the open-job uniqueness keeps repeated sweeps from
// piling up duplicates.
type RescrapeScheduler struct {
	enqueuer StaleEnqueuer
	interval time.Duration
}

func NewRescrapeScheduler(enqueuer StaleEnqueuer, interval time.Duration) *RescrapeScheduler {
	return &RescrapeScheduler{enqueuer: enqueuer, interval: interval}
}

// ProcessJobs implements the JobProcessor interface
func (s *RescrapeScheduler) ProcessJobs(ctx context.Context) error {
	if _, err := s.enqueuer.EnqueueStale(ctx, s.interval); err != nil {
		return fmt.Errorf("failed to enqueue stale sites: %w", err)
	}
	return nil
}
