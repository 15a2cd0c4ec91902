package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/better404/better404/internal/telemetry"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor on a fixed interval. A panicking batch is
// logged and reported; the loop keeps running.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	runOnStart   bool
	logger       *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// RunOnStart processes one batch immediately instead of waiting a full
// interval for the first tick.
func RunOnStart() WorkerOption {
	return func(w *Worker) { w.runOnStart = true }
}

func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, opts ...WorkerOption) *Worker {
	w := &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       slog.With("worker", name),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "poll_interval", w.pollInterval, "run_on_start", w.runOnStart)

	if w.runOnStart {
		w.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "reason", "context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped", "reason", "stop signal")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker %s panicked: %v", w.name, r)
			w.logger.Error("job batch panicked", "error", err)
			telemetry.CaptureError(ctx, err)
		}
	}()

	if err := w.processor.ProcessJobs(ctx); err != nil {
		w.logger.Error("error processing jobs", "error", err, "duration", time.Since(started))
		return
	}
	w.logger.Debug("job batch done", "duration", time.Since(started))
}

// Stop signals the loop and waits for it to exit. It is safe to call more
// than once but must follow Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	w.logger.Info("worker shutdown complete")
}
