package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/telemetry"
)

const (
	DefaultEventBuffer = 256
	eventWriteTimeout  = 5 * time.Second
)

// EventDispatcher queues recommendation events and writes them from a single
// background goroutine. Dispatch never blocks.
type EventDispatcher struct {
	writer  EventWriter
	metrics *telemetry.Metrics

	mu        sync.RWMutex
	queue     chan domain.RecommendationEvent
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

func NewEventDispatcher(writer EventWriter, buffer int, metrics *telemetry.Metrics) *EventDispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &EventDispatcher{
		writer:  writer,
		metrics: metrics,
		queue:   make(chan domain.RecommendationEvent, buffer),
		done:    make(chan struct{}),
	}
}

// Start launches the drain goroutine. Later calls are no-ops.
func (d *EventDispatcher) Start() {
	d.startOnce.Do(func() { go d.drain() })
}

// Dispatch enqueues event and reports whether it was accepted. A full or
// closed queue drops the event.
func (d *EventDispatcher) Dispatch(event domain.RecommendationEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped(event)
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.dropped(event)
		return false
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end. Events queued on a dispatcher that was never started are written too.
func (d *EventDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.Start()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *EventDispatcher) drain() {
	defer close(d.done)
	for event := range d.queue {
		d.write(event)
	}
}

func (d *EventDispatcher) write(event domain.RecommendationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()

	if err := d.writer.Create(ctx, event); err != nil {
		slog.Warn("recommendation event write failed", "domain_id", event.DomainID, "error", err)
		d.metrics.RecordEventWriteFailure(ctx)
		telemetry.CaptureError(ctx, fmt.Errorf("write recommendation event: %w", err))
	}
}

func (d *EventDispatcher) dropped(event domain.RecommendationEvent) {
	ctx := context.Background()
	slog.Warn("recommendation event dropped", "domain_id", event.DomainID)
	d.metrics.RecordEventDropped(ctx)
	telemetry.CaptureMessage(ctx, "recommendation event dropped: queue full")
}
