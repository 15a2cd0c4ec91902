// Package telemetry wires Sentry tracing and OpenTelemetry counters.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serviceName  = "better404"
	flushTimeout = 5 * time.Second
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

// Init starts Sentry and returns a flush function. An empty DSN or a failed
// init yields a no-op flush so callers never need to branch.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 0.2
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler:    sampler(cfg.TracesSampleRate),
	})
	if err != nil {
		slog.Warn("sentry init failed, continuing without tracing", "error", err)
		return func() {}, nil
	}

	slog.Info("sentry initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops health probes and CORS preflights, and keeps child spans
// on their parent's decision.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		name := ctx.Span.Name
		if strings.HasSuffix(name, " /health") || strings.HasPrefix(name, "OPTIONS ") {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// SpanAttributes are the tags an indexing or recommendation span carries.
type SpanAttributes struct {
	Domain    string
	URL       string
	Operation string
}

// Span is a nil-safe wrapper so code runs unchanged without Sentry.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s != nil && s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err.
func (s *Span) SetError(err error) {
	if s == nil || s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// SetData attaches a value to the span, e.g. a page or chunk count.
func (s *Span) SetData(key string, value any) {
	if s != nil && s.inner != nil {
		s.inner.SetData(key, value)
	}
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.Domain != "" {
		span.SetTag("domain", a.Domain)
	}
	if a.URL != "" {
		span.SetData("url", a.URL)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction opens a root span for work that does not come from an
// HTTP request, such as a background index job.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	opts := []sentry.SpanOption{sentry.WithTransactionName(name)}
	if op != "" {
		opts = append(opts, sentry.WithOpName(op))
	}
	span := sentry.StartSpan(ctx, op, opts...)
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err to the hub in ctx. Cancellations are skipped;
// a visitor leaving the 404 page is not an error.
func CaptureError(ctx context.Context, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	hubFrom(ctx).CaptureException(err)
}

func CaptureMessage(ctx context.Context, message string) {
	hubFrom(ctx).CaptureMessage(message)
}

// AddBreadcrumb records a step, e.g. each URL an index run visits.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFrom(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}
