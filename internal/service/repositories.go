package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/pagination"
)

// SiteRepository defines persistence for registered sites
type SiteRepository interface {
	Create(ctx context.Context, site *domain.Site) error
	GetByID(ctx context.Context, id string) (*domain.Site, error)
	GetByName(ctx context.Context, name string) (*domain.Site, error)
	GetBySiteKey(ctx context.Context, siteKey string) (*domain.Site, error)
	List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[*domain.Site], error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Site, error)
	SetVerified(ctx context.Context, id string, verified bool) error
	MarkScraped(ctx context.Context, id string, at time.Time) error
}

// IndexJobRepository defines persistence for queued index jobs
type IndexJobRepository interface {
	Enqueue(ctx context.Context, job *domain.IndexJob) (*domain.IndexJob, error)
	GetByID(ctx context.Context, id string) (*domain.IndexJob, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// PageRepository writes pages with their chunk sets
type PageRepository interface {
	IndexPage(ctx context.Context, in domain.IndexPageInput) (domain.IndexPageResult, error)
	Stats(ctx context.Context, domainID string) (int, *time.Time, error)
}

// ChunkSearcher ranks a domain's chunks against a query vector
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, domainID string, vec []float32, k int) ([]domain.RecommendationResult, error)
}

// EventWriter persists recommendation events
type EventWriter interface {
	Create(ctx context.Context, event domain.RecommendationEvent) error
}

// Embedder turns text into a vector of the configured width
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Completer runs a single chat turn against the cheap model
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
