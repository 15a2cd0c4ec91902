package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/extract"
	"github.com/better404/better404/internal/pagination"
)

// MockSiteRepository is a mock implementation of SiteRepository
type MockSiteRepository struct {
	mock.Mock
}

func (m *MockSiteRepository) Create(ctx context.Context, site *domain.Site) error {
	args := m.Called(ctx, site)
	return args.Error(0)
}

func (m *MockSiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

func (m *MockSiteRepository) GetByName(ctx context.Context, name string) (*domain.Site, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

func (m *MockSiteRepository) GetBySiteKey(ctx context.Context, siteKey string) (*domain.Site, error) {
	args := m.Called(ctx, siteKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

func (m *MockSiteRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[*domain.Site], error) {
	args := m.Called(ctx, cursor, limit)
	return args.Get(0).(pagination.Page[*domain.Site]), args.Error(1)
}

func (m *MockSiteRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Site, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Site), args.Error(1)
}

func (m *MockSiteRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}

func (m *MockSiteRepository) MarkScraped(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// MockIndexJobRepository is a mock implementation of IndexJobRepository
type MockIndexJobRepository struct {
	mock.Mock
}

func (m *MockIndexJobRepository) Enqueue(ctx context.Context, job *domain.IndexJob) (*domain.IndexJob, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockIndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPageRepository is a mock implementation of PageRepository
type MockPageRepository struct {
	mock.Mock
}

func (m *MockPageRepository) IndexPage(ctx context.Context, in domain.IndexPageInput) (domain.IndexPageResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.IndexPageResult), args.Error(1)
}

func (m *MockPageRepository) Stats(ctx context.Context, domainID string) (int, *time.Time, error) {
	args := m.Called(ctx, domainID)
	var last *time.Time
	if v := args.Get(1); v != nil {
		last = v.(*time.Time)
	}
	return args.Int(0), last, args.Error(2)
}

// MockChunkSearcher is a mock implementation of ChunkSearcher
type MockChunkSearcher struct {
	mock.Mock
}

func (m *MockChunkSearcher) SearchChunks(ctx context.Context, domainID string, vec []float32, k int) ([]domain.RecommendationResult, error) {
	args := m.Called(ctx, domainID, vec, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RecommendationResult), args.Error(1)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockCompleter is a mock implementation of Completer
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	args := m.Called(ctx, system, user, maxTokens)
	return args.String(0), args.Error(1)
}

// MockEventSink is a mock implementation of EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Dispatch(event domain.RecommendationEvent) bool {
	args := m.Called(event)
	return args.Bool(0)
}

// MockDiscoverer is a mock implementation of Discoverer
type MockDiscoverer struct {
	mock.Mock
}

func (m *MockDiscoverer) Discover(ctx context.Context, domain string) []string {
	args := m.Called(ctx, domain)
	return args.Get(0).([]string)
}

// MockPageExtractor is a mock implementation of PageExtractor
type MockPageExtractor struct {
	mock.Mock
}

func (m *MockPageExtractor) Extract(ctx context.Context, url string) (*extract.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Page), args.Error(1)
}

// MockSnapshotStore is a mock implementation of SnapshotStore
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) PutSnapshot(ctx context.Context, domain, contentHash, text string) error {
	args := m.Called(ctx, domain, contentHash, text)
	return args.Error(0)
}

// MockUUIDGenerator hands out the given ids in order
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}
