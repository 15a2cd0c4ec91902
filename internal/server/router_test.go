package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/better404/better404/internal/api/handlers"
	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/service"
)

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) Recommend(ctx context.Context, in service.RecommendInput) ([]domain.RecommendationResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RecommendationResult), args.Error(1)
}

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexDomain(ctx context.Context, in service.IndexInput) (*service.IndexOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IndexOutput), args.Error(1)
}

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, name string) (*domain.IndexJob, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockJobQueue) Get(ctx context.Context, id string) (*domain.IndexJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

type MockStatusReader struct {
	mock.Mock
}

func (m *MockStatusReader) Status(ctx context.Context, name string) (*service.SiteStatus, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SiteStatus), args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testRouter struct {
	handler     http.Handler
	recommender *MockRecommender
	indexer     *MockIndexer
	jobs        *MockJobQueue
	status      *MockStatusReader
}

func newTestRouter(db Pinger) *testRouter {
	tr := &testRouter{
		recommender: new(MockRecommender),
		indexer:     new(MockIndexer),
		jobs:        new(MockJobQueue),
		status:      new(MockStatusReader),
	}
	tr.handler = NewRouter(RouterConfig{
		AdminToken:            "admin-secret",
		DB:                    db,
		RecommendationHandler: handlers.NewRecommendationHandler(tr.recommender, nil, nil),
		IndexHandler:          handlers.NewIndexHandler(tr.indexer, tr.jobs),
		StatusHandler:         handlers.NewStatusHandler(tr.status),
	})
	return tr
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	w := newTestRouter(nil).do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	down := pingerFunc(func(context.Context) error { return errors.New("down") })
	w = newTestRouter(down).do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_RecommendationsCORS(t *testing.T) {
	tr := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recommendations", nil)
	req.Header.Set("Origin", "https://customer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := tr.do(req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	tr.recommender.On("Recommend", mock.Anything, mock.Anything).Return([]domain.RecommendationResult{}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/recommendations",
		strings.NewReader(`{"siteKey":"pk_abcdefgh","url":"https://customer.example/x"}`))
	req.Header.Set("Origin", "https://customer.example")
	w = tr.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_AdminRoutesRequireToken(t *testing.T) {
	tr := newTestRouter(nil)

	w := tr.do(httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"domain":"example.com"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/index/jobs", strings.NewReader(`{"domain":"example.com"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, tr.do(req).Code)

	tr.jobs.On("Enqueue", mock.Anything, "example.com").Return(&domain.IndexJob{ID: "job-9"}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/index/jobs", strings.NewReader(`{"domain":"example.com"}`))
	req.Header.Set("Authorization", "Bearer admin-secret")
	w = tr.do(req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"jobId":"job-9"}`, w.Body.String())
	tr.indexer.AssertNotCalled(t, "IndexDomain", mock.Anything, mock.Anything)
}

func TestRouter_StatusIsPublic(t *testing.T) {
	tr := newTestRouter(nil)
	tr.status.On("Status", mock.Anything, "example.com").Return(&service.SiteStatus{Verified: true, PagesIndexed: 3}, nil)

	w := tr.do(httptest.NewRequest(http.MethodGet, "/api/v1/status/example.com", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"verified":true,"pagesIndexed":3,"lastCrawledAt":null}`, w.Body.String())
}
