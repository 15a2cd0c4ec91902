//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/better404/better404/internal/api/handlers"
	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/extract"
	"github.com/better404/better404/internal/jobs"
	"github.com/better404/better404/internal/logging"
	"github.com/better404/better404/internal/repository"
	"github.com/better404/better404/internal/server"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/sitemap"
	"github.com/better404/better404/internal/storage"
	"github.com/better404/better404/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	adminToken   = "e2e-admin-token"
	embeddingDim = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Site         *httptest.Server
	SiteName     string
	Sites        *service.SiteService
	IndexWorker  *jobs.IndexWorker
	Dispatcher   *service.EventDispatcher
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres, RustFS, a fake customer site and the API
// server wired the way serve wires it, with a deterministic embedder.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSAccessKey,
		Bucket:          "e2e-snapshots",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	site := newCustomerSite()
	siteURL, _ := url.Parse(site.URL)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Site:       site,
		SiteName:   siteURL.Hostname(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Dispatcher != nil {
		_ = e.Dispatcher.Close(context.Background())
	}
	if e.Site != nil {
		e.Site.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// RegisterSite creates the customer site row and returns it.
func (e *E2ETestEnv) RegisterSite(verified bool) *domain.Site {
	site, err := e.Sites.Register(e.Ctx, e.SiteName)
	if err != nil {
		e.T.Fatalf("failed to register site: %v", err)
	}
	if verified {
		if site, err = e.Sites.SetVerified(e.Ctx, e.SiteName, true); err != nil {
			e.T.Fatalf("failed to verify site: %v", err)
		}
	}
	return site
}

// APIResponse is a raw HTTP result.
type APIResponse struct {
	Status int
	Body   json.RawMessage
}

// Decode unmarshals the response body into v.
func (r *APIResponse) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("failed to decode %s: %v", r.Body, err)
	}
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string, headers map[string]string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, headers)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any, headers map[string]string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, headers)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, headers map[string]string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &APIResponse{Status: resp.StatusCode, Body: respBody}, nil
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + adminToken}
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	siteRepo := repository.NewSiteRepository(e.Pool)
	pageRepo := repository.NewPageRepository(e.Pool)
	embedder := hashEmbedder{}

	resolver := sitemap.NewResolver(sitemap.WithBaseURL(func(string) string { return e.Site.URL }))
	indexer := service.NewIndexingService(
		siteRepo,
		pageRepo,
		resolver,
		extract.NewStaticExtractor(),
		service.NewCleaner(nil, 0),
		embedder,
		service.IndexingConfig{Snapshots: e.S3Client},
	)

	e.Dispatcher = service.NewEventDispatcher(repository.NewRecommendationEventRepository(e.Pool), 0, nil)
	e.Dispatcher.Start()

	recommender := service.NewRecommendationService(
		siteRepo,
		repository.NewSearchRepository(e.Pool),
		embedder,
		service.NewQueryBuilder(nil, 0),
		e.Dispatcher,
		service.RecommendationConfig{},
	)
	jobSvc := service.NewIndexJobService(repository.NewTxRunner(e.Pool))
	e.Sites = service.NewSiteService(siteRepo, pageRepo)
	e.IndexWorker = jobs.NewIndexWorker(repository.NewIndexJobRepository(e.Pool), siteRepo, indexer, 1)

	router := server.NewRouter(server.RouterConfig{
		AdminToken:            adminToken,
		Logger:                logging.New(io.Discard, false),
		DB:                    e.Pool,
		RecommendationHandler: handlers.NewRecommendationHandler(recommender, nil, nil),
		IndexHandler:          handlers.NewIndexHandler(indexer, jobSvc),
		StatusHandler:         handlers.NewStatusHandler(e.Sites),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// customerPages is the fake site the indexer crawls.
var customerPages = map[string]struct{ title, body string }{
	"/pricing": {
		title: "Pricing plans",
		body:  strings.Repeat("Compare pricing plans and monthly pricing for teams. ", 12),
	},
	"/blog/launch": {
		title: "Launch announcement",
		body:  strings.Repeat("We launched a new blog announcing our product launch. ", 12),
	},
	"/docs/install": {
		title: "Install guide",
		body:  strings.Repeat("Install the agent with the install script on your servers. ", 12),
	},
}

func newCustomerSite() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		for path := range customerPages {
			b.WriteString("<url><loc>" + base + path + "</loc></url>")
		}
		b.WriteString("</urlset>")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(b.String()))
	})

	for path, page := range customerPages {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
				page.title, page.title, page.body)
		})
	}

	return httptest.NewServer(mux)
}

// hashEmbedder maps words onto buckets of a unit vector, so texts sharing
// words score close under cosine distance.
type hashEmbedder struct{}

func (hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
