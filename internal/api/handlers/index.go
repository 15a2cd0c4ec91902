package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/better404/better404/internal/api"
	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/service"
)

type Indexer interface {
	IndexDomain(ctx context.Context, in service.IndexInput) (*service.IndexOutput, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, name string) (*domain.IndexJob, error)
	Get(ctx context.Context, id string) (*domain.IndexJob, error)
}

// IndexHandler serves the operator indexing endpoints.
type IndexHandler struct {
	indexer Indexer
	jobs    JobQueue
}

func NewIndexHandler(indexer Indexer, jobs JobQueue) *IndexHandler {
	return &IndexHandler{indexer: indexer, jobs: jobs}
}

type IndexRequest struct {
	Domain     string `json:"domain"`
	ShardIndex int    `json:"shardIndex"`
	ShardCount int    `json:"shardCount"`
}

type IndexResponse struct {
	OK           bool `json:"ok"`
	PagesIndexed int  `json:"pagesIndexed"`
}

type EnqueueRequest struct {
	Domain string `json:"domain"`
}

type EnqueueResponse struct {
	JobID string `json:"jobId"`
}

type JobResponse struct {
	ID          string  `json:"id"`
	DomainID    string  `json:"domainId"`
	Status      string  `json:"status"`
	Retries     int32   `json:"retries"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	ProcessedAt *string `json:"processedAt,omitempty"`
}

// Index runs the pipeline synchronously for one domain or shard.
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		api.Error(w, http.StatusBadRequest, "domain is required")
		return
	}

	out, err := h.indexer.IndexDomain(r.Context(), service.IndexInput{
		Domain:     req.Domain,
		ShardIndex: req.ShardIndex,
		ShardCount: req.ShardCount,
	})
	if err != nil {
		if api.DomainErrorToHTTP(err) >= http.StatusInternalServerError {
			slog.Error("index run failed", "domain", req.Domain, "error", err)
		}
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, IndexResponse{OK: true, PagesIndexed: out.PagesIndexed})
}

// Enqueue queues a background index job.
func (h *IndexHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		api.Error(w, http.StatusBadRequest, "domain is required")
		return
	}

	job, err := h.jobs.Enqueue(r.Context(), req.Domain)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusAccepted, EnqueueResponse{JobID: job.ID})
}

func (h *IndexHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := JobResponse{
		ID:        job.ID,
		DomainID:  job.DomainID,
		Status:    string(job.Status),
		Retries:   job.Retries,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UTC().Format(timeLayout),
	}
	if job.ProcessedAt != nil {
		s := job.ProcessedAt.UTC().Format(timeLayout)
		resp.ProcessedAt = &s
	}
	api.JSON(w, http.StatusOK, resp)
}
