package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"

	"github.com/better404/better404/internal/api"
	"github.com/better404/better404/internal/api/middleware"
	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/ratelimit"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/telemetry"
)

const minSiteKeyLength = 8

type Recommender interface {
	Recommend(ctx context.Context, in service.RecommendInput) ([]domain.RecommendationResult, error)
}

type RecommendationHandler struct {
	svc     Recommender
	limiter ratelimit.Limiter
	backend string
	metrics *telemetry.Metrics
}

// NewRecommendationHandler builds the public handler. A nil limiter means
// no rate limit.
func NewRecommendationHandler(svc Recommender, limiter ratelimit.Limiter, metrics *telemetry.Metrics) *RecommendationHandler {
	backend := "memory"
	if _, ok := limiter.(*ratelimit.RedisLimiter); ok {
		backend = "redis"
	}
	return &RecommendationHandler{svc: svc, limiter: limiter, backend: backend, metrics: metrics}
}

type RecommendationRequest struct {
	SiteKey  string   `json:"siteKey"`
	URL      string   `json:"url"`
	Referrer *string  `json:"referrer,omitempty"`
	TopN     *float64 `json:"topN,omitempty"`
}

type RecommendationResponse struct {
	Results []domain.RecommendationResult `json:"results"`
}

func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, api.ErrInvalidRequest)
		return
	}

	in, ok := req.validate()
	if !ok {
		api.Error(w, http.StatusBadRequest, api.ErrInvalidRequest)
		return
	}
	middleware.WithSiteKey(r, in.SiteKey)

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), in.SiteKey)
		if err != nil {
			slog.Warn("rate limiter unavailable", "backend", h.backend, "error", err)
		}
		if !allowed {
			h.metrics.RecordRateLimited(r.Context(), h.backend)
			api.HandlePublicError(w, domain.ErrRateLimited)
			return
		}
	}

	in.Origin = r.Header.Get("Origin")
	if in.Origin == "" {
		in.Origin = r.Header.Get("Referer")
	}

	results, err := h.svc.Recommend(r.Context(), in)
	if err != nil {
		if api.DomainErrorToHTTP(err) >= http.StatusInternalServerError {
			slog.Error("recommendation failed", "error", err)
			telemetry.CaptureError(r.Context(), err)
		}
		api.HandlePublicError(w, err)
		return
	}

	if results == nil {
		results = []domain.RecommendationResult{}
	}
	api.JSON(w, http.StatusOK, RecommendationResponse{Results: results})
}

func (req RecommendationRequest) validate() (service.RecommendInput, bool) {
	in := service.RecommendInput{SiteKey: req.SiteKey, URL: req.URL}

	if len(req.SiteKey) < minSiteKeyLength {
		return in, false
	}
	if !isAbsoluteURL(req.URL) {
		return in, false
	}
	if req.Referrer != nil {
		if !isAbsoluteURL(*req.Referrer) {
			return in, false
		}
		in.Referrer = *req.Referrer
	}
	if req.TopN != nil {
		n := *req.TopN
		if n != math.Trunc(n) || n < service.MinTopN || n > service.MaxTopN {
			return in, false
		}
		in.TopN = int(n)
	}
	return in, true
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
