package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/better404/better404/internal/api"
	"github.com/better404/better404/internal/service"
)

const timeLayout = time.RFC3339

type StatusReader interface {
	Status(ctx context.Context, name string) (*service.SiteStatus, error)
}

type StatusHandler struct {
	sites StatusReader
}

func NewStatusHandler(sites StatusReader) *StatusHandler {
	return &StatusHandler{sites: sites}
}

type StatusResponse struct {
	Verified      bool    `json:"verified"`
	PagesIndexed  int     `json:"pagesIndexed"`
	LastCrawledAt *string `json:"lastCrawledAt"`
}

// Get reports indexing progress for a domain.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.sites.Status(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		api.HandlePublicError(w, err)
		return
	}

	resp := StatusResponse{Verified: status.Verified, PagesIndexed: status.PagesIndexed}
	if status.LastCrawledAt != nil {
		s := status.LastCrawledAt.UTC().Format(timeLayout)
		resp.LastCrawledAt = &s
	}
	api.JSON(w, http.StatusOK, resp)
}
