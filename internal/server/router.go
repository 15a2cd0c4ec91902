package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/better404/better404/internal/api"
	"github.com/better404/better404/internal/api/handlers"
	"github.com/better404/better404/internal/api/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AdminToken            string
	Logger                *slog.Logger
	DB                    Pinger
	RecommendationHandler *handlers.RecommendationHandler
	IndexHandler          *handlers.IndexHandler
	StatusHandler         *handlers.StatusHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/health", healthHandler(cfg.DB))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// The 404 snippet runs on customer origins.
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         600,
			}))
			r.Use(middleware.LimitBody(middleware.PublicBodyLimit))
			r.Post("/recommendations", cfg.RecommendationHandler.Recommend)
			r.Options("/recommendations", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		r.Get("/status/{domain}", cfg.StatusHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.AdminToken))
			r.Use(middleware.LimitBody(middleware.AdminBodyLimit))

			r.Post("/index", cfg.IndexHandler.Index)
			r.Post("/index/jobs", cfg.IndexHandler.Enqueue)
			r.Get("/index/jobs/{id}", cfg.IndexHandler.GetJob)
		})
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				api.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
