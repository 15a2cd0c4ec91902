package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/better404/better404/internal/api/handlers"
	"github.com/better404/better404/internal/config"
	"github.com/better404/better404/internal/database"
	"github.com/better404/better404/internal/jobs"
	"github.com/better404/better404/internal/ratelimit"
	"github.com/better404/better404/internal/repository"
	"github.com/better404/better404/internal/server"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	indexPollInterval    = 10 * time.Second
	rescrapePollInterval = time.Hour
	shutdownTimeout      = 30 * time.Second
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the better404 API server together with the index job and rescrape workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-workers", false, "Serve HTTP only; do not process index jobs")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	defer initTelemetry(cfg)()

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	llm, err := newOpenAIClient(cfg)
	if err != nil {
		return err
	}

	limiter, closeRedis, err := newRecommendationLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	stack, err := newIndexingStack(ctx, cfg, pool, llm, metrics)
	if err != nil {
		return err
	}
	defer stack.Close()

	siteRepo := repository.NewSiteRepository(pool)
	pageRepo := repository.NewPageRepository(pool)
	jobRepo := repository.NewIndexJobRepository(pool)

	dispatcher := service.NewEventDispatcher(repository.NewRecommendationEventRepository(pool), 0, metrics)
	dispatcher.Start()

	var enricher service.Completer
	if cfg.EnrichQuery {
		enricher = llm
	}

	recommendSvc := service.NewRecommendationService(
		siteRepo,
		repository.NewSearchRepository(pool),
		llm,
		service.NewQueryBuilder(enricher, 0),
		dispatcher,
		service.RecommendationConfig{TopNDefault: cfg.TopNDefault, Metrics: metrics},
	)
	siteSvc := service.NewSiteService(siteRepo, pageRepo)
	jobSvc := service.NewIndexJobService(repository.NewTxRunner(pool))

	var workers []*jobs.Worker
	noWorkers, _ := cmd.Flags().GetBool("no-workers")
	if !noWorkers {
		workers = append(workers,
			jobs.NewWorker("index", jobs.NewIndexWorker(jobRepo, siteRepo, stack.service, jobs.DefaultBatchSize), indexPollInterval),
			jobs.NewWorker("rescrape", jobs.NewRescrapeScheduler(jobSvc, cfg.RescrapeInterval), rescrapePollInterval, jobs.RunOnStart()),
		)
		for _, w := range workers {
			go w.Start(ctx)
		}
	}

	router := server.NewRouter(server.RouterConfig{
		AdminToken:            cfg.AdminToken,
		Logger:                logger,
		DB:                    pool,
		RecommendationHandler: handlers.NewRecommendationHandler(recommendSvc, limiter, metrics),
		IndexHandler:          handlers.NewIndexHandler(stack.service, jobSvc),
		StatusHandler:         handlers.NewStatusHandler(siteSvc),
	})

	if !cfg.HasAdminToken() {
		logger.Warn("BETTER404_ADMIN_TOKEN not set, admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	for _, w := range workers {
		w.Stop()
	}

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("recommendation events not fully flushed", "error", err)
	}

	logger.Info("server exited")
	return nil
}

// newRecommendationLimiter returns a nil limiter when rate limiting is off.
// With REDIS_URL set the window is shared across replicas.
func newRecommendationLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimitRecsPerMinute <= 0 {
		return nil, noop, nil
	}
	if !cfg.HasRedis() {
		slog.Info("rate limiting recommendations in memory", "per_minute", cfg.RateLimitRecsPerMinute)
		return ratelimit.New(nil, cfg.RateLimitRecsPerMinute), noop, nil
	}

	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	slog.Info("rate limiting recommendations in redis", "per_minute", cfg.RateLimitRecsPerMinute)

	var cmdable redis.Cmdable = rdb
	return ratelimit.New(cmdable, cfg.RateLimitRecsPerMinute), func() { _ = rdb.Close() }, nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("migrations: no migrations applied")
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	default:
		slog.Info("migrations: database is up to date", "version", version)
	}

	return nil
}
