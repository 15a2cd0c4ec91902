package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/better404/better404/internal/config"
	"github.com/better404/better404/internal/database"
	"github.com/better404/better404/internal/extract"
	"github.com/better404/better404/internal/logging"
	"github.com/better404/better404/internal/openai"
	"github.com/better404/better404/internal/repository"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/sitemap"
	"github.com/better404/better404/internal/storage"
	"github.com/better404/better404/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

// loadConfig reads the environment and installs the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.Init(cfg.Debug), nil
}

func getDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func newOpenAIClient(cfg *config.Config) (*openai.Client, error) {
	client, err := openai.NewClientFromConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDim,
		ChatModel:           cfg.CheapLLMModel,
		Timeout:             cfg.EmbeddingTimeout,
		ChatTimeout:         cfg.LLMTimeout,
		RequestsPerSecond:   cfg.EmbeddingRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client unavailable: %w", err)
	}
	return client, nil
}

// initTelemetry starts Sentry when a DSN is configured. The returned
// function flushes pending events and is always safe to call.
func initTelemetry(cfg *config.Config) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		slog.Warn("telemetry init failed, continuing without tracing", "error", err)
		return func() {}
	}
	return shutdown
}

// indexingStack owns the resources an IndexingService needs.
type indexingStack struct {
	service   *service.IndexingService
	extractor extract.Extractor
}

func (s *indexingStack) Close() {
	if err := s.extractor.Close(); err != nil {
		slog.Warn("failed to close extractor", "error", err)
	}
}

func newIndexingStack(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, llm *openai.Client, metrics *telemetry.Metrics) (*indexingStack, error) {
	policy, err := sitemap.ParseSeedPolicy(cfg.SitemapSeedPolicy)
	if err != nil {
		return nil, err
	}
	resolver := sitemap.NewResolver(sitemap.WithSeedPolicy(policy))

	extractor, err := extract.New(extract.Renderer(cfg.Renderer), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s renderer: %w", cfg.Renderer, err)
	}

	var cleanerLLM service.Completer
	if cfg.CleanWithLLM {
		cleanerLLM = llm
	}

	indexCfg := service.IndexingConfig{
		IndexConcurrency: cfg.IndexConcurrency,
		EmbedConcurrency: cfg.EmbedConcurrency,
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		Metrics:          metrics,
	}

	if cfg.HasS3() {
		snapshots, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			_ = extractor.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := snapshots.EnsureBucket(ctx); err != nil {
			_ = extractor.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		slog.Info("snapshot archive ready", "bucket", cfg.S3Bucket)
		indexCfg.Snapshots = snapshots
	}

	svc := service.NewIndexingService(
		repository.NewSiteRepository(pool),
		repository.NewPageRepository(pool),
		resolver,
		extractor,
		service.NewCleaner(cleanerLLM, 0),
		llm,
		indexCfg,
	)

	return &indexingStack{service: svc, extractor: extractor}, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
