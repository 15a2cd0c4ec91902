package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"better404-snapshots"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel   string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDim     int           `envconfig:"EMBEDDING_DIM" default:"1536"`
	EmbeddingRPS     float64       `envconfig:"EMBEDDING_RPS" default:"20"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	CheapLLMModel    string        `envconfig:"CHEAP_LLM_MODEL" default:"gpt-4.1-nano"`
	LLMTimeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	CleanWithLLM     bool          `envconfig:"CLEAN_WITH_LLM" default:"true"`
	EnrichQuery      bool          `envconfig:"ENRICH_QUERY" default:"true"`

	// Indexing
	Renderer          string        `envconfig:"RENDERER" default:"chrome"`
	SitemapSeedPolicy string        `envconfig:"SITEMAP_SEED_POLICY" default:"first"`
	IndexConcurrency  int           `envconfig:"INDEX_CONCURRENCY" default:"3"`
	EmbedConcurrency  int           `envconfig:"EMBED_CONCURRENCY" default:"4"`
	ChunkSize         int           `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap      int           `envconfig:"CHUNK_OVERLAP" default:"200"`
	RescrapeInterval  time.Duration `envconfig:"RESCRAPE_INTERVAL" default:"168h"`

	// Serving
	TopNDefault            int    `envconfig:"TOP_N_DEFAULT" default:"5"`
	RateLimitRecsPerMinute int    `envconfig:"RATE_LIMIT_RECS_PER_MINUTE" default:"0"`
	AdminToken             string `envconfig:"ADMIN_TOKEN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("BETTER404", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Renderer {
	case "chrome", "http":
	default:
		return fmt.Errorf("invalid RENDERER %q: want chrome or http", c.Renderer)
	}

	switch c.SitemapSeedPolicy {
	case "first", "all":
	default:
		return fmt.Errorf("invalid SITEMAP_SEED_POLICY %q: want first or all", c.SitemapSeedPolicy)
	}

	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}

	if c.TopNDefault < 1 || c.TopNDefault > 20 {
		return fmt.Errorf("TOP_N_DEFAULT must be between 1 and 20")
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasAdminToken() bool {
	return c.AdminToken != ""
}
