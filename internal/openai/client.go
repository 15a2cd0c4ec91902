package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/better404/better404/internal/telemetry"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for page and query embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the vector width stored in chunks.embedding
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the cheap model used for cleanup and query rewriting
	DefaultChatModel = "gpt-4.1-nano"
	// DefaultTimeout bounds a single embedding call
	DefaultTimeout = 30 * time.Second
	// DefaultChatTimeout bounds a single chat call; page rewrites are long
	DefaultChatTimeout = 60 * time.Second
	// DefaultRequestsPerSecond paces embedding calls
	DefaultRequestsPerSecond = 20.0

	chatTemperature = 0.2
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when the OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")
	// ErrEmptyCompletion is returned when the chat model produces no text
	ErrEmptyCompletion = errors.New("completion returned no content")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI defines the interface for single-turn chat completions
type ChatAPI interface {
	CreateChat(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is one system+user exchange
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client wraps the OpenAI API client. Embeddings and chat trip separate
// breakers so a failing rewrite model never blocks embeddings.
type Client struct {
	api          EmbeddingAPI
	chat         ChatAPI
	dimensions   int
	chatModel    string
	timeout      time.Duration
	chatTimeout  time.Duration
	limiter      *rate.Limiter
	embedBreaker *gobreaker.CircuitBreaker
	chatBreaker  *gobreaker.CircuitBreaker
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChat calls the chat completions endpoint and returns the first choice
func (a *OpenAIAdapter) CreateChat(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	Timeout             time.Duration
	ChatTimeout         time.Duration
	RequestsPerSecond   float64
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	adapter := NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel)
	return newClient(adapter, adapter, cfg)
}

func newClient(api EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	chatTimeout := cfg.ChatTimeout
	if chatTimeout <= 0 {
		chatTimeout = DefaultChatTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &Client{
		api:          api,
		chat:         chat,
		dimensions:   dimensions,
		chatModel:    chatModel,
		timeout:      timeout,
		chatTimeout:  chatTimeout,
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		embedBreaker: newBreaker("openai-embeddings"),
		chatBreaker:  newBreaker("openai-chat"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// NewClientFromConfig returns ErrNoAPIKey when no key is configured
func NewClientFromConfig(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClientWithConfig(cfg), nil
}

// Dimensions reports the vector width every embedding is validated against
func (c *Client) Dimensions() int {
	if c.dimensions <= 0 {
		return DefaultEmbeddingDimensions
	}
	return c.dimensions
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, span := telemetry.StartSpan(ctx, "openai.embedding", telemetry.SpanAttributes{Operation: "embed"})
	defer span.End()

	result, err := c.call(ctx, c.embedBreaker, c.timeout, func(ctx context.Context) (any, error) {
		return c.api.CreateEmbeddings(ctx, text)
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	embedding, _ := result.([]float32)
	if len(embedding) != c.Dimensions() {
		span.SetError(fmt.Errorf("%w: got %d, want %d", ErrWrongDimensions, len(embedding), c.Dimensions()))
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// Complete runs a single system+user chat turn against the cheap model and
// returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", ErrEmptyText
	}
	if c.chat == nil {
		return "", ErrNoAPIKey
	}

	ctx, span := telemetry.StartSpan(ctx, "openai.chat", telemetry.SpanAttributes{Operation: "complete"})
	defer span.End()

	result, err := c.call(ctx, c.chatBreaker, c.chatTimeout, func(ctx context.Context) (any, error) {
		return c.chat.CreateChat(ctx, ChatRequest{
			Model:       c.chatModel,
			System:      system,
			User:        user,
			Temperature: chatTemperature,
			MaxTokens:   maxTokens,
		})
	})
	if err != nil {
		span.SetError(err)
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	content, _ := result.(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyCompletion
	}

	return content, nil
}

// call paces one upstream request, bounds it by timeout and runs it
// through breaker. A caller deadline shorter than timeout still wins.
func (c *Client) call(ctx context.Context, breaker *gobreaker.CircuitBreaker, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if breaker == nil {
		return fn(ctx)
	}
	return breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
}
