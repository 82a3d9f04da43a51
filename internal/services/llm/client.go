package llm

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/services"
)

const (
	defaultBaseURL            = "https://api.openai.com/v1/"
	defaultTranscriptionModel = "whisper-1"
	defaultContentModel       = "gpt-4o-mini"
	defaultTimeout            = 120 * time.Second
)

// Config captures the runtime settings required to talk to the API.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ContentModel       string
	Timeout            time.Duration
	Temperature        float64
}

// RetryPolicy bounds the client-level retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts with 2s, 4s delays capped at 32s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 32 * time.Second}
}

// Client issues transcription and content generation requests.
type Client struct {
	api        openai.Client
	cfg        Config
	retry      RetryPolicy
	logger     *slog.Logger
	tokens     TokenCounter
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithLogger attaches a logger for retry notices.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenCounter overrides prompt token estimation.
func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Client) {
		c.tokens = counter
	}
}

// NewClient constructs a client. An API key is required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new client", "openai api key is not set (openai.api_key or OPENAI_API_KEY)", nil)
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if strings.TrimSpace(cfg.TranscriptionModel) == "" {
		cfg.TranscriptionModel = defaultTranscriptionModel
	}
	if strings.TrimSpace(cfg.ContentModel) == "" {
		cfg.ContentModel = defaultContentModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &Client{
		cfg:    cfg,
		retry:  DefaultRetryPolicy(),
		logger: logging.NewNop(),
		tokens: DefaultTokenCounter(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.retry.MaxAttempts < 1 {
		client.retry.MaxAttempts = 1
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if client.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(client.httpClient))
	}
	client.api = openai.NewClient(requestOpts...)
	return client, nil
}

// NewFromConfig builds a client from the application config.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	base := []Option{
		WithLogger(logging.NewComponentLogger(logger, "openai")),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
		}),
	}
	return NewClient(Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		ContentModel:       cfg.OpenAI.ContentModel,
		Timeout:            cfg.OpenAITimeout(),
		Temperature:        cfg.Content.Temperature,
	}, append(base, opts...)...)
}
