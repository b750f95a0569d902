// Package llm provides a provider-agnostic text generation client with
// retry support. All structure in model replies (JSON shapes, lists) is
// requested via prompt text and must be defensively parsed by callers.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Generator produces raw text from a prompt. It is the only contract the
// linking engine depends on; Client is the HTTP implementation.
type Generator interface {
	// Name returns the generator identifier (e.g., "gemini", "openai").
	Name() string

	// Generate sends a prompt and returns the raw model reply.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the settings for a generation endpoint.
type Config struct {
	// Provider selects the wire adapter ("gemini", "openai", "anthropic").
	Provider string `yaml:"provider"`

	// Endpoint is the API base URL. Empty uses the provider default.
	Endpoint string `yaml:"endpoint"`

	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`

	// APIKey is the credential. Empty falls back to the provider's
	// environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// Client is a provider-agnostic text generation client with retry support.
type Client struct {
	provider    Provider
	cfg         Config
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the configured provider.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	provider := GetProvider(cfg.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		provider:    provider,
		cfg:         cfg,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Name returns the underlying provider name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Generate sends a prompt and returns the raw reply, retrying transient
// failures with exponential backoff.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	requestID := uuid.New().String()

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		text, err := c.doRequest(ctx, prompt)
		if err == nil {
			c.logger.Debug("Generation succeeded",
				"request_id", requestID,
				"provider", c.provider.Name(),
				"model", c.cfg.Model,
				"attempt", attempt)
			return text, nil
		}

		lastErr = err
		if IsFatal(err) {
			return "", err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"request_id", requestID,
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents synchronized retries against rate-limited endpoints.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request against the endpoint.
func (c *Client) doRequest(ctx context.Context, prompt string) (string, error) {
	url := c.provider.BuildURL(c.cfg.Endpoint, c.cfg.Model)

	body, err := c.provider.BuildRequestBody(c.cfg.Model, prompt)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	c.provider.SetHeaders(httpReq, c.cfg.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return "", NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return c.provider.ParseResponse(respBody)
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("generation API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
