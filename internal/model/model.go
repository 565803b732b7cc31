// Package model wraps a Genkit-registered language model behind the
// small Generate surface the agent loop consumes. It owns the
// resilience stack for model calls: proactive rate limiting, retry
// with exponential backoff, and a circuit breaker.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/toddbot/todd/internal/agent"
)

// Config contains all required parameters for the model client.
type Config struct {
	Genkit *genkit.Genkit
	Logger *slog.Logger

	// ModelName is the provider-qualified model name
	// (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
	ModelName string

	// Generation tuning. Zero values leave the provider defaults.
	Temperature     float32
	MaxOutputTokens int

	// Resilience configuration (zero-value uses defaults).
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig

	// RateLimiter throttles outgoing model calls (nil = use default).
	RateLimiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Client calls one configured model. It implements agent.Model and is
// safe for concurrent use; all configuration is captured immutably at
// construction time.
type Client struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger

	genConfig *genai.GenerateContentConfig

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter
}

var _ agent.Model = (*Client)(nil)

// New creates a model client.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30.
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	var genConfig *genai.GenerateContentConfig
	if cfg.Temperature != 0 || cfg.MaxOutputTokens != 0 {
		genConfig = &genai.GenerateContentConfig{}
		if cfg.Temperature != 0 {
			genConfig.Temperature = genai.Ptr(cfg.Temperature)
		}
		if cfg.MaxOutputTokens != 0 {
			genConfig.MaxOutputTokens = int32(cfg.MaxOutputTokens)
		}
	}

	return &Client{
		g:              cfg.Genkit,
		modelName:      cfg.ModelName,
		logger:         logger,
		genConfig:      genConfig,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,
	}, nil
}

// Generate sends the system prompt and conversation history to the
// model and returns its text response.
func (c *Client) Generate(ctx context.Context, system string, turns []agent.Turn) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithSystem(system),
		ai.WithMessages(renderTurns(turns)...),
	}
	if c.genConfig != nil {
		opts = append(opts, ai.WithConfig(c.genConfig))
	}

	if err := c.circuitBreaker.Allow(); err != nil {
		c.logger.Warn("circuit breaker is open, rejecting request",
			"state", c.circuitBreaker.State().String())
		return "", fmt.Errorf("model unavailable: %w", err)
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		c.circuitBreaker.Failure()
		return "", err
	}
	c.circuitBreaker.Success()

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("model returned empty response", "model", c.modelName)
	}
	return text, nil
}

// renderTurns maps conversation turns onto Genkit messages. Tool
// results have no native role in the plain-text protocol, so they are
// presented to the model as user messages.
func renderTurns(turns []agent.Turn) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case agent.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		case agent.RoleUser, agent.RoleTool:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		}
	}
	return msgs
}
