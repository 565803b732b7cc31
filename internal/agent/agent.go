package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/status"
)

// Model is the language model the loop converses with. Each call
// sends the system prompt and the full history and returns free-form
// text that may embed at most one tool-call sentinel.
type Model interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
}

// Invoker dispatches tool calls to the backend. *backend.Manager
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, tool string, params map[string]any, user *backend.UserContext) (string, error)
	Tools() []backend.ToolDescriptor
}

// Config contains all required parameters for the agent loop.
type Config struct {
	Model   Model
	Backend Invoker
	Logger  *slog.Logger

	// Status is the optional progress side channel. Nil disables it.
	Status status.Reporter

	// MaxIterations bounds the model/tool cycle (zero-value uses default).
	MaxIterations int

	// StatusInterval is the period of the activity indicator
	// (zero-value uses default; negative disables it).
	StatusInterval time.Duration
}

// Defaults applied for zero-value Config fields.
const (
	DefaultMaxIterations  = 50
	defaultStatusInterval = 5 * time.Second
)

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Model == nil {
		return errors.New("model is required")
	}
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	return nil
}

// Agent runs bounded conversations. It is stateless between runs; all
// per-conversation state lives in the State created at loop entry.
// Safe for concurrent use, though each conversation is sequential by
// construction: the loop never issues two tool calls concurrently.
type Agent struct {
	model   Model
	backend Invoker
	statusR status.Reporter
	logger  *slog.Logger

	maxIterations  int
	statusInterval time.Duration
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Status
	if reporter == nil {
		reporter = status.NopReporter{}
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	statusInterval := cfg.StatusInterval
	if statusInterval == 0 {
		statusInterval = defaultStatusInterval
	}

	return &Agent{
		model:          cfg.Model,
		backend:        cfg.Backend,
		statusR:        reporter,
		logger:         logger,
		maxIterations:  maxIterations,
		statusInterval: statusInterval,
	}, nil
}

// show delivers a progress update, logging and swallowing failures.
// The status channel never propagates errors into the loop.
func (a *Agent) show(ctx context.Context, kind status.Kind, detail string) {
	if err := a.statusR.Show(ctx, kind, detail); err != nil {
		a.logger.Debug("status update failed", "kind", string(kind), "error", err)
	}
}
