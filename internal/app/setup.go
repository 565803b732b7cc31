package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/toddbot/todd/db"
	"github.com/toddbot/todd/internal/auth"
	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/model"
	"github.com/toddbot/todd/internal/session"
)

// Setup creates and initializes the application. Components already
// initialized are torn down again if a later step fails; on success
// the caller owns Close().
//
// The backend connection is opened here (Initialize): a refused or
// rejected first connect aborts startup with the typed transport
// error, leaving the retry decision with the operator.
func Setup(ctx context.Context, cfg *config.Config, version string) (_ *App, retErr error) {
	a := &App{Config: cfg, logger: slog.Default()}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.addCloser("tracing", provideOtelShutdown(ctx, cfg))

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.addCloser("database pool", func() error {
		pool.Close()
		return nil
	})

	a.Sessions, err = session.New(pool, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	a.Genkit, err = provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Auth, err = auth.NewProvider([]byte(cfg.Auth.TokenSecret))
	if err != nil {
		return nil, fmt.Errorf("creating credential provider: %w", err)
	}

	a.Model, err = model.New(model.Config{
		Genkit:          a.Genkit,
		Logger:          a.logger,
		ModelName:       cfg.FullModelName(),
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	manager, err := provideBackend(ctx, cfg, version, a.logger)
	if err != nil {
		return nil, err
	}
	a.Backend = manager
	a.addCloser("backend connection", manager.Close)

	return a, nil
}

// provideOtelShutdown sets up tracing before Genkit initialization so
// the TracerProvider is ready when flows start. Traces go to a local
// Datadog Agent via OTLP HTTP; the agent owns authentication,
// buffering and forwarding. Returns the shutdown step; tracing being
// unavailable never fails startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() error {
	dd := cfg.Datadog

	agentHost := dd.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// os.Setenv is not concurrent-safe, but Setup runs exactly once
	// at startup before any goroutines are spawned.
	if dd.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", dd.ServiceName)
	}
	if dd.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+dd.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		slog.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() error { return nil }
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"agent", agentHost,
		"service", dd.ServiceName,
		"environment", dd.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down tracer provider: %w", err)
		}
		return nil
	}
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}

	var g *genkit.Genkit

	switch provider {
	case "ollama":
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case "openai":
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideBackend constructs the connection manager and opens the base
// session.
func provideBackend(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*backend.Manager, error) {
	manager, err := backend.NewManager(backend.Config{
		Dialer: &backend.HTTPDialer{
			Endpoint:       cfg.Backend.Endpoint,
			ConnectTimeout: cfg.Backend.ConnectTimeout,
			ClientName:     "todd",
			ClientVersion:  version,
		},
		ServiceToken:   cfg.Backend.ServiceToken,
		Logger:         logger,
		HealthInterval: cfg.Backend.HealthInterval,
		CallTimeout:    cfg.Backend.CallTimeout,
		Backoff: backend.Policy{
			Initial:     cfg.Backend.BackoffInitial,
			Max:         cfg.Backend.BackoffMax,
			MaxAttempts: cfg.Backend.BackoffMaxAttempts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating backend manager: %w", err)
	}

	if err := manager.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("connecting to backend: %w", err)
	}
	return manager, nil
}
