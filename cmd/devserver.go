package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/toddbot/todd/internal/auth"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/devserver"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // streamable MCP sessions stay open
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runDevServer starts the local MCP task backend. It accepts the
// configured service token and, when a token secret is set, per-user
// tokens minted by the chat client.
func runDevServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseDevServerAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting task backend", "version", Version)

	var verifier devserver.TokenVerifier
	if cfg.Auth.TokenSecret != "" {
		provider, err := auth.NewProvider([]byte(cfg.Auth.TokenSecret))
		if err != nil {
			return fmt.Errorf("creating token verifier: %w", err)
		}
		verifier = provider
	}

	server, err := devserver.NewServer(devserver.Config{
		Name:         "todd-devserver",
		Version:      Version,
		ServiceToken: cfg.Backend.ServiceToken,
		Verifier:     verifier,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("task backend ready", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down task backend")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
