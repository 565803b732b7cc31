package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/config"
)

// runTools connects to the task backend and prints the discovered tool
// catalog. Only the connection manager is brought up; no database or
// model is needed to inspect the backend.
func runTools() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	manager, err := backend.NewManager(backend.Config{
		Dialer: &backend.HTTPDialer{
			Endpoint:       cfg.Backend.Endpoint,
			ConnectTimeout: cfg.Backend.ConnectTimeout,
			ClientName:     "todd",
			ClientVersion:  Version,
		},
		ServiceToken:   cfg.Backend.ServiceToken,
		Logger:         slog.Default(),
		HealthInterval: cfg.Backend.HealthInterval,
		CallTimeout:    cfg.Backend.CallTimeout,
		Backoff: backend.Policy{
			Initial:     cfg.Backend.BackoffInitial,
			Max:         cfg.Backend.BackoffMax,
			MaxAttempts: cfg.Backend.BackoffMaxAttempts,
		},
	})
	if err != nil {
		return fmt.Errorf("creating backend manager: %w", err)
	}

	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			slog.Warn("closing backend connection", "error", closeErr)
		}
	}()

	tools := manager.Tools()
	if len(tools) == 0 {
		fmt.Println("The backend exposes no tools.")
		return nil
	}

	fmt.Printf("Backend: %s (%d tools)\n\n", cfg.Backend.Endpoint, len(tools))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, tool := range tools {
		fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
	}
	return w.Flush()
}
