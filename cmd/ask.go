package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/app"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/status"
)

// runAsk answers a single question and exits. Nothing is persisted,
// so repeated asks do not accumulate context.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("usage: todd ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, Version)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	user, err := a.UserContext()
	if err != nil {
		return fmt.Errorf("minting user credentials: %w", err)
	}

	// Progress goes to the debug log; stdout carries only the answer.
	ag, err := a.CreateAgent(status.LogReporter{Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	state, err := ag.Run(ctx, user, question)
	if err != nil {
		// The iteration cap still yields a usable partial answer.
		if state == nil || !errors.Is(err, agent.ErrIterationLimit) {
			return fmt.Errorf("generating answer: %w", err)
		}
		fmt.Fprintln(os.Stderr, "warning: stopped at the iteration limit; the answer may be incomplete")
	}

	fmt.Println(state.Output)
	return nil
}
