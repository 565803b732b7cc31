package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/app"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/session"
	"github.com/toddbot/todd/internal/status"
	"github.com/toddbot/todd/internal/tui"
)

// statusBuffer sizes the progress update channel. Sends are
// best-effort, so a small buffer only smooths bursts.
const statusBuffer = 16

// runChat initializes and starts the interactive chat with Bubble Tea TUI.
func runChat() error {
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

	statusCh := make(chan status.Update, statusBuffer)
	ag, err := a.CreateAgent(status.ChannelReporter{C: statusCh})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	sessionID, history, err := resumeOrCreateSession(ctx, a.Sessions, cfg)
	if err != nil {
		return fmt.Errorf("preparing session: %w", err)
	}

	ui, err := tui.New(ctx, tui.Config{
		Runner:    ag,
		User:      user,
		Status:    statusCh,
		Sessions:  a.Sessions,
		SessionID: sessionID,
		History:   history,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}

	program := tea.NewProgram(ui, tea.WithContext(ctx))
	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}

// resumeOrCreateSession returns the session to converse in along with
// its saved history. A stale pointer to a deleted session falls back
// to creating a fresh one.
func resumeOrCreateSession(ctx context.Context, store *session.Store, cfg *config.Config) (uuid.UUID, []agent.Turn, error) {
	currentID, err := session.LoadCurrentSessionID()
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("loading session state: %w", err)
	}

	if currentID != nil {
		_, err = store.Get(ctx, *currentID)
		switch {
		case err == nil:
			history, histErr := store.History(ctx, *currentID)
			if histErr != nil {
				return uuid.Nil, nil, fmt.Errorf("loading conversation history: %w", histErr)
			}
			return *currentID, history, nil
		case !errors.Is(err, session.ErrNotFound):
			return uuid.Nil, nil, fmt.Errorf("validating session: %w", err)
		}
	}

	sess, err := store.Create(ctx, cfg.Auth.Username, "New conversation")
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("creating session: %w", err)
	}
	if err := session.SaveCurrentSessionID(sess.ID); err != nil {
		slog.Warn("saving session state", "error", err)
	}
	return sess.ID, nil, nil
}
