package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toddbot/todd/db"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/session"
)

// sessionsListLimit bounds the list output.
const sessionsListLimit = 100

// runSessions dispatches the sessions subcommands. Only the database
// is brought up; the model and backend stay untouched.
func runSessions(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	store, pool, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if len(args) == 0 {
		return runSessionsList(ctx, store, cfg.Auth.Username)
	}

	switch args[0] {
	case "list":
		return runSessionsList(ctx, store, cfg.Auth.Username)
	case "show":
		if len(args) < 2 {
			return errors.New("usage: todd sessions show <session-id>")
		}
		return runSessionsShow(ctx, store, args[1])
	case "rename":
		if len(args) < 3 {
			return errors.New("usage: todd sessions rename <session-id> <title>")
		}
		return runSessionsRename(ctx, store, args[1], strings.Join(args[2:], " "))
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: todd sessions delete <session-id>")
		}
		return runSessionsDelete(ctx, store, args[1])
	case "new":
		return runSessionsNew(ctx, store, cfg.Auth.Username, strings.Join(args[1:], " "))
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (*session.Store, *pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	store, err := session.New(pool, slog.Default())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating session store: %w", err)
	}
	return store, pool, nil
}

func runSessionsList(ctx context.Context, store *session.Store, username string) error {
	sessions, err := store.List(ctx, username, sessionsListLimit, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}

	current, err := session.LoadCurrentSessionID()
	if err != nil {
		// A corrupt state file should not break listing.
		current = nil
	}

	for _, sess := range sessions {
		marker := " "
		if current != nil && *current == sess.ID {
			marker = "*"
		}
		fmt.Printf("%s %s  %-30s  %3d messages  %s\n",
			marker, sess.ID, sess.Title, sess.MessageCount, formatTime(sess.UpdatedAt))
	}
	return nil
}

func runSessionsShow(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", rawID, err)
	}

	sess, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting session: %w", err)
	}
	history, err := store.History(ctx, id)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	fmt.Printf("Session: %s\n", sess.ID)
	fmt.Printf("Title: %s\n", sess.Title)
	fmt.Printf("Created: %s\n", formatTime(sess.CreatedAt))
	fmt.Printf("Updated: %s\n", formatTime(sess.UpdatedAt))
	fmt.Printf("Messages: %d\n", sess.MessageCount)
	fmt.Println()

	for _, turn := range history {
		speaker := "You"
		if turn.Role != "user" {
			speaker = "Todd"
		}
		fmt.Printf("%s> %s\n\n", speaker, turn.Content)
	}
	return nil
}

func runSessionsRename(ctx context.Context, store *session.Store, rawID, title string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", rawID, err)
	}
	if err := store.Rename(ctx, id, title); err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}
	fmt.Printf("Renamed %s to %q\n", id, title)
	return nil
}

func runSessionsDelete(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", rawID, err)
	}
	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	// Clear the resume pointer when it refers to the deleted session.
	if current, loadErr := session.LoadCurrentSessionID(); loadErr == nil && current != nil && *current == id {
		if clearErr := session.ClearCurrentSessionID(); clearErr != nil {
			slog.Warn("clearing session state", "error", clearErr)
		}
	}

	fmt.Printf("Deleted %s\n", id)
	return nil
}

func runSessionsNew(ctx context.Context, store *session.Store, username, title string) error {
	if title == "" {
		title = "New conversation"
	}
	sess, err := store.Create(ctx, username, title)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err := session.SaveCurrentSessionID(sess.ID); err != nil {
		slog.Warn("saving session state", "error", err)
	}
	fmt.Printf("Created %s (%q)\n", sess.ID, sess.Title)
	return nil
}

// formatTime formats time in a human-readable format.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
