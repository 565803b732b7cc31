// Package app initializes and wires the application's components.
//
// Setup builds everything in dependency order (tracing, database,
// genkit, session store, auth, model client, backend connection) and
// App.Close releases it all in reverse.
package app

import (
	"errors"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/auth"
	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/config"
	"github.com/toddbot/todd/internal/model"
	"github.com/toddbot/todd/internal/session"
	"github.com/toddbot/todd/internal/status"
)

// App is the application container. One exists per process.
type App struct {
	Config   *config.Config
	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Sessions *session.Store
	Auth     *auth.Provider
	Model    *model.Client
	Backend  *backend.Manager

	logger  *slog.Logger
	closers []closer
}

// closer is one teardown step recorded during Setup.
type closer struct {
	name string
	fn   func() error
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases all resources in reverse initialization order. Every
// closer runs even if an earlier one fails; the errors are joined.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("closing component", "component", c.name, "error", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// CreateAgent builds an agent wired to the app's model and backend.
// The status reporter is per-surface (TUI channel, CLI log reporter)
// and therefore supplied by the caller; nil disables progress updates.
func (a *App) CreateAgent(reporter status.Reporter) (*agent.Agent, error) {
	return agent.New(agent.Config{
		Model:          a.Model,
		Backend:        a.Backend,
		Logger:         a.logger,
		Status:         reporter,
		MaxIterations:  a.Config.Agent.MaxIterations,
		StatusInterval: a.Config.Agent.StatusInterval,
	})
}

// UserContext mints a fresh short-lived credential for the configured
// local user. Called per conversation so tokens never outlive their TTL
// by much.
func (a *App) UserContext() (*backend.UserContext, error) {
	return a.Auth.Mint(a.Config.Auth.Username, a.Config.Auth.Database, a.Config.Auth.TokenTTL)
}
