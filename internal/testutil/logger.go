package testutil

import "log/slog"

// DiscardLogger returns a logger whose output goes nowhere. Every
// component takes a *slog.Logger; tests that do not assert on log
// output pass this one.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
