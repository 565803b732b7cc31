// Package status is the one-way, best-effort side channel for interim
// progress indicators shown to the end user while the agent works.
//
// Nothing in this package may ever fail the caller: reporter errors
// are logged and swallowed, and channel-backed reporters drop updates
// rather than block. The periodic activity indicator runs on its own
// timer, independent of the agent loop's turn boundaries, and must be
// stopped explicitly on every loop exit path.
package status

import (
	"context"
	"log/slog"
)

// Kind identifies what the agent is currently doing.
type Kind string

// Progress indicator kinds.
const (
	KindThinking    Kind = "thinking"     // waiting on the model
	KindCallingTool Kind = "calling_tool" // a tool invocation is in flight
	KindWorking     Kind = "working"      // generic periodic activity ping
)

// Update is one progress event. Detail is optional free text
// accompanying the kind (for example the model's interim status line
// preceding a tool call).
type Update struct {
	Kind   Kind
	Detail string
}

// Reporter delivers progress indicators to the user. Implementations
// must be safe for concurrent use; a returned error means delivery
// failed and the caller will log and drop it.
type Reporter interface {
	Show(ctx context.Context, kind Kind, detail string) error
}

// NopReporter discards all updates.
type NopReporter struct{}

// Show implements Reporter.
func (NopReporter) Show(context.Context, Kind, string) error { return nil }

// LogReporter writes updates to a logger at debug level. Useful for
// the one-shot CLI path, where there is no interactive surface.
type LogReporter struct {
	Logger *slog.Logger
}

// Show implements Reporter.
func (r LogReporter) Show(_ context.Context, kind Kind, detail string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("status", "kind", string(kind), "detail", detail)
	return nil
}

// ChannelReporter forwards updates into a channel, typically bridged
// to a UI event loop. Sends are best-effort: when the channel is full
// the update is dropped so a stalled consumer can never stall the
// agent.
type ChannelReporter struct {
	C chan<- Update
}

// Show implements Reporter.
func (r ChannelReporter) Show(_ context.Context, kind Kind, detail string) error {
	select {
	case r.C <- Update{Kind: kind, Detail: detail}:
	default:
		// Consumer is behind; dropping is the contract.
	}
	return nil
}
