package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/status"
)

// persistTimeout bounds the write that saves a finished run's turns.
// It uses its own context because the run context may already be
// canceled by the time persistence happens.
const persistTimeout = 10 * time.Second

// runResult is the terminal event of one conversation run. state is
// non-nil for the iteration-cap soft failure as well as for success.
type runResult struct {
	state *agent.State
	err   error
}

// Bubble Tea message types for run lifecycle.
type runStartedMsg struct {
	resultCh <-chan runResult
	cancel   context.CancelFunc
}

// runDoneMsg and runErrorMsg carry the channel they came from so a
// stale result from a canceled run is distinguishable from the
// current run's outcome.
type runDoneMsg struct {
	from  <-chan runResult
	state *agent.State
}

type runErrorMsg struct {
	from <-chan runResult
	err  error
}

type statusMsg struct {
	update status.Update
}

// startRun creates a command that launches one conversation run.
//
// Goroutine lifecycle: the spawned goroutine exits when the run
// returns, which the agent bounds by its iteration cap and this
// command bounds by runTimeout. The buffered result channel means the
// send never blocks, so cancellation can never strand the goroutine.
func (t *TUI) startRun(input string) tea.Cmd {
	runner := t.runner
	user := t.user
	sessions := t.sessions
	sessionID := t.sessionID
	logger := t.logger
	seed := append([]agent.Turn(nil), t.turns...)

	return func() tea.Msg {
		resultCh := make(chan runResult, 1)
		ctx, cancel := context.WithTimeout(t.ctx, runTimeout)

		go func() {
			state, err := runner.RunWithHistory(ctx, user, seed, input)

			// The iteration cap returns both a state and an error;
			// surface the degraded answer rather than the error.
			if state != nil && errors.Is(err, agent.ErrIterationLimit) {
				err = nil
			}

			if state != nil && sessions != nil {
				persistCtx, persistCancel := context.WithTimeout(context.Background(), persistTimeout)
				fresh := state.Turns[len(seed):]
				if persistErr := sessions.AppendTurns(persistCtx, sessionID, fresh); persistErr != nil {
					logger.Warn("persisting conversation turns", "error", persistErr)
				}
				persistCancel()
			}

			if err != nil {
				resultCh <- runResult{err: fmt.Errorf("conversation failed: %w", err)}
				return
			}
			resultCh <- runResult{state: state}
		}()

		return runStartedMsg{resultCh: resultCh, cancel: cancel}
	}
}

// listenForRun creates a command that waits for the run's terminal
// event.
func listenForRun(resultCh <-chan runResult) tea.Cmd {
	return func() tea.Msg {
		if resultCh == nil {
			return nil
		}
		res := <-resultCh
		if res.err != nil {
			return runErrorMsg{from: resultCh, err: res.err}
		}
		return runDoneMsg{from: resultCh, state: res.state}
	}
}

// listenForStatus creates a command that waits for the next progress
// update. The handler for statusMsg restarts it, keeping exactly one
// listener alive for the life of the program.
func listenForStatus(statusCh <-chan status.Update) tea.Cmd {
	if statusCh == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-statusCh
		if !ok {
			return nil
		}
		return statusMsg{update: update}
	}
}
