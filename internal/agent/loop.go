package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/status"
)

// Run executes one bounded conversation for the given user. It loops
// between the model and the backend until the model produces a final
// answer, the iteration cap is reached, or an unrecoverable error
// occurs.
//
// Error contract:
//   - authentication failures and model errors abort the run
//   - tool failures and backend unavailability are fed back to the
//     model as tool turns and never abort the run
//   - hitting the iteration cap returns ErrIterationLimit together
//     with a non-nil State carrying a best-effort Output
func (a *Agent) Run(ctx context.Context, user *backend.UserContext, input string) (*State, error) {
	return a.RunWithHistory(ctx, user, nil, input)
}

// RunWithHistory is Run seeded with turns from an earlier exchange,
// so a resumed session keeps its context. New turns produced by this
// run start at index len(history) of the returned State's Turns.
func (a *Agent) RunWithHistory(ctx context.Context, user *backend.UserContext, history []Turn, input string) (*State, error) {
	state := newState(history, input)
	system := buildSystemPrompt(a.backend.Tools())

	activity := status.StartActivity(a.statusR, a.statusInterval, a.logger)
	defer activity.Stop()

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		a.show(ctx, status.KindThinking, "")

		text, err := a.model.Generate(ctx, system, state.Turns)
		if err != nil {
			return nil, fmt.Errorf("model generation failed: %w", err)
		}
		state.append(RoleAssistant, text)

		result := ParseToolCall(text)
		switch result.Status {
		case ParseNotFound:
			state.Done = true
			state.Output = text
			return state, nil

		case ParseMalformed:
			// Degrade to a final answer rather than crash the run.
			a.logger.Warn("unparseable tool call in model response",
				"error", result.Err)
			state.Done = true
			state.Output = text
			return state, nil

		case ParseFound:
			detail := result.Pre
			if detail == "" {
				detail = result.Call.Name
			}
			a.show(ctx, status.KindCallingTool, detail)

			outcome := a.invoke(ctx, result.Call, user)
			if outcome.abort != nil {
				return nil, outcome.abort
			}
			state.ToolResults = append(state.ToolResults, outcome.record)
			state.append(RoleTool, outcome.turn)
		}
	}

	// Iteration cap is a soft failure: keep whatever answer the model
	// produced last so the caller can still show something useful.
	a.logger.Warn("conversation hit iteration cap",
		"max_iterations", a.maxIterations,
		"turns", len(state.Turns))
	state.Done = false
	state.Output = state.lastAssistant()
	return state, fmt.Errorf("after %d iterations: %w", a.maxIterations, ErrIterationLimit)
}

// invokeOutcome is the loop-facing result of one tool invocation.
// Exactly one of abort or turn is meaningful: abort ends the run,
// turn is the content fed back to the model as the next tool turn.
type invokeOutcome struct {
	abort  error
	turn   string
	record ToolResult
}

// invoke dispatches one tool call and folds the backend's error
// taxonomy into the loop's error contract.
func (a *Agent) invoke(ctx context.Context, call ToolCall, user *backend.UserContext) invokeOutcome {
	content, err := a.backend.Invoke(ctx, call.Name, call.Parameters, user)
	if err == nil {
		a.logger.Debug("tool call succeeded", "tool", call.Name)
		return invokeOutcome{
			turn:   fmt.Sprintf("Tool %s result:\n%s", call.Name, content),
			record: ToolResult{Tool: call.Name, Content: content},
		}
	}

	var authErr *backend.AuthError
	if errors.As(err, &authErr) {
		return invokeOutcome{abort: fmt.Errorf("tool %s: %w", call.Name, err)}
	}

	var toolErr *backend.ToolError
	if errors.As(err, &toolErr) {
		a.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return invokeOutcome{
			turn:   fmt.Sprintf("Tool %s failed: %s", call.Name, toolErr.Message),
			record: ToolResult{Tool: call.Name, Content: toolErr.Message, IsError: true},
		}
	}

	// Connection and precondition failures surface to the model in a
	// sanitized form, without transport detail it could parrot to the
	// user. The backend schedules its own recovery.
	a.logger.Warn("tool call hit unavailable backend", "tool", call.Name, "error", err)
	const unavailable = "the task backend is temporarily unavailable"
	return invokeOutcome{
		turn:   fmt.Sprintf("Tool %s failed: %s.", call.Name, unavailable),
		record: ToolResult{Tool: call.Name, Content: unavailable, IsError: true},
	}
}
