package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/status"
	"github.com/toddbot/todd/internal/testutil"
)

// fakeRunner returns a scripted state or error and records what it
// was called with.
type fakeRunner struct {
	mu      sync.Mutex
	state   *agent.State
	err     error
	calls   int
	history []agent.Turn
	input   string
}

func (f *fakeRunner) RunWithHistory(_ context.Context, _ *backend.UserContext, history []agent.Turn, input string) (*agent.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = append([]agent.Turn(nil), history...)
	f.input = input
	return f.state, f.err
}

func doneState(input, output string) *agent.State {
	return &agent.State{
		Input: input,
		Turns: []agent.Turn{
			{Role: agent.RoleUser, Content: input},
			{Role: agent.RoleAssistant, Content: output},
		},
		Done:   true,
		Output: output,
	}
}

func newTestTUI(t *testing.T, runner Runner) *TUI {
	t.Helper()

	statusCh := make(chan status.Update, 8)
	ui, err := New(context.Background(), Config{
		Runner: runner,
		User:   &backend.UserContext{Username: "ada", Database: "ada-tasks", Token: "tok"},
		Status: statusCh,
		Logger: testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	t.Cleanup(func() { ui.cleanup() })
	return ui
}

// runConversation drives one full submit/run/complete cycle through
// Update, the way the Bubble Tea event loop would.
func runConversation(t *testing.T, ui *TUI, input string) {
	t.Helper()

	ui.input.SetValue(input)
	if _, cmd := ui.handleSubmit(); cmd == nil {
		t.Fatal("handleSubmit() returned nil command")
	}
	if ui.state != StateWorking {
		t.Fatalf("state after submit = %v, want StateWorking", ui.state)
	}

	started, ok := ui.startRun(input)().(runStartedMsg)
	if !ok {
		t.Fatal("startRun command did not produce runStartedMsg")
	}
	if _, cmd := ui.Update(started); cmd == nil {
		t.Fatal("Update(runStartedMsg) returned nil command")
	}

	result := listenForRun(started.resultCh)()
	if result == nil {
		t.Fatal("listenForRun produced nil message")
	}
	ui.Update(result)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	user := &backend.UserContext{Username: "ada", Token: "tok"}

	if _, err := New(context.Background(), Config{User: user}); err == nil {
		t.Error("New() without runner error = nil, want error")
	}
	if _, err := New(context.Background(), Config{Runner: &fakeRunner{}}); err == nil {
		t.Error("New() without user error = nil, want error")
	}
}

func TestConversation_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{state: doneState("what's on my list?", "Just milk.")}
	ui := newTestTUI(t, runner)

	runConversation(t, ui, "what's on my list?")

	if ui.state != StateInput {
		t.Errorf("state after completion = %v, want StateInput", ui.state)
	}
	if runner.input != "what's on my list?" {
		t.Errorf("runner input = %q, want the submitted text", runner.input)
	}

	var roles []string
	for _, msg := range ui.messages {
		roles = append(roles, msg.Role)
	}
	want := []string{roleUser, roleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("messages = %v, want roles %v", roles, want)
	}
	if ui.messages[1].Text != "Just milk." {
		t.Errorf("assistant message = %q, want %q", ui.messages[1].Text, "Just milk.")
	}

	// The finished run's turns become the next run's history.
	if len(ui.turns) != 2 {
		t.Errorf("carried turns = %d, want 2", len(ui.turns))
	}
}

func TestConversation_CarriesHistory(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{state: doneState("first", "one")}
	ui := newTestTUI(t, runner)

	runConversation(t, ui, "first")

	runner.mu.Lock()
	runner.state = doneState("second", "two")
	runner.mu.Unlock()

	runConversation(t, ui, "second")

	if len(runner.history) != 2 {
		t.Fatalf("second run saw %d history turns, want 2", len(runner.history))
	}
	if runner.history[0].Content != "first" || runner.history[1].Content != "one" {
		t.Errorf("second run history = %+v, want first exchange", runner.history)
	}
}

func TestConversation_Error(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("model generation failed: boom")}
	ui := newTestTUI(t, runner)

	runConversation(t, ui, "hello")

	if ui.state != StateInput {
		t.Errorf("state after error = %v, want StateInput", ui.state)
	}
	last := ui.messages[len(ui.messages)-1]
	if last.Role != roleError {
		t.Errorf("last message role = %q, want error", last.Role)
	}
	if !strings.Contains(last.Text, "boom") {
		t.Errorf("error message = %q, want cause included", last.Text)
	}
}

func TestConversation_IterationLimitNote(t *testing.T) {
	t.Parallel()

	capped := doneState("loop", "partial answer")
	capped.Done = false
	runner := &fakeRunner{
		state: capped,
		err:   fmt.Errorf("after 3 iterations: %w", agent.ErrIterationLimit),
	}
	ui := newTestTUI(t, runner)

	runConversation(t, ui, "loop")

	// The degraded answer is shown, plus a note that it is partial.
	var texts []string
	for _, msg := range ui.messages {
		texts = append(texts, msg.Role+":"+msg.Text)
	}
	if len(ui.messages) != 3 {
		t.Fatalf("messages = %v, want user, assistant, system note", texts)
	}
	if ui.messages[1].Text != "partial answer" {
		t.Errorf("assistant message = %q, want the degraded answer", ui.messages[1].Text)
	}
	if ui.messages[2].Role != roleSystem {
		t.Errorf("final message role = %q, want system note", ui.messages[2].Role)
	}
}

func TestUpdate_StaleRunResultIgnored(t *testing.T) {
	t.Parallel()

	ui := newTestTUI(t, &fakeRunner{state: doneState("x", "y")})

	stale := make(chan runResult, 1)
	before := len(ui.messages)
	ui.Update(runDoneMsg{from: stale, state: doneState("x", "y")})
	if len(ui.messages) != before {
		t.Error("stale runDoneMsg appended a message")
	}
	ui.Update(runErrorMsg{from: stale, err: errors.New("old")})
	if len(ui.messages) != before {
		t.Error("stale runErrorMsg appended a message")
	}
}

func TestUpdate_StatusWhileWorking(t *testing.T) {
	t.Parallel()

	ui := newTestTUI(t, &fakeRunner{state: doneState("x", "y")})
	ui.state = StateWorking

	_, cmd := ui.Update(statusMsg{update: status.Update{Kind: status.KindCallingTool, Detail: "Checking your list."}})
	if ui.activity != "Checking your list." {
		t.Errorf("activity = %q, want the status detail", ui.activity)
	}
	if cmd == nil {
		t.Error("statusMsg handler did not restart the listener")
	}

	// Idle updates change nothing but keep the listener alive.
	ui.state = StateInput
	ui.activity = ""
	_, cmd = ui.Update(statusMsg{update: status.Update{Kind: status.KindThinking}})
	if ui.activity != "" {
		t.Errorf("activity while idle = %q, want empty", ui.activity)
	}
	if cmd == nil {
		t.Error("idle statusMsg handler did not restart the listener")
	}
}

func TestActivityLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		update status.Update
		want   string
	}{
		{name: "thinking", update: status.Update{Kind: status.KindThinking}, want: "Thinking..."},
		{name: "tool with detail", update: status.Update{Kind: status.KindCallingTool, Detail: "Adding milk."}, want: "Adding milk."},
		{name: "tool without detail", update: status.Update{Kind: status.KindCallingTool}, want: "Calling a tool..."},
		{name: "working ping", update: status.Update{Kind: status.KindWorking}, want: "Working..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := activityLine(tt.update); got != tt.want {
				t.Errorf("activityLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlashCommands(t *testing.T) {
	t.Parallel()

	ui := newTestTUI(t, &fakeRunner{state: doneState("x", "y")})

	ui.input.SetValue(cmdHelp)
	ui.handleSubmit()
	if len(ui.messages) != 1 || ui.messages[0].Role != roleSystem {
		t.Fatalf("after /help messages = %+v, want one system message", ui.messages)
	}

	ui.input.SetValue("/bogus")
	ui.handleSubmit()
	if last := ui.messages[len(ui.messages)-1]; last.Role != roleError {
		t.Errorf("after unknown command last role = %q, want error", last.Role)
	}

	ui.input.SetValue(cmdClear)
	ui.handleSubmit()
	if len(ui.messages) != 0 {
		t.Errorf("after /clear messages = %d, want 0", len(ui.messages))
	}
}

func TestNavigateHistory(t *testing.T) {
	t.Parallel()

	ui := newTestTUI(t, &fakeRunner{state: doneState("x", "y")})
	ui.history = []string{"first", "second"}
	ui.historyIdx = len(ui.history)

	ui.navigateHistory(-1)
	if got := ui.input.Value(); got != "second" {
		t.Errorf("after up input = %q, want %q", got, "second")
	}
	ui.navigateHistory(-1)
	if got := ui.input.Value(); got != "first" {
		t.Errorf("after up up input = %q, want %q", got, "first")
	}
	// Past the oldest entry stays at the oldest.
	ui.navigateHistory(-1)
	if got := ui.input.Value(); got != "first" {
		t.Errorf("past oldest input = %q, want %q", got, "first")
	}
	ui.navigateHistory(1)
	ui.navigateHistory(1)
	if got := ui.input.Value(); got != "" {
		t.Errorf("back past newest input = %q, want empty", got)
	}
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	t.Parallel()

	ui := newTestTUI(t, &fakeRunner{state: doneState("x", "y")})
	ui.input.SetValue("   ")
	_, cmd := ui.handleSubmit()
	if cmd != nil {
		t.Error("handleSubmit() on blank input returned a command")
	}
	if ui.state != StateInput {
		t.Errorf("state = %v, want StateInput", ui.state)
	}
}
