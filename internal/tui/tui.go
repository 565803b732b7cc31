// Package tui provides the Bubble Tea terminal interface for todd.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/google/uuid"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/backend"
	"github.com/toddbot/todd/internal/session"
	"github.com/toddbot/todd/internal/status"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput   State = iota // awaiting user input
	StateWorking              // a conversation run is in flight
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 100 // maximum messages stored
	maxHistory  = 100 // maximum command history entries
)

// runTimeout caps a single conversation run.
const runTimeout = 5 * time.Minute

// Message role constants for consistent display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // two separator lines (above and below input)
	helpLines      = 1 // help bar height
	promptLines    = 1 // prompt prefix line
	minViewport    = 3 // minimum viewport height
)

// Message represents a conversation message for display.
type Message struct {
	Role string // "user", "assistant", "system", "error"
	Text string
}

// Runner executes one bounded conversation. *agent.Agent satisfies it.
type Runner interface {
	RunWithHistory(ctx context.Context, user *backend.UserContext, history []agent.Turn, input string) (*agent.State, error)
}

// Config holds TUI construction parameters.
type Config struct {
	Runner Runner
	User   *backend.UserContext

	// Status receives the agent's progress updates. The TUI holds the
	// consuming end; the agent's reporter owns the sending end.
	Status <-chan status.Update

	// Sessions persists conversation turns when set. Nil disables
	// persistence (one-off runs).
	Sessions  *session.Store
	SessionID uuid.UUID

	// History seeds the conversation with a resumed session's turns.
	History []agent.Turn

	Logger *slog.Logger
}

// TUI is the Bubble Tea model for the todd terminal interface.
type TUI struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time
	activity  string // current progress line while working

	// Output
	spinner  spinner.Model
	viewBuf  strings.Builder // reusable buffer for View() to reduce allocations
	messages []Message

	// Scrollable message viewport
	viewport viewport.Model

	// Help bar for keyboard shortcuts
	help help.Model
	keys keyMap

	// Run management. Bubble Tea's event loop provides the
	// synchronization; results and status updates arrive as messages.
	runCancel context.CancelFunc
	resultCh  <-chan runResult
	statusCh  <-chan status.Update

	// Dependencies
	runner    Runner
	user      *backend.UserContext
	sessions  *session.Store
	sessionID uuid.UUID
	turns     []agent.Turn // conversation context carried across runs
	logger    *slog.Logger
	ctx       context.Context
	ctxCancel context.CancelFunc // for canceling all operations on exit

	// Dimensions
	width  int
	height int

	// Styles
	styles Styles

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// addMessage appends a message and enforces the maxMessages bound.
func (t *TUI) addMessage(msg Message) {
	t.messages = append(t.messages, msg)
	if len(t.messages) > maxMessages {
		t.messages = t.messages[len(t.messages)-maxMessages:]
	}
}

// New creates a TUI model for chat interaction.
//
// IMPORTANT: ctx MUST be the same context passed to tea.WithContext()
// to ensure consistent cancellation behavior.
func New(ctx context.Context, cfg Config) (*TUI, error) {
	if cfg.Runner == nil {
		return nil, errors.New("tui.New: runner is required")
	}
	if cfg.User == nil {
		return nil, errors.New("tui.New: user is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Cancellable context for cleanup on exit.
	ctx, cancel := context.WithCancel(ctx)

	// Enter submits, Shift+Enter adds a newline.
	ta := textarea.New()
	ta.Placeholder = "Ask about your tasks..."
	ta.SetHeight(1)
	ta.SetWidth(120) // updated on WindowSizeMsg
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Viewport keys are routed explicitly in handleKey to avoid
	// conflicts with textarea/history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	h := help.New()

	return &TUI{
		runner:    cfg.Runner,
		user:      cfg.User,
		sessions:  cfg.Sessions,
		sessionID: cfg.SessionID,
		turns:     append([]agent.Turn(nil), cfg.History...),
		statusCh:  cfg.Status,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      h,
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80, // default until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (t *TUI) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		t.spinner.Tick,
		t.input.Focus(),
		listenForStatus(t.statusCh),
	)
}

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (t *TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return t.handleKey(msg)

	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.height = msg.Height

		// Viewport height: total - input - separators - help.
		inputHeight := t.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		t.viewport.SetWidth(msg.Width)
		t.viewport.SetHeight(vpHeight)
		t.input.SetWidth(msg.Width - 4) // room for "> " prompt
		t.help.SetWidth(msg.Width)
		t.markdown.UpdateWidth(msg.Width)

		t.rebuildViewportContent()
		return t, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return t, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		t.spinner, cmd = t.spinner.Update(msg)
		if t.state == StateWorking {
			t.rebuildViewportContent()
		}
		return t, cmd

	case runStartedMsg:
		t.runCancel = msg.cancel
		t.resultCh = msg.resultCh
		t.state = StateWorking
		t.activity = "Thinking..."
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		return t, listenForRun(msg.resultCh)

	case statusMsg:
		// Exactly one status listener exists at a time: it is restarted
		// here and nowhere else. Updates while idle are dropped.
		if t.state == StateWorking {
			t.activity = activityLine(msg.update)
			t.rebuildViewportContent()
			t.viewport.GotoBottom()
		}
		return t, listenForStatus(t.statusCh)

	case runDoneMsg:
		if msg.from != t.resultCh {
			// Stale result from a canceled run.
			return t, nil
		}
		return t.finishRun(msg)

	case runErrorMsg:
		if msg.from != t.resultCh {
			return t, nil
		}
		t.endRun()
		switch {
		case errors.Is(msg.err, context.Canceled):
			t.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			t.addMessage(Message{Role: roleError, Text: "Conversation timeout (>5 min). Try a simpler request."})
		default:
			t.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		return t, t.input.Focus()
	}

	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return t, cmd
}

// finishRun folds a completed run into the display and the carried
// conversation context.
func (t *TUI) finishRun(msg runDoneMsg) (tea.Model, tea.Cmd) {
	t.endRun()

	state := msg.state
	t.turns = append([]agent.Turn(nil), state.Turns...)

	output := state.Output
	if output == "" {
		output = "(no answer)"
	}
	t.addMessage(Message{Role: roleAssistant, Text: output})
	if !state.Done {
		t.addMessage(Message{Role: roleSystem, Text: "(Stopped at the iteration limit; the answer above may be incomplete.)"})
	}

	t.rebuildViewportContent()
	t.viewport.GotoBottom()
	return t, t.input.Focus()
}

// endRun releases the in-flight run's resources.
func (t *TUI) endRun() {
	t.state = StateInput
	t.activity = ""
	if t.runCancel != nil {
		t.runCancel()
		t.runCancel = nil
	}
	t.resultCh = nil
}

// activityLine maps a progress update to the indicator text.
func activityLine(u status.Update) string {
	switch u.Kind {
	case status.KindThinking:
		return "Thinking..."
	case status.KindCallingTool:
		if u.Detail != "" {
			return u.Detail
		}
		return "Calling a tool..."
	default:
		return "Working..."
	}
}

// View implements tea.Model.
// Uses AltScreen with a viewport for scrollable message history.
func (t *TUI) View() tea.View {
	t.viewBuf.Reset()

	_, _ = t.viewBuf.WriteString(t.viewport.View())
	_, _ = t.viewBuf.WriteString("\n")

	_, _ = t.viewBuf.WriteString(t.renderSeparator())
	_, _ = t.viewBuf.WriteString("\n")

	// Input prompt always accepts typing, even while a run is in
	// flight, so the next message can be prepared early.
	_, _ = t.viewBuf.WriteString(t.styles.Prompt.Render("> "))
	_, _ = t.viewBuf.WriteString(t.input.View())
	_, _ = t.viewBuf.WriteString("\n")

	_, _ = t.viewBuf.WriteString(t.renderSeparator())
	_, _ = t.viewBuf.WriteString("\n")

	_, _ = t.viewBuf.WriteString(t.renderStatusBar())

	v := tea.NewView(t.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from
// messages and state. Called when messages, activity, or dimensions
// change.
func (t *TUI) rebuildViewportContent() {
	var b strings.Builder

	_, _ = b.WriteString(t.styles.RenderBanner())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(t.styles.RenderWelcomeTips())
	_, _ = b.WriteString("\n")

	// Messages (already bounded by addMessage).
	for _, msg := range t.messages {
		switch msg.Role {
		case roleUser:
			_, _ = b.WriteString(t.styles.User.Render("You> "))
			_, _ = b.WriteString(msg.Text)
		case roleAssistant:
			_, _ = b.WriteString(t.styles.Assistant.Render("Todd> "))
			_, _ = b.WriteString(t.markdown.Render(msg.Text))
		case roleSystem:
			_, _ = b.WriteString(t.styles.System.Render(msg.Text))
		case roleError:
			_, _ = b.WriteString(t.styles.Error.Render("Error: " + msg.Text))
		}
		_, _ = b.WriteString("\n\n")
	}

	// Activity indicator while a run is in flight.
	if t.state == StateWorking {
		_, _ = b.WriteString(t.spinner.View())
		_, _ = b.WriteString(" ")
		_, _ = b.WriteString(t.styles.System.Render(t.activity))
		_, _ = b.WriteString("\n\n")
	}

	t.viewport.SetContent(b.String())
}

// renderSeparator returns a horizontal line separator.
func (t *TUI) renderSeparator() string {
	width := t.width
	if width <= 0 {
		width = 80
	}
	return t.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar returns state-appropriate keyboard shortcut help.
func (t *TUI) renderStatusBar() string {
	var bindings []key.Binding
	switch t.state {
	case StateInput:
		bindings = []key.Binding{
			t.keys.Submit, t.keys.NewLine, t.keys.History,
			t.keys.Cancel, t.keys.Quit, t.keys.ScrollUp,
		}
	case StateWorking:
		bindings = []key.Binding{
			t.keys.EscCancel, t.keys.Cancel,
			t.keys.ScrollUp, t.keys.ScrollDown,
		}
	}
	return t.help.ShortHelpView(bindings)
}
