package backend

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// newTestManager builds a Manager over the given dialer with a long
// health interval so the probe never fires during the test.
func newTestManager(t *testing.T, dialer Dialer) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Dialer:         dialer,
		ServiceToken:   "service-token",
		Logger:         slog.New(slog.DiscardHandler),
		HealthInterval: time.Hour,
		CallTimeout:    5 * time.Second,
		Backoff:        Policy{Initial: time.Millisecond, Max: 4 * time.Millisecond, MaxAttempts: 3},
	})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func taskTools() []*mcp.Tool {
	return []*mcp.Tool{
		{Name: "task_create", Description: "Create a task"},
		{Name: "task_list", Description: "List tasks"},
	}
}

func testUser() *UserContext {
	return &UserContext{Username: "ada", Database: "ada-tasks", Token: "user-token"}
}

func TestManagerInitialize(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{session: &fakeSession{tools: taskTools()}}}}
	m := newTestManager(t, dialer)

	if got := m.State(); got != StateDisconnected {
		t.Fatalf("initial State() = %v, want %v", got, StateDisconnected)
	}

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
	if got := len(m.Tools()); got != 2 {
		t.Errorf("len(Tools()) = %d, want 2", got)
	}

	metrics := m.Metrics()
	if metrics.ConnectAttempts != 1 || metrics.ConnectSuccesses != 1 || metrics.ConnectFailures != 0 {
		t.Errorf("Metrics() = %+v, want 1 attempt, 1 success, 0 failures", metrics)
	}
	if metrics.LastConnectedAt.IsZero() {
		t.Error("Metrics().LastConnectedAt is zero after connect")
	}
}

// Discovery carries each tool's typed input schema into the catalog.
// The wire field is untyped, so a schema arriving in any other shape
// degrades to nil instead of failing discovery.
func TestManagerInitialize_SchemaDiscovery(t *testing.T) {
	schema := &jsonschema.Schema{Type: "object"}
	dialer := &fakeDialer{script: []dialResult{{session: &fakeSession{tools: []*mcp.Tool{
		{Name: "task_create", Description: "Create a task", InputSchema: schema},
		{Name: "task_list", Description: "List tasks", InputSchema: map[string]any{"type": "object"}},
	}}}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	tools := m.Tools()
	if len(tools) != 2 {
		t.Fatalf("len(Tools()) = %d, want 2", len(tools))
	}
	if tools[0].InputSchema != schema {
		t.Errorf("InputSchema for %q = %v, want the discovered schema", tools[0].Name, tools[0].InputSchema)
	}
	if tools[1].InputSchema != nil {
		t.Errorf("InputSchema for %q = %v, want nil for an untyped payload", tools[1].Name, tools[1].InputSchema)
	}
}

// Initialize while already Connected must be a logged no-op: no second
// dial, no second metric increment.
func TestManagerInitialize_Idempotent(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{session: &fakeSession{tools: taskTools()}}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize() unexpected error: %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() unexpected error: %v", err)
	}

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if got := m.Metrics().ConnectAttempts; got != 1 {
		t.Errorf("ConnectAttempts = %d, want 1", got)
	}
}

func TestManagerInitialize_TransportFailure(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: syscall.ECONNREFUSED}}}
	m := newTestManager(t, dialer)

	err := m.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() expected error, got nil")
	}
	if !IsConnectionError(err) {
		t.Errorf("Initialize() error = %v, want connection error", err)
	}
	if got := m.State(); got != StateFailed {
		t.Errorf("State() after failed connect = %v, want %v", got, StateFailed)
	}
	if got := m.Metrics().ConnectFailures; got != 1 {
		t.Errorf("ConnectFailures = %d, want 1", got)
	}
}

// A discovery failure after a successful dial must close the dialed
// session, not leak it.
func TestManagerInitialize_DiscoveryFailureClosesSession(t *testing.T) {
	broken := &fakeSession{listErr: syscall.ECONNRESET}
	dialer := &fakeDialer{script: []dialResult{{session: broken}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() expected error, got nil")
	}
	if !broken.wasClosed() {
		t.Error("session not closed after discovery failure")
	}
}

func TestManagerInitialize_AuthFailurePropagates(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: &AuthError{Status: 401}}}}
	m := newTestManager(t, dialer)

	err := m.Initialize(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Initialize() error = %v, want *AuthError", err)
	}
	if IsConnectionError(err) {
		t.Error("auth failure classified as connection error")
	}
}

func TestManagerInvoke_Preconditions(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{session: &fakeSession{tools: taskTools()}}}}
	m := newTestManager(t, dialer)

	tests := []struct {
		name string
		init bool
		user *UserContext
	}{
		{"not connected", false, testUser()},
		{"nil user context", true, nil},
		{"missing credential", true, &UserContext{Username: "ada"}},
		{"missing username", true, &UserContext{Token: "user-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.init {
				if err := m.Initialize(context.Background()); err != nil {
					t.Fatalf("Initialize() unexpected error: %v", err)
				}
			}
			stateBefore := m.State()

			_, err := m.Invoke(context.Background(), "task_list", nil, tt.user)

			var preErr *PreconditionError
			if !errors.As(err, &preErr) {
				t.Fatalf("Invoke() error = %v, want *PreconditionError", err)
			}
			if got := m.State(); got != stateBefore {
				t.Errorf("State() changed %v -> %v on precondition failure", stateBefore, got)
			}
		})
	}
}

func TestManagerInvoke_PerUserSubSession(t *testing.T) {
	base := &fakeSession{tools: taskTools()}
	sub := &fakeSession{result: &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: `{"id":"t1","title":"buy milk"}`}},
	}}
	dialer := &fakeDialer{script: []dialResult{{session: base}, {session: sub}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	got, err := m.Invoke(context.Background(), "task_create", map[string]any{"title": "buy milk"}, testUser())
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}
	if want := `{"id":"t1","title":"buy milk"}`; got != want {
		t.Errorf("Invoke() = %q, want %q", got, want)
	}

	// Sub-session must be closed after the single call; the base
	// session stays open.
	if !sub.wasClosed() {
		t.Error("user sub-session not closed after call")
	}
	if base.wasClosed() {
		t.Error("base session closed by a user invocation")
	}

	// The second dial must carry the user's credential and namespace,
	// not the service token.
	creds := dialer.dialCredentials()
	if len(creds) != 2 {
		t.Fatalf("dial count = %d, want 2", len(creds))
	}
	if creds[0].Token != "service-token" || creds[0].Database != "" {
		t.Errorf("base dial credential = %+v, want service token without namespace", creds[0])
	}
	if creds[1].Token != "user-token" || creds[1].Database != "ada-tasks" {
		t.Errorf("user dial credential = %+v, want user token and namespace", creds[1])
	}
}

func TestManagerInvoke_ToolError(t *testing.T) {
	base := &fakeSession{tools: taskTools()}
	sub := &fakeSession{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "title is required"}},
	}}
	dialer := &fakeDialer{script: []dialResult{{session: base}, {session: sub}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	_, err := m.Invoke(context.Background(), "task_create", nil, testUser())

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Invoke() error = %v, want *ToolError", err)
	}
	if toolErr.Message != "title is required" {
		t.Errorf("ToolError.Message = %q, want %q", toolErr.Message, "title is required")
	}
	if !sub.wasClosed() {
		t.Error("sub-session not closed after tool error")
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v after tool error, want %v", got, StateConnected)
	}
}

func TestManagerTools_DefensiveCopy(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{session: &fakeSession{tools: taskTools()}}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	first := m.Tools()
	first[0].Name = "mutated"

	second := m.Tools()
	if second[0].Name != "task_create" {
		t.Errorf("catalog mutated through returned slice: %q", second[0].Name)
	}
}

func TestManagerClose(t *testing.T) {
	base := &fakeSession{tools: taskTools()}
	dialer := &fakeDialer{script: []dialResult{{session: base}}}
	m := newTestManager(t, dialer)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after Close = %v, want %v", got, StateDisconnected)
	}
	if !base.wasClosed() {
		t.Error("base session not closed")
	}
	if got := len(m.Tools()); got != 0 {
		t.Errorf("len(Tools()) after Close = %d, want 0", got)
	}
	if m.Metrics().LastDisconnectedAt.IsZero() {
		t.Error("LastDisconnectedAt not recorded on Close")
	}
}
