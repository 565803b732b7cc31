package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor describes one remote tool from the discovered catalog.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// UserContext identifies the end user a tool invocation acts for.
// It is supplied by the caller on every Invoke and never cached inside
// the Manager: per-user credentials must not leak into shared state.
type UserContext struct {
	Username string
	Database string // per-user namespace on the backend
	Token    string // short-lived bearer credential
}

// validate reports why the context cannot authenticate an invocation.
func (u *UserContext) validate() error {
	if u == nil {
		return errors.New("user context is required")
	}
	if u.Username == "" {
		return errors.New("user context has no username")
	}
	if u.Token == "" {
		return errors.New("user context has no credential")
	}
	return nil
}

// Config holds Manager construction parameters.
type Config struct {
	Dialer       Dialer
	ServiceToken string // credential for the shared base session
	Logger       *slog.Logger

	HealthInterval time.Duration // probe period (zero-value uses default)
	CallTimeout    time.Duration // per-request timeout for probe/discovery/calls
	Backoff        Policy        // reconnect policy (zero-value uses defaults)
}

// Default intervals applied for zero-value Config fields.
const (
	defaultHealthInterval = 30 * time.Second
	defaultCallTimeout    = 30 * time.Second
)

// Manager owns the shared base session, its lifecycle state machine
// and the discovered tool catalog. Exactly one Manager exists per
// process; it is constructed at startup and passed by reference.
//
// Manager is safe for concurrent use. The mutex guarantees that only
// one lifecycle transition is in flight at a time.
type Manager struct {
	dialer       Dialer
	serviceToken string
	callTimeout  time.Duration
	logger       *slog.Logger

	monitor *Monitor

	mu      sync.Mutex
	state   State
	base    Session
	tools   []ToolDescriptor
	metrics metrics
}

// NewManager creates a Manager. The connection is not opened until
// Initialize is called.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("backend: dialer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	policy := cfg.Backoff
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		dialer:       cfg.Dialer,
		serviceToken: cfg.ServiceToken,
		callTimeout:  callTimeout,
		logger:       logger,
		state:        StateDisconnected,
	}

	mon := newMonitor(interval, policy, logger.With("component", "health"))
	mon.probe = m.probe
	mon.teardown = m.beginReconnect
	mon.reconnect = m.reattach
	mon.failed = m.markFailed
	m.monitor = mon

	return m, nil
}

// Initialize opens the base session, runs tool discovery and starts
// the health monitor. Idempotent: while Connected, Connecting or
// Reconnecting it is a logged no-op and does not touch metrics.
//
// A transport failure leaves the state Failed and is returned typed to
// the caller, who owns the startup retry policy.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateConnecting, StateReconnecting:
		m.logger.Info("initialize skipped, transition already in flight or connected",
			"state", m.state.String())
		m.mu.Unlock()
		return nil
	case StateDisconnected, StateFailed:
	}
	m.state = StateConnecting
	m.metrics.connectAttempts++
	m.mu.Unlock()

	base, tools, err := m.connect(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateFailed
		m.metrics.connectFailures++
		return err
	}

	m.base = base
	m.tools = tools
	m.state = StateConnected
	m.metrics.recordConnect(time.Now())
	m.monitor.resetAttempts()
	m.monitor.Start()

	m.logger.Info("connected to backend", "tools", len(tools))
	return nil
}

// connect performs the dial + discovery sequence and returns the new
// base session with its catalog. Callers own state bookkeeping.
func (m *Manager) connect(ctx context.Context) (Session, []ToolDescriptor, error) {
	base, err := m.dialer.Dial(ctx, Credential{Token: m.serviceToken})
	if err != nil {
		return nil, nil, classifyTransport("dial", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	result, err := base.ListTools(listCtx, nil)
	if err != nil {
		_ = base.Close()
		return nil, nil, classifyTransport("discovery", err)
	}

	tools := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		// The wire field is untyped; a server-side schema in any other
		// shape degrades to nil rather than failing discovery.
		schema, _ := t.InputSchema.(*jsonschema.Schema)
		tools = append(tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return base, tools, nil
}

// Invoke calls one remote tool as the given user. It requires the
// Manager to be Connected and a usable UserContext; otherwise it fails
// with a PreconditionError without mutating any state.
//
// Transport failures are reported to the health monitor in addition to
// being returned, because a broken sub-connection may mean the shared
// base connection is unhealthy too. Tool-level failures come back as
// *ToolError and never change connection state.
func (m *Manager) Invoke(ctx context.Context, tool string, params map[string]any, user *UserContext) (string, error) {
	if err := user.validate(); err != nil {
		return "", &PreconditionError{Reason: err.Error()}
	}

	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != StateConnected {
		return "", &PreconditionError{Reason: "not connected (state " + state.String() + ")"}
	}

	text, err := m.callAsUser(ctx, tool, params, user)
	if err != nil && IsConnectionError(err) {
		m.monitor.ReportFailure()
	}
	return text, err
}

// Tools returns a defensive copy of the current catalog.
func (m *Manager) Tools() []ToolDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	tools := make([]ToolDescriptor, len(m.tools))
	copy(tools, m.tools)
	return tools
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Metrics returns a snapshot of the connection counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics.snapshot(m.state == StateConnected, time.Now())
}

// Close stops the health monitor (cancelling its probe ticker and any
// pending reconnect wait), tears down the base session and leaves the
// Manager Disconnected.
func (m *Manager) Close() error {
	m.monitor.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.base != nil {
		err = m.base.Close()
		m.base = nil
		m.metrics.recordDisconnect(time.Now())
	}
	m.tools = nil
	m.state = StateDisconnected
	m.logger.Info("backend connection closed")
	return err
}

// probe issues the lightweight discovery call the monitor uses as a
// liveness check. A successful probe does not replace the catalog;
// the catalog changes wholesale on (re)connect only.
func (m *Manager) probe(ctx context.Context) error {
	m.mu.Lock()
	base := m.base
	m.mu.Unlock()
	if base == nil {
		return &ConnectError{Op: "probe", Err: errors.New("no base session")}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	_, err := base.ListTools(probeCtx, nil)
	return classifyTransport("probe", err)
}

// beginReconnect tears down the broken base session and moves the
// state machine to Reconnecting. Called only from the monitor.
func (m *Manager) beginReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base != nil {
		_ = m.base.Close()
		m.base = nil
		m.metrics.recordDisconnect(time.Now())
	}
	m.state = StateReconnecting
	m.logger.Info("base session torn down, reconnecting")
}

// reattach is one reconnect attempt: full dial + discovery, replacing
// the catalog wholesale on success. Called only from the monitor.
func (m *Manager) reattach(ctx context.Context) error {
	m.mu.Lock()
	m.metrics.connectAttempts++
	m.mu.Unlock()

	base, tools, err := m.connect(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.metrics.connectFailures++
		return err
	}
	m.base = base
	m.tools = tools
	m.state = StateConnected
	m.metrics.recordConnect(time.Now())
	return nil
}

// markFailed is the monitor's terminal fail-stop: reconnection has
// been abandoned and no further timers will fire.
func (m *Manager) markFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base != nil {
		_ = m.base.Close()
		m.base = nil
	}
	m.state = StateFailed
	m.logger.Error("backend connection permanently failed")
}

// textContent flattens a call result's content to plain text.
func textContent(result *mcp.CallToolResult) string {
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
