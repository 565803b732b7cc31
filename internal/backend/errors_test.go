package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

// timeoutErr implements net.Error the way transport libraries surface
// deadline failures.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantConn bool
	}{
		{"nil passes through", nil, false},
		{"context deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"net.Error", timeoutErr{}, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe", syscall.EPIPE, true},
		{"application error untouched", errors.New("task not found"), false},
		{"context canceled untouched", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyTransport("call", tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classifyTransport(nil) = %v, want nil", got)
				}
				return
			}
			if IsConnectionError(got) != tt.wantConn {
				t.Errorf("IsConnectionError(%v) = %v, want %v", got, !tt.wantConn, tt.wantConn)
			}
			// The original cause must stay reachable either way.
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error lost its cause: %v", got)
			}
		})
	}
}

// TestClassifyTransport_AuthPassesThrough verifies that a credential
// rejection is never reclassified as a connection error: auth failures
// must not trigger reconnection.
func TestClassifyTransport_AuthPassesThrough(t *testing.T) {
	t.Parallel()

	authErr := &AuthError{Status: 401}
	got := classifyTransport("dial", fmt.Errorf("connect: %w", authErr))

	if IsConnectionError(got) {
		t.Error("auth error was classified as connection error")
	}
	var ae *AuthError
	if !errors.As(got, &ae) {
		t.Errorf("AuthError type lost through classification: %v", got)
	}
}

// TestClassifyTransport_Idempotent verifies double classification does
// not stack ConnectError wrappers.
func TestClassifyTransport_Idempotent(t *testing.T) {
	t.Parallel()

	once := classifyTransport("probe", syscall.ECONNREFUSED)
	twice := classifyTransport("call", once)

	if twice != once { //nolint:errorlint // identity check is the point
		t.Errorf("second classification rewrapped the error: %v", twice)
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"connect", &ConnectError{Op: "dial", Err: errors.New("refused")}, `backend connection: dial: refused`},
		{"auth", &AuthError{Status: 403}, "backend auth: credential rejected (status 403)"},
		{"tool", &ToolError{Tool: "task_create", Message: "title is required"}, `tool "task_create": title is required`},
		{"precondition", &PreconditionError{Reason: "not connected"}, "backend precondition: not connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Guard against accidentally making deadline classification depend on
// wall-clock state.
func TestIsTransportError_Stable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if !isTransportError(ctx.Err()) {
		t.Errorf("expired context error not recognized: %v", ctx.Err())
	}
}
