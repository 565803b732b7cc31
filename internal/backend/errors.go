package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ConnectError is a transport-level failure: the request never reached
// the backend, or the connection broke underneath it. ConnectErrors
// drive reconnection and are never surfaced raw to the model.
type ConnectError struct {
	Op  string // operation that failed: "dial", "discovery", "probe", "call"
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("backend connection: %s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the backend rejected the presented credential.
// It is fatal for the operation: never auto-retried, never routed to
// the reconnection path, always propagated to the caller.
type AuthError struct {
	Status int // HTTP status that triggered the rejection (401 or 403)
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("backend auth: credential rejected (status %d)", e.Status)
}

// ToolError is a tool-specific failure reported by the backend in the
// call result payload. It flows back into the conversation so the
// model can self-correct; it never changes connection state.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Message)
}

// PreconditionError reports an Invoke or Initialize called in a state
// that cannot serve it. No state is mutated when one is returned.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "backend precondition: " + e.Reason
}

// classifyTransport wraps err as a *ConnectError when it carries a
// known transport failure signature. Errors already typed by this
// package (AuthError in particular) pass through unchanged, as do
// application-level errors the transport merely delivered.
func classifyTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var connErr *ConnectError
	if errors.As(err, &connErr) {
		return err
	}
	if isTransportError(err) {
		return &ConnectError{Op: op, Err: err}
	}
	return err
}

// isTransportError reports whether err matches a transport failure
// signature: timeouts, refused or reset connections, broken sockets.
// Classification is by type, never by matching error text.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// IsConnectionError reports whether err was classified as a
// transport-level connection failure.
func IsConnectionError(err error) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr)
}
