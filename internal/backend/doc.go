// Package backend manages the long-lived connection to the remote
// task-management backend and the tool catalog it exposes over MCP.
//
// The package is built around three cooperating pieces:
//
//   - Manager owns the connection lifecycle state machine and the
//     discovered tool catalog. It exposes Initialize, Invoke, Tools,
//     Close, State and Metrics.
//   - Monitor runs a periodic liveness probe against the shared base
//     session and drives reconnection with capped exponential backoff
//     when the probe fails. After the configured number of failed
//     reconnect attempts it gives up permanently (fail-stop).
//   - Each Invoke opens a short-lived sub-session authenticated as the
//     acting user, issues exactly one tool call, and tears the
//     sub-session down. Per-user credentials never enter shared state.
//
// Errors crossing the package boundary are typed (ConnectError,
// AuthError, ToolError, PreconditionError) so callers classify with
// errors.As, never by matching error text.
package backend
