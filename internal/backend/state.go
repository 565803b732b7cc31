package backend

// State represents the connection lifecycle state.
type State int

// Connection lifecycle states. Transitions are monotonic within one
// attempt cycle; only one lifecycle transition is in flight at a time.
const (
	// StateDisconnected is the initial state, and the state after Close.
	StateDisconnected State = iota
	// StateConnecting means Initialize is dialing the base session.
	StateConnecting
	// StateConnected means the base session is up and the catalog is populated.
	StateConnected
	// StateReconnecting means the health monitor is re-establishing the base session.
	StateReconnecting
	// StateFailed is terminal: reconnection was abandoned after the
	// configured number of attempts, or the first connect failed.
	StateFailed
)

// String returns the string representation of the connection state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
