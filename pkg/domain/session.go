package domain

// SessionState describes the state of the session with the coordination
// service as reported by the client adapter.
type SessionState int

const (
	// SessionDisconnected is the initial state, before the first
	// connection is established.
	SessionDisconnected SessionState = iota

	// SessionConnected means the session is live and usable.
	SessionConnected

	// SessionSuspended means connectivity was interrupted but the session
	// may still be recovered before it expires server-side.
	SessionSuspended

	// SessionLost means the session expired; ephemeral state owned by it
	// is gone.
	SessionLost
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnected:
		return "connected"
	case SessionSuspended:
		return "suspended"
	case SessionLost:
		return "lost"
	default:
		return "unknown"
	}
}
