package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no socket. A reconnect may be pending.
	StateDisconnected State = iota

	// StateConnecting indicates a dial is in progress.
	StateConnecting

	// StateAuthenticating indicates the socket is open and the auth frame
	// is being sent or awaits acknowledgement.
	StateAuthenticating

	// StateOpen indicates the connection carries requests.
	StateOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}
