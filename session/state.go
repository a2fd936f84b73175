package session

// State is a Session's connection lifecycle state.
type State int

const (
	// NotConnected is the initial state, and the state after quit, close,
	// or any fatal error.
	NotConnected State = iota
	// Connecting means the transport is being opened and the greeting has
	// not yet been observed.
	Connecting
	// Connected means a 220 greeting was received; EHLO/HELO, STARTTLS
	// and AUTH all happen from here.
	Connected
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "NotConnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}
