package link

// State is the connection status exposed to consumers.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind tags an Event.
type EventKind int

const (
	Opened EventKind = iota
	Closed
	Errored
	Frame
	// Retry is posted by the reconnect timer, not by a channel.
	Retry
)

func (k EventKind) String() string {
	switch k {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	case Frame:
		return "frame"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Event is one item of the tagged stream consumed by Manager.Handle.
// Channel identifies the channel that produced it (or the retry token for
// Retry events); events from a channel the manager no longer owns are stale.
type Event struct {
	Kind    EventKind
	Channel uint64
	Text    string // Frame payload
	Err     error  // Errored cause
}
