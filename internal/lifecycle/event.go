package lifecycle

import "github.com/pscheid92/buildnotify/internal/domain"

// EventKind is a raw transport happening.
type EventKind int

const (
	EventOpen EventKind = iota
	EventSuspend
	EventResume
	EventTimeout
	EventMessage
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventTimeout:
		return "timeout"
	case EventMessage:
		return "message"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is what a transport dispatches to the controller.
type Event struct {
	Kind EventKind
	Conn domain.Connection

	// CorrelationID names the connection being replaced on Resume and Timeout.
	CorrelationID domain.ConnectionID

	// Payload carries inbound text for EventMessage.
	Payload []byte
}

// State is the lifecycle position of one physical connection.
type State int

const (
	StatePending State = iota
	StateOpen
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
