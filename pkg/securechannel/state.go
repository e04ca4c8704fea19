// Package securechannel implements the client side of the OPC UA Secure
// Conversation state machine: OpenSecureChannel bootstrap, symmetric
// request/response messaging, chunking, and reconnect. It follows a
// small enum-driven state type, a mutex-guarded struct holding the
// negotiated parameters, and an action-queue-driven dispatch loop,
// generalized to OPC UA's OPN/MSG/CLO chunk framing.
package securechannel

// State is a Client's position in the Secure-Channel lifecycle (spec
// "Secure-Channel client state machine"):
//
//	Disconnected --Connect--> ConnectingTransport --TransportUp-->
//	ConnectingSecure --OpnResp OK--> Connected --Close--> Disconnected
//
// Any error transitions to Error, which transitions back to Disconnected
// once a close has been attempted, so a failure is reported at most once.
type State int

const (
	StateDisconnected State = iota
	StateConnectingTransport
	StateConnectingSecure
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnectingTransport:
		return "ConnectingTransport"
	case StateConnectingSecure:
		return "ConnectingSecure"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is an asynchronous notification delivered to a Client's EventHandler
// on the callback queue (spec §7: "the only asynchronous errors reported
// are ConnectionFailed, Disconnected, UnexpectedError, and per-request
// SendFailed").
type Event int

const (
	EventConnectionFailed Event = iota
	EventDisconnected
	EventUnexpectedError
)

func (e Event) String() string {
	switch e {
	case EventConnectionFailed:
		return "ConnectionFailed"
	case EventDisconnected:
		return "Disconnected"
	case EventUnexpectedError:
		return "UnexpectedError"
	default:
		return "Unknown"
	}
}

// EventHandler receives lifecycle events. cause is non-nil for failures.
type EventHandler func(event Event, cause error)
