package securechannel

import "sync"

// socketTxnState is the per-socket transaction state (spec §4.7: "A per-
// socket small state machine ensures that a multi-chunk message is never
// interleaved with another on the same socket. ... States: None, Started,
// Error").
type socketTxnState int

const (
	socketTxnNone socketTxnState = iota
	socketTxnStarted
	socketTxnError
)

// socketTxnEvent is one of the six events the socket transaction reacts
// to (spec §4.7: "Events: START, CONTINUE, END, START_END (single-chunk),
// END_ERROR, SOCKET_ERROR").
type socketTxnEvent int

const (
	eventStart socketTxnEvent = iota
	eventContinue
	eventEnd
	eventStartEnd
	eventEndError
	eventSocketError
)

// socketTransaction serializes a socket's multi-chunk writes so spec
// §5's ordering guarantee (ii) holds: "A multi-chunk message's chunks
// are always written contiguously on their socket because the per-socket
// transaction state forbids interleaving." One socketTransaction guards
// one net.Conn.
type socketTransaction struct {
	mu    sync.Mutex
	state socketTxnState
	owner uint32 // request id currently holding a Started transaction
}

func newSocketTransaction() *socketTransaction {
	return &socketTransaction{}
}

// apply drives the transaction with event for requestID, returning
// ErrSocketBusy if an unrelated sender tries to act while another request
// holds the transaction (spec §4.7: "The only legal transition for an
// unrelated sender while Started is to be rejected").
func (t *socketTransaction) apply(event socketTxnEvent, requestID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event {
	case eventStart:
		if t.state == socketTxnStarted && t.owner != requestID {
			return ErrSocketBusy
		}
		t.state = socketTxnStarted
		t.owner = requestID
		return nil

	case eventStartEnd:
		if t.state == socketTxnStarted && t.owner != requestID {
			return ErrSocketBusy
		}
		t.state = socketTxnNone
		t.owner = 0
		return nil

	case eventContinue:
		if t.state != socketTxnStarted || t.owner != requestID {
			return ErrSocketBusy
		}
		return nil

	case eventEnd:
		if t.state != socketTxnStarted || t.owner != requestID {
			return ErrSocketBusy
		}
		t.state = socketTxnNone
		t.owner = 0
		return nil

	case eventEndError, eventSocketError:
		// Any write failure forces the transaction back to None so a
		// later, unrelated request is not wedged behind a dead sender.
		t.state = socketTxnNone
		t.owner = 0
		return nil

	default:
		return nil
	}
}
