package actionqueue

import "errors"

var (
	// ErrClosed is returned when Submit or Stop is called on a queue that
	// has already been stopped.
	ErrClosed = errors.New("actionqueue: closed")

	// ErrAlreadyStarted is returned when Start is called on a queue whose
	// worker is already running.
	ErrAlreadyStarted = errors.New("actionqueue: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("actionqueue: not started")

	// ErrFull is returned by Submit (never by BlockingSubmit) when the
	// queue's bounded buffer has no room for another action.
	ErrFull = errors.New("actionqueue: full")
)
