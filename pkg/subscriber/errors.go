package subscriber

import "errors"

var (
	// ErrNoHandler is returned when a Scheduler is configured without a
	// DataSetHandler.
	ErrNoHandler = errors.New("subscriber: no dataset handler configured")

	// ErrAlreadyStarted is returned when Start is called while the
	// scheduler is not Disabled. The re-entry guard (spec §5) rejects
	// concurrent or repeated Start/Stop.
	ErrAlreadyStarted = errors.New("subscriber: already started")

	// ErrNotRunning is returned when Stop, Pause, or Resume is called on a
	// scheduler that isn't Operational or Paused.
	ErrNotRunning = errors.New("subscriber: not running")

	// ErrNoSockets is returned when a Scheduler is configured with no
	// reception sockets at all.
	ErrNoSockets = errors.New("subscriber: no reception sockets configured")
)
