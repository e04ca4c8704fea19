// Package actionqueue implements the bounded FIFO action queue spec.md §5
// describes: a single worker goroutine that dequeues and runs closures to
// completion, serializing otherwise-concurrent work onto one thread.
// Grounded on the goroutine + buffered-channel + sync.WaitGroup idiom the
// teacher uses throughout pkg/transport (closeCh/wg.Add/wg.Wait around a
// read-loop goroutine), applied here to a dispatch loop instead of a
// socket read loop.
package actionqueue

import (
	"sync"

	"github.com/pion/logging"
)

// Action is a unit of work a Queue executes on its worker goroutine.
type Action func()

// DefaultCapacity is used when a QueueConfig leaves Capacity at zero.
const DefaultCapacity = 256

// item wraps an Action with the stop sentinel spec.md's cancellation
// policy describes: "the caller flips the stop flag, writes a sentinel
// into the action queue, and joins the worker thread" — so actions
// submitted before Stop still run, in order, before the worker exits.
type item struct {
	action Action
	stop   bool
}

// QueueConfig configures a Queue's capacity and logging.
type QueueConfig struct {
	// Name identifies this queue in log output (e.g. "protocol",
	// "callback").
	Name string

	// Capacity bounds the number of pending actions Submit may queue
	// ahead of the worker. Defaults to DefaultCapacity.
	Capacity int

	// LoggerFactory creates the queue's logger. If nil, logging is
	// disabled.
	LoggerFactory logging.LoggerFactory
}

// Queue is a single-worker, bounded FIFO action queue (spec.md §5: "one or
// more single-threaded action-queue managers that serialize work").
type Queue struct {
	ch  chan item
	log logging.LeveledLogger
	wg  sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewQueue creates a Queue. The worker goroutine does not run until Start
// is called.
func NewQueue(config QueueConfig) *Queue {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	q := &Queue{ch: make(chan item, config.Capacity)}
	if config.LoggerFactory != nil {
		name := config.Name
		if name == "" {
			name = "queue"
		}
		q.log = config.LoggerFactory.NewLogger("actionqueue-" + name)
	}
	return q
}

// Start spawns the worker goroutine.
func (q *Queue) Start() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run()
	return nil
}

// Stop enqueues the stop sentinel and waits for the worker to drain every
// action submitted before this call and exit. Submit fails with ErrClosed
// for anything submitted concurrently with or after Stop.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return ErrNotStarted
	}
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.closed = true
	q.mu.Unlock()

	q.ch <- item{stop: true}
	q.wg.Wait()
	return nil
}

// Submit enqueues action without blocking, returning ErrFull if the
// queue's buffer has no room. This is the suspension-free path the
// Secure-Channel client's goroutines use so posting work never blocks
// the thread that decoded it (spec.md §5's
// suspension-point list names only BlockingDequeue, select, and socket
// I/O as places a thread may block — enqueue is not among them).
func (q *Queue) Submit(action Action) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- item{action: action}:
		return nil
	default:
		return ErrFull
	}
}

// BlockingSubmit enqueues action, blocking until there is room. Used by
// callers that would rather wait than drop work (e.g. a user issuing a
// request against a full protocol queue).
func (q *Queue) BlockingSubmit(action Action) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	q.ch <- item{action: action}
	return nil
}

func (q *Queue) run() {
	defer q.wg.Done()
	for it := range q.ch {
		if it.stop {
			return
		}
		q.runAction(it.action)
	}
}

// runAction executes one action, recovering a panic so one misbehaving
// action cannot kill the worker goroutine and silently stop a queue every
// other action depends on.
func (q *Queue) runAction(action Action) {
	if action == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && q.log != nil {
			q.log.Errorf("actionqueue: recovered panic in action: %v", r)
		}
	}()
	action()
}
