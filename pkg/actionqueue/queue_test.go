package actionqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsActionsInFIFOOrder(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 8})
	require.NoError(t, q.Start())
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueStartStopReentryGuard(t *testing.T) {
	q := NewQueue(QueueConfig{})
	require.ErrorIs(t, q.Stop(), ErrNotStarted)

	require.NoError(t, q.Start())
	require.ErrorIs(t, q.Start(), ErrAlreadyStarted)

	require.NoError(t, q.Stop())
	require.ErrorIs(t, q.Stop(), ErrClosed)
	require.ErrorIs(t, q.Submit(func() {}), ErrClosed)
}

func TestQueueStopDrainsActionsSubmittedBefore(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 4})
	require.NoError(t, q.Start())

	ran := make(chan struct{}, 1)
	require.NoError(t, q.Submit(func() { ran <- struct{}{} }))
	require.NoError(t, q.Stop())

	select {
	case <-ran:
	default:
		t.Fatal("action submitted before Stop did not run")
	}
}

func TestQueueSubmitFullReturnsErrFull(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 1})
	// Worker never started: the channel buffer of size 1 fills on the
	// first Submit and the second must bounce off ErrFull rather than
	// block the test.
	require.NoError(t, q.Submit(func() {}))
	require.ErrorIs(t, q.Submit(func() {}), ErrFull)
}

func TestQueueRecoversPanicInAction(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 2})
	require.NoError(t, q.Start())
	defer q.Stop()

	done := make(chan struct{})
	require.NoError(t, q.Submit(func() { panic("boom") }))
	require.NoError(t, q.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue did not continue running actions after a panic")
	}
}

func TestManagerStartStopBothQueues(t *testing.T) {
	m := NewManager(ManagerConfig{})
	require.NoError(t, m.Start())

	protoDone := make(chan struct{})
	cbDone := make(chan struct{})
	require.NoError(t, m.Protocol.Submit(func() { close(protoDone) }))
	require.NoError(t, m.Callback.Submit(func() { close(cbDone) }))

	<-protoDone
	<-cbDone

	require.NoError(t, m.Stop())
}
