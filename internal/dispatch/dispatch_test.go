package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(capacity int) *Queue {
	q := NewQueue(Options{
		RetryInterval: time.Millisecond,
		WarnAfter:     5 * time.Millisecond,
		AbandonAfter:  10 * time.Millisecond,
		Capacity:      capacity,
	}, zap.NewNop())
	q.sleep = func(time.Duration) {}
	return q
}

func TestEveryGoroutineOwnsBeforeBind(t *testing.T) {
	q := newTestQueue(4)
	assert.True(t, q.IsOwner())

	done := make(chan bool)
	go func() { done <- q.IsOwner() }()
	assert.True(t, <-done)
}

func TestBindOwnerIsSticky(t *testing.T) {
	q := newTestQueue(4)
	q.BindOwner()
	require.True(t, q.IsOwner())

	done := make(chan bool)
	go func() {
		q.BindOwner() // no-op, owner already recorded
		done <- q.IsOwner()
	}()
	assert.False(t, <-done)
	assert.True(t, q.IsOwner())
}

func TestTryEnqueueFull(t *testing.T) {
	q := newTestQueue(2)
	require.NoError(t, q.TryEnqueue(func() {}))
	require.NoError(t, q.TryEnqueue(func() {}))
	assert.ErrorIs(t, q.TryEnqueue(func() {}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())
}

func TestRunPendingDrainsInOrder(t *testing.T) {
	q := newTestQueue(8)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.TryEnqueue(func() { order = append(order, i) }))
	}
	assert.Equal(t, 5, q.RunPending())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, q.RunPending())
}

func TestScheduleReleaseInlineForOwner(t *testing.T) {
	q := newTestQueue(4)
	q.BindOwner()

	ran := false
	require.NoError(t, q.ScheduleRelease(func() { ran = true }))
	assert.True(t, ran, "owner releases run inline, not queued")
	assert.Equal(t, 0, q.Len())
}

func TestScheduleReleaseFromWorkerQueues(t *testing.T) {
	q := newTestQueue(4)
	q.BindOwner()

	ran := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- q.ScheduleRelease(func() { close(ran) })
	}()
	require.NoError(t, <-errc)

	select {
	case <-ran:
		t.Fatal("release ran before the owner drained")
	default:
	}
	q.RunPending()
	<-ran
}

func TestScheduleReleaseAbandonsWhenFull(t *testing.T) {
	q := newTestQueue(1)
	q.BindOwner()
	require.NoError(t, q.TryEnqueue(func() {}))

	errc := make(chan error, 1)
	go func() {
		errc <- q.ScheduleRelease(func() {})
	}()
	assert.ErrorIs(t, <-errc, ErrAbandoned)
}

func TestScheduleCallRetriesUntilSpace(t *testing.T) {
	q := newTestQueue(1)
	q.BindOwner()
	require.NoError(t, q.TryEnqueue(func() {}))

	var mu sync.Mutex
	queued := false
	go func() {
		q.ScheduleCall(func() {
			mu.Lock()
			queued = true
			mu.Unlock()
		})
	}()

	// drain until the blocked producer gets through
	deadline := time.After(time.Second)
	for {
		q.RunPending()
		mu.Lock()
		ok := queued
		mu.Unlock()
		if ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("ScheduleCall never enqueued")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestGoroutineIDsDiffer(t *testing.T) {
	main := GoroutineID()
	assert.NotZero(t, main)

	other := make(chan uintptr)
	go func() { other <- GoroutineID() }()
	assert.NotEqual(t, main, <-other)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "enqueuing", StateEnqueuing.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "escalated", StateEscalated.String())
	assert.Equal(t, "abandoned", StateAbandoned.String())
}
