// Package dispatch schedules work onto the goroutine that owns the host
// runtime's single-owner data structures.
//
// Ownership is recorded once, when the bridge initializes; before that every
// goroutine counts as the owner. Off-owner operations are enqueued as
// pending callbacks and drained, in enqueue order, by the owner between its
// own work. Enqueueing runs a bounded retry state machine
// (Enqueuing -> Waiting -> Escalated -> Abandoned) rather than an unbounded
// spin.
package dispatch

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the pending queue is at
// capacity.
var ErrQueueFull = errors.New("dispatch: pending queue full")

// ErrAbandoned is returned when a bounded schedule gave up after the abandon
// threshold. The operation may never run; callers proceed without that
// guarantee.
var ErrAbandoned = errors.New("dispatch: scheduling abandoned")

// State is the position of a schedule attempt in the retry state machine.
type State int

const (
	StateEnqueuing State = iota
	StateWaiting
	StateEscalated
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateEnqueuing:
		return "enqueuing"
	case StateWaiting:
		return "waiting"
	case StateEscalated:
		return "escalated"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Options tunes the retry loop.
type Options struct {
	// RetryInterval is the sleep between enqueue attempts.
	RetryInterval time.Duration
	// WarnAfter is the cumulative wait before one diagnostic is emitted
	// per further elapsed interval of the same length.
	WarnAfter time.Duration
	// AbandonAfter is the cumulative wait before a bounded schedule emits
	// a fatal diagnostic and gives up.
	AbandonAfter time.Duration
	// Capacity bounds the pending queue.
	Capacity int
}

func (o *Options) fill() {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 100 * time.Millisecond
	}
	if o.WarnAfter <= 0 {
		o.WarnAfter = time.Minute
	}
	if o.AbandonAfter <= 0 {
		o.AbandonAfter = 2 * time.Minute
	}
	if o.Capacity <= 0 {
		o.Capacity = 64
	}
}

// Queue is the single pending-callback queue in front of the owning
// goroutine. It is safe for concurrent producers; only the owner drains.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	opts    Options
	owner   atomic.Uintptr
	log     *zap.Logger

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

// NewQueue creates a queue. The owner is unbound until BindOwner.
func NewQueue(opts Options, log *zap.Logger) *Queue {
	opts.fill()
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{opts: opts, log: log, sleep: time.Sleep}
}

// BindOwner records the calling goroutine as the owner. It is a no-op if an
// owner is already bound; the identity is immutable after set.
func (q *Queue) BindOwner() {
	q.owner.CompareAndSwap(0, GoroutineID())
}

// IsOwner reports whether the calling goroutine may touch host-owned state.
// Before BindOwner every goroutine is the owner.
func (q *Queue) IsOwner() bool {
	owner := q.owner.Load()
	return owner == 0 || owner == GoroutineID()
}

// TryEnqueue appends fn to the pending queue, failing when full.
func (q *Queue) TryEnqueue(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.opts.Capacity {
		return ErrQueueFull
	}
	q.pending = append(q.pending, fn)
	return nil
}

// ScheduleRelease schedules a resource release on the owner with the bounded
// retry loop. Releases occur outside any call the user can catch, so a
// failure is reported through the logger and abandoned, never thrown.
func (q *Queue) ScheduleRelease(fn func()) error {
	if q.IsOwner() {
		fn()
		return nil
	}
	var waited time.Duration
	for {
		if err := q.TryEnqueue(fn); err == nil {
			return nil
		}
		q.sleep(q.opts.RetryInterval)
		waited += q.opts.RetryInterval
		if waited >= q.opts.AbandonAfter {
			q.log.Error("unable to schedule release on owning thread, abandoning",
				zap.Duration("waited", waited),
				zap.String("state", StateAbandoned.String()))
			return ErrAbandoned
		}
		if waited >= q.opts.WarnAfter && waited%q.opts.WarnAfter < q.opts.RetryInterval {
			q.log.Warn("waiting to schedule release on owning thread",
				zap.Duration("waited", waited),
				zap.String("state", StateEscalated.String()))
		}
	}
}

// ScheduleCall schedules a call on the owner, retrying indefinitely: the
// caller would block on the result forever anyway if the call were never
// queued, so giving up buys nothing. A diagnostic is emitted per warn
// interval.
func (q *Queue) ScheduleCall(fn func()) {
	if q.IsOwner() {
		fn()
		return
	}
	var waited time.Duration
	for {
		if err := q.TryEnqueue(fn); err == nil {
			return
		}
		q.sleep(q.opts.RetryInterval)
		waited += q.opts.RetryInterval
		if waited >= q.opts.WarnAfter && waited%q.opts.WarnAfter < q.opts.RetryInterval {
			q.log.Warn("waiting to schedule call on owning thread",
				zap.Duration("waited", waited),
				zap.String("state", StateEscalated.String()))
		}
	}
}

// RunPending drains queued callbacks in enqueue order and returns how many
// ran. Must be called from the owning goroutine; callbacks enqueued while
// draining wait for the next drain, so no callback is guaranteed to run
// before the enqueuing goroutine's next statement.
func (q *Queue) RunPending() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len reports the number of queued callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// GoroutineID returns a unique identifier for the current goroutine.
// This is a hack that reads from the runtime stack, but it's safe and fast.
func GoroutineID() uintptr {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack looks like "goroutine 123 [running]:\n..."
	// We parse the number after "goroutine "
	var id uintptr
	for i := 10; i < n && buf[i] != ' '; i++ {
		id = id*10 + uintptr(buf[i]-'0')
	}
	return id
}
