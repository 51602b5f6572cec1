package objbridge

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func raiseThrough(t *testing.T, b *Bridge, typeName, msg, call string) *GuestError {
	t.Helper()
	b.Runtime().Raise(typeName, msg)
	err := b.fetchError(call)
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	return gerr
}

func TestGuestErrorCarriesContext(t *testing.T) {
	b := newTestBridge(t)

	gerr := raiseThrough(t, b, "ValueError", "boom", "compute(...)")
	if gerr.Type != "ValueError" {
		t.Errorf("Type = %q, want ValueError", gerr.Type)
	}
	if !strings.Contains(gerr.Message, "ValueError: boom") {
		t.Errorf("Message = %q, missing type and message", gerr.Message)
	}
	if gerr.Call != "compute(...)" {
		t.Errorf("Call = %q, want compute(...)", gerr.Call)
	}
	if len(gerr.Trace) == 0 {
		t.Errorf("Trace is empty, want captured host frames")
	}
}

func TestInterruptTakesPriority(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	rt.Raise("ValueError", "ignored")
	b.Interrupt()

	err := b.fetchError("compute(...)")
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("error = %v, want ErrInterrupted", err)
	}
	if b.Interrupted() {
		t.Errorf("interrupt flag still set after crossing")
	}
	if rt.ErrOccurred() {
		t.Errorf("guest exception state not cleared by interrupt")
	}
}

func TestChainedCauseInheritsContext(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	original := raiseThrough(t, b, "ValueError", "root cause", "original(...)")

	// re-raise a new exception with the original as its chained cause
	wrapper := rt.NewException("RuntimeError", "wrapped")
	wrapper.SetContext(original.Ref.Object())
	rt.RaiseObject(wrapper)
	wrapper.DecRef()

	err := b.fetchError("reraise(...)")
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	if gerr.Call != "original(...)" {
		t.Errorf("Call = %q, want the original call site original(...)", gerr.Call)
	}
}

func TestImplicitChainingInheritsContext(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	original := raiseThrough(t, b, "KeyError", "missing", "lookup(...)")
	_ = original

	// raising while the original is re-pending chains it automatically
	rt.RaiseObject(original.Ref.Object())
	rt.Raise("RuntimeError", "handler failed")

	err := b.fetchError("handle(...)")
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	if gerr.Call != "lookup(...)" {
		t.Errorf("Call = %q, want lookup(...)", gerr.Call)
	}
}

func TestLastExceptionPublished(t *testing.T) {
	b := newTestBridge(t)

	if b.LastException() != nil {
		t.Fatalf("LastException() non-nil before any crossing")
	}

	gerr := raiseThrough(t, b, "TypeError", "nope", "call(...)")
	last := b.LastException()
	if last == nil {
		t.Fatalf("LastException() = nil after crossing")
	}
	defer last.Close()
	if last.Object() != gerr.Ref.Object() {
		t.Errorf("last-exception slot holds a different object")
	}
}

func TestRenderAppendsHintOnce(t *testing.T) {
	b := newTestBridge(t)

	gerr := raiseThrough(t, b, "ValueError", "boom", "f(...)")
	if !strings.Contains(gerr.Message, "LastException") {
		t.Errorf("Message = %q, missing static hint", gerr.Message)
	}
	if strings.Count(gerr.Message, "LastException") != 1 {
		t.Errorf("hint appended more than once")
	}
}

func TestRenderIncludesTraceback(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	rt.Raise("ValueError", "boom")

	gerr := raiseThroughFetched(t, b)
	if !strings.HasSuffix(strings.TrimSuffix(gerr.Message, b.staticHint()), "ValueError: boom\n") {
		t.Errorf("Message = %q, want trailing ValueError: boom line", gerr.Message)
	}
}

func raiseThroughFetched(t *testing.T, b *Bridge) *GuestError {
	t.Helper()
	err := b.fetchError("f(...)")
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	return gerr
}

func TestTruncateMiddle(t *testing.T) {
	head := "ValueError: summary\nin module widget\n"
	middle := strings.Repeat("frame line that will be cut\n", 40)
	tail := "RootCause: the actual reason\n"
	msg := head + middle + tail

	got := truncateMiddle(msg, 200, 20)
	if len(got) > 200 {
		t.Errorf("len = %d, want <= 200", len(got))
	}
	if !strings.HasPrefix(got, head) {
		t.Errorf("first two lines not preserved verbatim:\n%s", got)
	}
	if !strings.Contains(got, truncationMarker) {
		t.Errorf("marker missing:\n%s", got)
	}
	if !strings.HasSuffix(got, tail) {
		t.Errorf("tail not preserved:\n%s", got)
	}
}

func TestTruncateMiddleShortMessageUntouched(t *testing.T) {
	msg := "TypeError: short\n"
	if got := truncateMiddle(msg, 1000, 20); got != msg {
		t.Errorf("short message modified: %q", got)
	}
}

func TestConversionError(t *testing.T) {
	b := newTestBridge(t)

	_, err := b.ToGuest(Value{kind: ValueKind(42)}, true)
	var cerr *ConversionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *ConversionError", err)
	}
	if !strings.Contains(cerr.Error(), "host to guest") {
		t.Errorf("Error() = %q", cerr.Error())
	}
}

func TestErrorScopeProtectsRendering(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	rt.Raise("ValueError", "pending")
	scope := rt.SaveErrorScope()
	if rt.ErrOccurred() {
		t.Fatalf("pending exception visible inside scope")
	}
	rt.Raise("TypeError", "transient")
	scope.Restore()
	if got := rt.PendingTypeName(); got != "ValueError" {
		t.Errorf("restored pending type = %q, want ValueError", got)
	}
	rt.Clear()
}

func TestConcurrentFinalizations(t *testing.T) {
	b := newTestBridge(t)

	const workers = 8
	const perWorker = 25
	const ownerAllocs = 30

	done := make(chan struct{})
	go func() {
		defer close(done)
		var inner sync.WaitGroup
		for w := 0; w < workers; w++ {
			inner.Add(1)
			go func() {
				defer inner.Done()
				for i := 0; i < perWorker; i++ {
					cap := b.newHostCapsule(Integer(int32(i)))
					cap.DecRef()
				}
			}()
		}
		inner.Wait()
	}()

	for i := 0; i < ownerAllocs; i++ {
		cap := b.newHostCapsule(Double(float64(i)))
		cap.DecRef()
	}

	// drain worker releases until all workers finished
	for {
		b.RunPending()
		select {
		case <-done:
			b.RunPending()
			if got := b.PreservedCount(); got != 0 {
				t.Fatalf("PreservedCount() = %d, want 0 (allocations == releases)", got)
			}
			return
		default:
		}
	}
}
