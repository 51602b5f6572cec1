package objbridge

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// ErrInterrupted is the host-level cancellation signal. It always takes
// priority over a pending guest exception and is never wrapped in a
// GuestError.
var ErrInterrupted = errors.New("objbridge: interrupted")

// attrHostCall and attrHostTrace are the exception attributes carrying the
// host call expression and host stack trace captured when an error first
// crossed the boundary.
const (
	attrHostCall  = "host_call"
	attrHostTrace = "host_trace"
)

// ConversionError reports a value whose shape or element type has no defined
// mapping across the bridge.
type ConversionError struct {
	Direction string
	Reason    string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("objbridge: cannot convert %s: %s", e.Direction, e.Reason)
}

// GuestError is a guest-originated exception surfaced to host callers. It
// carries the rendered (length-bounded) message plus the host call expression
// and stack trace active when the error first crossed the boundary, and keeps
// the underlying exception object alive so callers can chain or inspect it.
type GuestError struct {
	Type    string
	Message string
	Call    string
	Trace   []string
	Ref     *ObjectRef
}

func (e *GuestError) Error() string { return e.Message }

// fetchError drains the guest's pending exception state into a Go error,
// running the full crossing pipeline: interrupt priority, fetch+normalize,
// call/trace context inheritance and attachment, last-exception publish,
// output flush and length-bounded rendering. call is the host call
// expression active at the crossing.
func (b *Bridge) fetchError(call string) error {
	if b.interrupted.CompareAndSwap(true, false) {
		b.rt.Clear()
		return ErrInterrupted
	}

	exc := b.rt.Fetch()
	if exc == nil {
		// A crossing reported failure with nothing pending: internal
		// consistency is gone.
		panic("objbridge: error crossing with no pending guest exception")
	}

	b.inheritContext(exc)
	if !exc.HasAttr(attrHostCall) {
		exc.SetAttrConsume(attrHostCall, b.newHostCapsule(Character(call)))
		exc.SetAttrConsume(attrHostTrace, b.newHostCapsule(Character(captureHostTrace()...)))
	}

	b.publishLastException(exc)
	if err := b.rt.FlushOutput(); err != nil {
		b.log.Warn("could not flush guest output streams", zap.Error(err))
	}

	return &GuestError{
		Type:    exc.TypeName(),
		Message: b.renderException(exc),
		Call:    b.capsuleStrings(exc.Attr(attrHostCall)),
		Trace:   b.capsuleStringSlice(exc.Attr(attrHostTrace)),
		Ref:     b.adoptRef(exc, true),
	}
}

// inheritContext walks the exception's chained causes looking for call/trace
// attributes. The first cause that carries them donates both; they are copied
// forward so the outermost report reflects the original call site, and the
// walk stops there.
func (b *Bridge) inheritContext(exc *guest.Object) {
	if exc.HasAttr(attrHostCall) {
		return
	}
	for cause := exc.Context(); cause != nil; cause = cause.Context() {
		if call := cause.Attr(attrHostCall); call != nil {
			exc.SetAttr(attrHostCall, call)
			if tr := cause.Attr(attrHostTrace); tr != nil {
				exc.SetAttr(attrHostTrace, tr)
			}
			return
		}
	}
}

// publishLastException stores exc in the process-wide last-exception slot,
// releasing the previous occupant.
func (b *Bridge) publishLastException(exc *guest.Object) {
	b.lastMu.Lock()
	old := b.lastExc
	b.lastExc = exc.IncRef()
	b.lastMu.Unlock()
	if old != nil {
		old.DecRef()
	}
}

// LastException returns a wrapper around the most recent exception that
// crossed the boundary, or nil. The slot survives until the next crossing.
func (b *Bridge) LastException() *ObjectRef {
	b.lastMu.Lock()
	exc := b.lastExc
	if exc != nil {
		exc.IncRef()
	}
	b.lastMu.Unlock()
	if exc == nil {
		return nil
	}
	return b.adoptRef(exc, true)
}

// capsuleStrings unwraps a host_call attribute into its first string.
func (b *Bridge) capsuleStrings(cap *guest.Object) string {
	ss := b.capsuleStringSlice(cap)
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// capsuleStringSlice unwraps a capsule attribute holding a preserved
// character vector.
func (b *Bridge) capsuleStringSlice(cap *guest.Object) []string {
	if cap == nil || !guest.IsCapsule(cap, capsuleTag) {
		return nil
	}
	tok, ok := cap.CapsulePointer().(preciousToken)
	if !ok {
		return nil
	}
	v, ok := b.precious.lookup(tok)
	if !ok || v.Kind() != KindCharacter {
		return nil
	}
	return v.Characters()
}

// captureHostTrace records the host-side call stack, skipping the bridge's
// own frames so the trace starts at user code.
func captureHostTrace() []string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		fr, more := frames.Next()
		if fr.Function != "" && !strings.Contains(fr.Function, "objbridge.(*Bridge)") &&
			!strings.HasSuffix(fr.Function, "objbridge.captureHostTrace") {
			out = append(out, fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line))
		}
		if !more {
			break
		}
	}
	return out
}
