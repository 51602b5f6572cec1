package guest

import "fmt"

// pendingError is the runtime's raw pending exception triple: a type name, a
// value that may not have been materialized yet, and the traceback captured
// at raise time. Fetch normalizes it into a single exception object.
type pendingError struct {
	typeName string
	value    *Object
	tb       []string
}

// NewException allocates an exception object of the given type name. The
// class chain is TypeName -> Exception -> object so reference wrappers
// expose the type in their class tags.
func (rt *Runtime) NewException(typeName, msg string) *Object {
	o := newObject(KindException, &Class{
		Name:   typeName,
		Module: "builtins",
		Bases:  []*Class{exceptionClass},
	})
	o.name = typeName
	o.excMsg = msg
	return o
}

// Raise records a pending exception from a type name and message. Any
// previously pending exception becomes the chained cause of the new one.
func (rt *Runtime) Raise(typeName, msg string) {
	exc := rt.NewException(typeName, msg)
	rt.RaiseObject(exc)
	exc.DecRef()
}

// Raisef records a pending exception with a formatted message.
func (rt *Runtime) Raisef(typeName, format string, args ...any) {
	rt.Raise(typeName, fmt.Sprintf(format, args...))
}

// RaiseObject records an existing exception object as pending (reference
// taken). An already pending exception is chained as the new exception's
// cause unless the new one carries its own; either way the slot's reference
// to the displaced exception is released.
func (rt *Runtime) RaiseObject(exc *Object) {
	rt.pendingMu.Lock()
	defer rt.pendingMu.Unlock()
	if p := rt.pending; p != nil && p.value != nil {
		if p.value != exc && exc.context == nil {
			exc.SetContext(p.value)
		}
		p.value.DecRef()
	}
	rt.pending = &pendingError{
		typeName: exc.name,
		value:    exc.IncRef(),
		tb:       captureGuestTrace(),
	}
}

// ErrOccurred reports whether an exception is pending.
func (rt *Runtime) ErrOccurred() bool {
	rt.pendingMu.Lock()
	defer rt.pendingMu.Unlock()
	return rt.pending != nil
}

// PendingTypeName returns the pending exception's type name without
// disturbing the slot, or "".
func (rt *Runtime) PendingTypeName() string {
	rt.pendingMu.Lock()
	defer rt.pendingMu.Unlock()
	if rt.pending == nil {
		return ""
	}
	return rt.pending.typeName
}

// Fetch drains and normalizes the pending exception slot, returning a new
// reference to the single exception value with its traceback attached.
// Returns nil if nothing is pending. The slot is single-use: a second guest
// call while an exception is pending but unfetched is outside the runtime's
// contract, so callers must drain before re-entering.
func (rt *Runtime) Fetch() *Object {
	rt.pendingMu.Lock()
	p := rt.pending
	rt.pending = nil
	rt.pendingMu.Unlock()
	if p == nil {
		return nil
	}
	exc := p.value
	if exc == nil {
		exc = rt.NewException(p.typeName, "")
	}
	if len(exc.excTB) == 0 {
		exc.excTB = p.tb
	}
	return exc
}

// Clear discards any pending exception.
func (rt *Runtime) Clear() {
	rt.pendingMu.Lock()
	p := rt.pending
	rt.pending = nil
	rt.pendingMu.Unlock()
	if p != nil && p.value != nil {
		p.value.DecRef()
	}
}

// FormatException renders an exception the way the guest's own formatting
// facility would: one block of "TypeName: message" lines, preceded by the
// captured guest traceback when present.
func (rt *Runtime) FormatException(exc *Object) []string {
	var lines []string
	if len(exc.excTB) > 0 {
		lines = append(lines, "Traceback (most recent call last):\n")
		for _, fr := range exc.excTB {
			lines = append(lines, "  "+fr+"\n")
		}
	}
	if exc.excMsg == "" {
		lines = append(lines, exc.name+"\n")
	} else {
		lines = append(lines, exc.name+": "+exc.excMsg+"\n")
	}
	return lines
}

// ErrorScope saves and restores pending exception state around guest calls
// that must not clobber it (generic string conversion during error
// rendering, attribute probing).
type ErrorScope struct {
	rt    *Runtime
	saved *pendingError
}

// SaveErrorScope detaches any pending exception from the slot.
func (rt *Runtime) SaveErrorScope() *ErrorScope {
	rt.pendingMu.Lock()
	defer rt.pendingMu.Unlock()
	s := &ErrorScope{rt: rt, saved: rt.pending}
	rt.pending = nil
	return s
}

// Restore puts the saved exception back, discarding anything raised in
// between.
func (s *ErrorScope) Restore() {
	s.rt.pendingMu.Lock()
	defer s.rt.pendingMu.Unlock()
	if s.rt.pending != nil && s.rt.pending.value != nil {
		s.rt.pending.value.DecRef()
	}
	s.rt.pending = s.saved
	s.saved = nil
}

// captureGuestTrace records the guest-side frames active at raise time.
// Guest callables run on the Go stack, which the bridge's host trace already
// covers, so the guest traceback stays minimal.
func captureGuestTrace() []string {
	return nil
}
