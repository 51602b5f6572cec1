package objbridge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// interruptSignal is the error-slot string a host interruption maps to in
// the guest result pair.
const interruptSignal = "HostInterrupt"

// attrHostFn is the callable attribute carrying the capsule around an
// adapted host closure.
const attrHostFn = "__host_fn__"

// ============================================================================
// Guest callable -> host closure
// ============================================================================

// guestCallableToHost adapts a guest callable into a host closure. The
// closure marshals its arguments back through the bridge and invokes the
// guest callable; the original guest reference rides along on the closure so
// identity survives a round trip.
func (b *Bridge) guestCallableToHost(obj *guest.Object, convert bool) Value {
	ref := b.NewRef(obj, convert)
	return NewClosure(&Closure{
		Name: obj.Name(),
		Ref:  ref,
		Fn: func(args []Value, kwargs map[string]Value) (Value, error) {
			return b.callGuest(ref.obj, convert, args, kwargs)
		},
	})
}

// callGuest invokes a guest callable with host arguments, converting both
// directions per the convert flag. Keyword arguments are passed in sorted
// key order for determinism.
func (b *Bridge) callGuest(obj *guest.Object, convert bool, args []Value, kwargs map[string]Value) (Value, error) {
	gargs := make([]*guest.Object, 0, len(args))
	release := func() {
		for _, g := range gargs {
			g.DecRef()
		}
	}
	for _, a := range args {
		g, err := b.ToGuest(a, convert)
		if err != nil {
			release()
			return Value{}, err
		}
		gargs = append(gargs, g)
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	gkw := make([]guest.KV, 0, len(keys))
	releaseKw := func() {
		for _, kv := range gkw {
			kv.Val.DecRef()
		}
	}
	for _, k := range keys {
		g, err := b.ToGuest(kwargs[k], convert)
		if err != nil {
			release()
			releaseKw()
			return Value{}, err
		}
		gkw = append(gkw, guest.KV{Key: k, Val: g})
	}

	res := b.rt.Call(obj, gargs, gkw)
	release()
	releaseKw()
	if res == nil {
		return Value{}, b.fetchError(callExpr(obj))
	}
	defer res.DecRef()
	return b.ToHost(res, convert)
}

func callExpr(obj *guest.Object) string {
	if name := obj.Name(); name != "" {
		return name + "(...)"
	}
	return "guest_call(...)"
}

// ============================================================================
// Host closure -> guest callable
// ============================================================================

// hostClosureToGuest adapts a host closure into a guest callable that holds
// a capsule back to the closure. Calls from the guest side follow the
// result-pair convention of invokeHostClosure.
func (b *Bridge) hostClosureToGuest(c *Closure, convert bool) *guest.Object {
	name := c.Name
	if name == "" {
		name = "host_function"
	}
	callable := b.rt.NewCallable(name, func(rt *guest.Runtime, args []*guest.Object, kwargs []guest.KV) *guest.Object {
		return b.invokeHostClosure(c, convert, args, kwargs)
	})
	callable.SetAttrConsume(attrHostFn, b.newHostCapsule(NewClosure(c)))
	return callable
}

// invokeHostClosure runs a host closure on behalf of guest code and returns
// the two-element result pair (value_or_none, error_or_none). Exactly one
// slot is populated. A host interruption maps to the interrupt signal string
// in the error slot; any other host failure is stringified there. The
// closure itself always executes on the owning goroutine.
func (b *Bridge) invokeHostClosure(c *Closure, convert bool, args []*guest.Object, kwargs []guest.KV) *guest.Object {
	hargs := make([]Value, len(args))
	for i, a := range args {
		v, err := b.ToHost(a, convert)
		if err != nil {
			return b.errorPair(err)
		}
		hargs[i] = v
	}
	var hkw map[string]Value
	if len(kwargs) > 0 {
		hkw = make(map[string]Value, len(kwargs))
		for _, kv := range kwargs {
			v, err := b.ToHost(kv.Val, convert)
			if err != nil {
				return b.errorPair(err)
			}
			hkw[kv.Key] = v
		}
	}

	var (
		res     Value
		callErr error
	)
	b.invokeOnOwner(func() {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("%v", r)
			}
		}()
		res, callErr = c.Fn(hargs, hkw)
	})
	if callErr != nil {
		return b.errorPair(callErr)
	}

	obj, err := b.ToGuest(res, convert)
	if err != nil {
		return b.errorPair(err)
	}
	return b.rt.NewTuple(obj, b.rt.None.IncRef())
}

// errorPair builds (None, error-string). The error is always force-converted
// to a guest string.
func (b *Bridge) errorPair(err error) *guest.Object {
	msg := err.Error()
	if errors.Is(err, ErrInterrupted) {
		msg = interruptSignal
	}
	return b.rt.NewTuple(b.rt.None.IncRef(), b.rt.NewStr(msg))
}

// invokeOnOwner runs fn on the owning goroutine, blocking the caller until
// it completes.
func (b *Bridge) invokeOnOwner(fn func()) {
	if b.queue.IsOwner() {
		fn()
		return
	}
	done := make(chan struct{})
	b.queue.ScheduleCall(func() {
		defer close(done)
		fn()
	})
	<-done
}

// ============================================================================
// hostcall guest module
// ============================================================================

// registerHostcallModule installs the importable "hostcall" guest module.
// It exposes exactly two callables: one that invokes a host function and
// returns the result pair, and a fire-and-forget variant that schedules the
// invocation on the owning goroutine.
func (b *Bridge) registerHostcallModule() {
	call := b.rt.NewCallable("call_host_function", func(rt *guest.Runtime, args []*guest.Object, kwargs []guest.KV) *guest.Object {
		c, ok := b.closureFromGuest(args)
		if !ok {
			rt.Raise("TypeError", "call_host_function expects a host function as first argument")
			return nil
		}
		return b.invokeHostClosure(c, true, args[1:], kwargs)
	})
	callAsync := b.rt.NewCallable("call_host_function_on_owner_thread", func(rt *guest.Runtime, args []*guest.Object, kwargs []guest.KV) *guest.Object {
		c, ok := b.closureFromGuest(args)
		if !ok {
			rt.Raise("TypeError", "call_host_function_on_owner_thread expects a host function as first argument")
			return nil
		}
		rest := make([]*guest.Object, len(args)-1)
		for i, a := range args[1:] {
			rest[i] = a.IncRef()
		}
		kw := make([]guest.KV, len(kwargs))
		for i, kv := range kwargs {
			kw[i] = guest.KV{Key: kv.Key, Val: kv.Val.IncRef()}
		}
		b.queue.ScheduleCall(func() {
			pair := b.invokeHostClosure(c, true, rest, kw)
			if pair != nil {
				pair.DecRef()
			}
			for _, a := range rest {
				a.DecRef()
			}
			for _, kv := range kw {
				kv.Val.DecRef()
			}
		})
		return rt.None.IncRef()
	})
	// the module registry keeps the construction reference
	b.rt.NewModule("hostcall", map[string]*guest.Object{
		"call_host_function":                 call,
		"call_host_function_on_owner_thread": callAsync,
	})
	call.DecRef()
	callAsync.DecRef()
}

// closureFromGuest extracts the host closure from the first argument: either
// a capsule boxing a closure value or a callable previously adapted from one.
func (b *Bridge) closureFromGuest(args []*guest.Object) (*Closure, bool) {
	if len(args) == 0 {
		return nil, false
	}
	fn := args[0]
	if cap := fn.Attr(attrHostFn); cap != nil {
		fn = cap
	}
	v, ok := b.unwrapHostCapsule(fn)
	if !ok || v.Kind() != KindClosure {
		return nil, false
	}
	return v.ClosureValue(), true
}
