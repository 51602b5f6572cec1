package objbridge

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// tagObject is the sentinel class tag present on every reference wrapper.
const tagObject = "guest.object"

// tagIterator marks wrappers around iterator objects.
const tagIterator = "guest.iterator"

// ObjectRef is the host-visible proxy for a guest object that was not
// structurally converted. It owns exactly one guest reference, released by
// Close or, failing that, by a GC cleanup. The convert flag governs whether
// bridge operations on this wrapper eagerly convert their results or hand
// back further wrappers.
type ObjectRef struct {
	b       *Bridge
	obj     *guest.Object
	convert bool
	tags    []string

	closed atomic.Bool
}

// adoptRef wraps obj, adopting the caller's reference.
func (b *Bridge) adoptRef(obj *guest.Object, convert bool) *ObjectRef {
	r := &ObjectRef{b: b, obj: obj, convert: convert, tags: classTagsFor(obj)}
	runtime.SetFinalizer(r, func(fr *ObjectRef) {
		if fr.closed.CompareAndSwap(false, true) {
			fr.obj.DecRef()
		}
	})
	return r
}

// NewRef wraps obj in a reference wrapper, taking a new guest reference.
func (b *Bridge) NewRef(obj *guest.Object, convert bool) *ObjectRef {
	return b.adoptRef(obj.IncRef(), convert)
}

// classTagsFor mirrors the object's method resolution order into class tags,
// most-derived first, duplicates removed. Iterators additionally carry the
// iterator tag, and the generic object sentinel is always last.
func classTagsFor(obj *guest.Object) []string {
	var tags []string
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, c := range obj.Class().MRO() {
		if t := c.Tag(); t != tagObject {
			add(t)
		}
	}
	if obj.IsIterator() {
		add(tagIterator)
	}
	tags = append(tags, tagObject)
	return tags
}

// Object returns the wrapped guest object (borrowed reference).
func (r *ObjectRef) Object() *guest.Object { return r.obj }

// Convert reports the wrapper's auto-convert flag.
func (r *ObjectRef) Convert() bool { return r.convert }

// ClassTags returns the wrapper's class tags, most-derived first.
func (r *ObjectRef) ClassTags() []string { return r.tags }

// String renders the wrapped object with the guest's generic conversion.
func (r *ObjectRef) String() string { return r.b.rt.Str(r.obj) }

// Repr renders the wrapped object, quoting strings.
func (r *ObjectRef) Repr() string { return r.b.rt.Repr(r.obj) }

// Close releases the wrapper's guest reference. Safe to call more than once;
// after Close every other method panics on the released reference.
func (r *ObjectRef) Close() {
	if r.closed.CompareAndSwap(false, true) {
		runtime.SetFinalizer(r, nil)
		r.obj.DecRef()
	}
}

// result converts a bridge operation's guest result per the wrapper's
// convert flag, adopting the reference.
func (r *ObjectRef) result(obj *guest.Object) (Value, error) {
	defer obj.DecRef()
	return r.b.ToHost(obj, r.convert)
}

// ============================================================================
// Attributes and items
// ============================================================================

// Attr fetches an attribute, converted per the wrapper's convert flag.
func (r *ObjectRef) Attr(name string) (Value, error) {
	a := r.obj.Attr(name)
	if a == nil {
		r.b.rt.Raisef("AttributeError", "%s object has no attribute %q", r.obj.Kind(), name)
		return Value{}, r.b.fetchError(fmt.Sprintf("$attr(%s)", name))
	}
	return r.result(a.IncRef())
}

// HasAttr reports whether the attribute exists.
func (r *ObjectRef) HasAttr(name string) bool { return r.obj.HasAttr(name) }

// SetAttr stores a host value as an attribute.
func (r *ObjectRef) SetAttr(name string, v Value) error {
	obj, err := r.b.ToGuest(v, r.convert)
	if err != nil {
		return err
	}
	r.obj.SetAttrConsume(name, obj)
	return nil
}

// DelAttr removes an attribute.
func (r *ObjectRef) DelAttr(name string) error {
	if !r.obj.DelAttr(name) {
		r.b.rt.Raisef("AttributeError", "%s object has no attribute %q", r.obj.Kind(), name)
		return r.b.fetchError(fmt.Sprintf("$delattr(%s)", name))
	}
	return nil
}

// AttrNames lists attribute names in insertion order.
func (r *ObjectRef) AttrNames() []string { return r.obj.AttrNames() }

// GetItem fetches a mapping entry by host key.
func (r *ObjectRef) GetItem(key Value) (Value, error) {
	k, err := r.b.ToGuest(key, true)
	if err != nil {
		return Value{}, err
	}
	defer k.DecRef()
	v := r.b.rt.DictGet(r.obj, k)
	if v == nil {
		r.b.rt.Raisef("KeyError", "%s", r.b.rt.Repr(k))
		return Value{}, r.b.fetchError("$getitem")
	}
	return r.result(v.IncRef())
}

// SetItem stores a mapping entry.
func (r *ObjectRef) SetItem(key, val Value) error {
	k, err := r.b.ToGuest(key, true)
	if err != nil {
		return err
	}
	defer k.DecRef()
	v, err := r.b.ToGuest(val, r.convert)
	if err != nil {
		return err
	}
	defer v.DecRef()
	r.b.rt.DictSet(r.obj, k, v)
	return nil
}

// DelItem removes a mapping entry.
func (r *ObjectRef) DelItem(key Value) error {
	k, err := r.b.ToGuest(key, true)
	if err != nil {
		return err
	}
	defer k.DecRef()
	if !r.b.rt.DictDel(r.obj, k) {
		r.b.rt.Raisef("KeyError", "%s", r.b.rt.Repr(k))
		return r.b.fetchError("$delitem")
	}
	return nil
}

// Len returns the element count for sized objects, or -1.
func (r *ObjectRef) Len() int { return r.obj.Len() }

// ============================================================================
// Calling and iteration
// ============================================================================

// Call invokes the wrapped callable with positional and keyword host
// arguments, converting both directions per the wrapper's convert flag.
func (r *ObjectRef) Call(args []Value, kwargs map[string]Value) (Value, error) {
	return r.b.callGuest(r.obj, r.convert, args, kwargs)
}

// Iterate drains the wrapped iterator (or iterable), invoking fn per
// element. Iteration stops on the first error from fn.
func (r *ObjectRef) Iterate(fn func(Value) error) error {
	it := r.b.rt.GetIter(r.obj)
	if it == nil {
		return r.b.fetchError("$iterate")
	}
	defer it.DecRef()
	for {
		obj, done := r.b.rt.IterNext(it)
		if done {
			return nil
		}
		if obj == nil {
			return r.b.fetchError("$iterate")
		}
		v, err := r.result(obj)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Next advances a wrapped iterator one step. done=true signals exhaustion.
func (r *ObjectRef) Next() (v Value, done bool, err error) {
	obj, done := r.b.rt.IterNext(r.obj)
	if done {
		return Value{}, true, nil
	}
	if obj == nil {
		return Value{}, false, r.b.fetchError("$next")
	}
	v, err = r.result(obj)
	return v, false, err
}

// ============================================================================
// Predicates and comparison
// ============================================================================

// IsNone reports whether the wrapped object is the guest null sentinel.
func (r *ObjectRef) IsNone() bool { return r.obj == r.b.rt.None }

// IsCallable reports whether the wrapped object can be called.
func (r *ObjectRef) IsCallable() bool { return r.obj.IsCallable() }

// AttrOrNil fetches an attribute without raising. The second result reports
// whether the attribute exists.
func (r *ObjectRef) AttrOrNil(name string) (Value, bool, error) {
	a := r.obj.Attr(name)
	if a == nil {
		return Value{}, false, nil
	}
	v, err := r.result(a.IncRef())
	return v, true, err
}

// Eq applies guest rich equality against another wrapper.
func (r *ObjectRef) Eq(other *ObjectRef) bool {
	return r.b.rt.Equal(r.obj, other.obj)
}

// Compare applies a guest rich comparison: one of "==", "!=", "<", "<=",
// ">", ">=". Ordering is defined for numeric and string objects; anything
// else raises TypeError across the bridge.
func (r *ObjectRef) Compare(other *ObjectRef, op string) (bool, error) {
	switch op {
	case "==":
		return r.Eq(other), nil
	case "!=":
		return !r.Eq(other), nil
	}

	less, ok := lessThan(r.obj, other.obj)
	if !ok {
		r.b.rt.Raisef("TypeError", "%q not supported between %s and %s",
			op, r.obj.Kind(), other.obj.Kind())
		return false, r.b.fetchError("$compare")
	}
	switch op {
	case "<":
		return less, nil
	case "<=":
		return less || r.Eq(other), nil
	case ">":
		return !less && !r.Eq(other), nil
	case ">=":
		return !less, nil
	default:
		return false, fmt.Errorf("objbridge: unknown comparison %q", op)
	}
}

// lessThan orders two guest objects when both are numeric or both strings.
func lessThan(a, b *guest.Object) (less, ok bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af < bf, true
	}
	if a.Kind() == guest.KindStr && b.Kind() == guest.KindStr {
		return a.String() < b.String(), true
	}
	return false, false
}

func asFloat(o *guest.Object) (float64, bool) {
	switch o.Kind() {
	case guest.KindInt:
		return float64(o.Int()), true
	case guest.KindFloat:
		return o.Float(), true
	}
	return 0, false
}

// HasTag reports whether the wrapper carries the given class tag.
func (r *ObjectRef) HasTag(tag string) bool {
	for _, t := range r.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// GoString implements fmt.GoStringer for diagnostics.
func (r *ObjectRef) GoString() string {
	return fmt.Sprintf("<ObjectRef %s convert=%t>", strings.Join(r.tags, ","), r.convert)
}
