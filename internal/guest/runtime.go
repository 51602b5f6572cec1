package guest

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Runtime is one guest interpreter instance: the object heap's singletons,
// the single-slot pending exception state, the module registry and the
// buffered output streams.
//
// The pending exception slot is not re-entrant: it must be fully drained
// (fetch + normalize) before any further guest call.
type Runtime struct {
	None  *Object
	True  *Object
	False *Object
	// NA is the missing-value sentinel, a null-like singleton distinct
	// from None.
	NA *Object

	pending   *pendingError
	pendingMu sync.Mutex

	modules  map[string]*Object
	moduleMu sync.Mutex

	Stdout *OutputBuffer
	Stderr *OutputBuffer
}

// New creates a guest runtime with interned singletons and buffered output
// streams writing to the given sinks (nil sinks discard).
func New(stdout, stderr io.Writer) *Runtime {
	rt := &Runtime{
		modules: make(map[string]*Object),
		Stdout:  newOutputBuffer(stdout),
		Stderr:  newOutputBuffer(stderr),
	}
	rt.None = &Object{refs: 1, immortal: true, kind: KindNone, class: noneClass}
	rt.True = &Object{refs: 1, immortal: true, kind: KindBool, b: true, class: boolClass}
	rt.False = &Object{refs: 1, immortal: true, kind: KindBool, class: boolClass}
	rt.NA = &Object{refs: 1, immortal: true, kind: KindNone, class: naClass}
	return rt
}

// ============================================================================
// Constructors
// ============================================================================

// NewBool returns the interned boolean singleton.
func (rt *Runtime) NewBool(v bool) *Object {
	if v {
		return rt.True
	}
	return rt.False
}

// NewInt allocates an int object.
func (rt *Runtime) NewInt(v int64) *Object {
	o := newObject(KindInt, intClass)
	o.i = v
	return o
}

// NewFloat allocates a float object.
func (rt *Runtime) NewFloat(v float64) *Object {
	o := newObject(KindFloat, floatClass)
	o.f = v
	return o
}

// NewComplex allocates a complex object.
func (rt *Runtime) NewComplex(v complex128) *Object {
	o := newObject(KindComplex, complexClass)
	o.cpx = v
	return o
}

// NewStr allocates a string object.
func (rt *Runtime) NewStr(v string) *Object {
	o := newObject(KindStr, strClass)
	o.s = v
	return o
}

// NewBytes allocates a byte-buffer object over v (not copied).
func (rt *Runtime) NewBytes(v []byte) *Object {
	o := newObject(KindBytes, bytesClass)
	o.raw = v
	return o
}

// NewList allocates a list adopting the given element references.
func (rt *Runtime) NewList(items ...*Object) *Object {
	o := newObject(KindList, listClass)
	o.items = items
	return o
}

// NewTuple allocates a plain tuple adopting the given element references.
func (rt *Runtime) NewTuple(items ...*Object) *Object {
	o := newObject(KindTuple, tupleClass)
	o.items = items
	return o
}

// NewNamedTuple allocates a tuple with field names. Named tuples present as
// custom classes and are not structurally converted by the bridge.
func (rt *Runtime) NewNamedTuple(class *Class, fields []string, items ...*Object) *Object {
	if class == nil {
		class = &Class{Name: "namedtuple", Module: "builtins", Bases: []*Class{tupleClass}}
	}
	o := newObject(KindTuple, class)
	o.fields = fields
	o.items = items
	return o
}

// NewDict allocates an empty insertion-ordered mapping.
func (rt *Runtime) NewDict() *Object {
	return newObject(KindDict, dictClass)
}

// DictSet stores a key/value pair, taking references on both. An existing
// entry with an equal key is replaced in place, keeping insertion order.
func (rt *Runtime) DictSet(dict, key, val *Object) {
	hk := rt.hashKey(key)
	for i, e := range dict.entries {
		if rt.hashKey(e.Key) == hk {
			e.Val.DecRef()
			dict.entries[i].Val = val.IncRef()
			return
		}
	}
	dict.entries = append(dict.entries, DictEntry{Key: key.IncRef(), Val: val.IncRef()})
}

// DictGet returns a borrowed reference to the value stored under key, or nil.
func (rt *Runtime) DictGet(dict, key *Object) *Object {
	hk := rt.hashKey(key)
	for _, e := range dict.entries {
		if rt.hashKey(e.Key) == hk {
			return e.Val
		}
	}
	return nil
}

// DictDel removes an entry, releasing its references. Reports whether the
// key was present.
func (rt *Runtime) DictDel(dict, key *Object) bool {
	hk := rt.hashKey(key)
	for i, e := range dict.entries {
		if rt.hashKey(e.Key) == hk {
			e.Key.DecRef()
			e.Val.DecRef()
			dict.entries = append(dict.entries[:i], dict.entries[i+1:]...)
			return true
		}
	}
	return false
}

// hashKey maps a key object to a comparable identity. Mutable containers
// hash by pointer identity.
func (rt *Runtime) hashKey(key *Object) string {
	switch key.kind {
	case KindNone:
		return "none:"
	case KindBool:
		return "bool:" + strconv.FormatBool(key.b)
	case KindInt:
		return "int:" + strconv.FormatInt(key.i, 10)
	case KindFloat:
		return "float:" + strconv.FormatFloat(key.f, 'g', -1, 64)
	case KindStr:
		return "str:" + key.s
	default:
		return fmt.Sprintf("id:%p", key)
	}
}

// NewCallable allocates a callable object with a diagnostic name.
func (rt *Runtime) NewCallable(name string, fn CallFunc) *Object {
	o := newObject(KindCallable, callableClass)
	o.name = name
	o.fn = fn
	return o
}

// NewCapsule allocates an opaque capsule boxing ptr under the given typed
// tag. free, if non-nil, runs when the last reference is dropped; it may
// fire on any goroutine, so destructors touching single-owner state must
// redirect themselves through the cross-thread dispatcher.
func (rt *Runtime) NewCapsule(tag string, ptr any, free func(cap *Object)) *Object {
	o := newObject(KindCapsule, capsuleClass)
	o.capTag = tag
	o.capPtr = ptr
	o.capFree = free
	return o
}

// IsCapsule reports whether o is a capsule carrying the given tag.
func IsCapsule(o *Object, tag string) bool {
	return o.kind == KindCapsule && o.capTag == tag
}

// NewIterator allocates an iterator object over src (reference taken; src
// may be nil for generator-like iterators).
func (rt *Runtime) NewIterator(src *Object, next NextFunc) *Object {
	o := newObject(KindIterator, iteratorClass)
	o.iterSrc = src.IncRef()
	o.next = next
	return o
}

// NewModule allocates and registers an importable module object exposing the
// given attributes (references taken).
func (rt *Runtime) NewModule(name string, attrs map[string]*Object) *Object {
	o := newObject(KindModule, moduleClass)
	o.name = name
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		o.SetAttr(n, attrs[n])
	}
	rt.moduleMu.Lock()
	rt.modules[name] = o
	rt.moduleMu.Unlock()
	return o
}

// Import returns a borrowed reference to a registered module, or nil.
func (rt *Runtime) Import(name string) *Object {
	rt.moduleMu.Lock()
	defer rt.moduleMu.Unlock()
	return rt.modules[name]
}

// NewObjectWithClass allocates a plain object of a custom class. Useful for
// values that should reach the host only as reference wrappers.
func (rt *Runtime) NewObjectWithClass(class *Class) *Object {
	return newObject(KindNone, class)
}

// ============================================================================
// Calling and iteration
// ============================================================================

// Call invokes a callable with positional and keyword arguments (borrowed).
// A nil return means a guest exception is pending. Calling a non-callable
// raises TypeError.
func (rt *Runtime) Call(callable *Object, args []*Object, kwargs []KV) *Object {
	fn := callable.fn
	if fn == nil {
		if c := callable.Attr("__call__"); c != nil {
			fn = c.fn
		}
	}
	if fn == nil {
		rt.Raise("TypeError", fmt.Sprintf("%s object is not callable", callable.kind))
		return nil
	}
	return fn(rt, args, kwargs)
}

// GetIter returns a new iterator over a sequence, mapping (over keys) or
// existing iterator. Raises TypeError for non-iterables.
func (rt *Runtime) GetIter(o *Object) *Object {
	switch o.kind {
	case KindIterator:
		return o.IncRef()
	case KindList, KindTuple:
		i := 0
		return rt.NewIterator(o, func() (*Object, bool) {
			if i >= len(o.items) {
				return nil, true
			}
			it := o.items[i]
			i++
			return it.IncRef(), false
		})
	case KindDict:
		i := 0
		return rt.NewIterator(o, func() (*Object, bool) {
			if i >= len(o.entries) {
				return nil, true
			}
			k := o.entries[i].Key
			i++
			return k.IncRef(), false
		})
	case KindStr:
		runes := []rune(o.s)
		i := 0
		return rt.NewIterator(o, func() (*Object, bool) {
			if i >= len(runes) {
				return nil, true
			}
			r := runes[i]
			i++
			return rt.NewStr(string(r)), false
		})
	default:
		rt.Raise("TypeError", fmt.Sprintf("%s object is not iterable", o.kind))
		return nil
	}
}

// IterNext advances an iterator, returning a new reference. done=true
// signals exhaustion; nil with done=false signals a pending exception.
func (rt *Runtime) IterNext(it *Object) (*Object, bool) {
	if it.next == nil {
		rt.Raise("TypeError", fmt.Sprintf("%s object is not an iterator", it.kind))
		return nil, false
	}
	return it.next()
}

// ============================================================================
// Generic string conversion
// ============================================================================

// Str renders an object with the guest's generic string conversion. It never
// raises.
func (rt *Runtime) Str(o *Object) string {
	switch o.kind {
	case KindNone:
		if o == rt.NA {
			return "NA"
		}
		return "None"
	case KindBool:
		if o.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(o.i, 10)
	case KindFloat:
		return strconv.FormatFloat(o.f, 'g', -1, 64)
	case KindComplex:
		return fmt.Sprintf("(%g%+gj)", real(o.cpx), imag(o.cpx))
	case KindStr:
		return o.s
	case KindBytes:
		return fmt.Sprintf("bytearray(%q)", o.raw)
	case KindList:
		return rt.joinItems("[", o.items, "]")
	case KindTuple:
		return rt.joinItems("(", o.items, ")")
	case KindDict:
		var sb strings.Builder
		sb.WriteString("{")
		for i, e := range o.entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(rt.Repr(e.Key))
			sb.WriteString(": ")
			sb.WriteString(rt.Repr(e.Val))
		}
		sb.WriteString("}")
		return sb.String()
	case KindArray:
		return fmt.Sprintf("<array %s%v>", o.arr.DType, o.arr.Shape)
	case KindCallable:
		return fmt.Sprintf("<callable %s>", o.name)
	case KindIterator:
		return "<iterator>"
	case KindCapsule:
		return fmt.Sprintf("<capsule %q>", o.capTag)
	case KindException:
		if o.excMsg == "" {
			return o.name
		}
		return o.name + ": " + o.excMsg
	case KindModule:
		return fmt.Sprintf("<module %s>", o.name)
	default:
		return fmt.Sprintf("<%s>", o.class.Tag())
	}
}

// Repr renders an object like Str but quotes strings.
func (rt *Runtime) Repr(o *Object) string {
	if o.kind == KindStr {
		return strconv.Quote(o.s)
	}
	return rt.Str(o)
}

func (rt *Runtime) joinItems(open string, items []*Object, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(rt.Repr(it))
	}
	sb.WriteString(close)
	return sb.String()
}

// Equal applies the guest's rich equality comparison.
func (rt *Runtime) Equal(a, b *Object) bool {
	if a == b {
		return true
	}
	if a.kind != b.kind {
		// int/float cross-kind numeric equality
		if a.kind == KindInt && b.kind == KindFloat {
			return float64(a.i) == b.f
		}
		if a.kind == KindFloat && b.kind == KindInt {
			return a.f == float64(b.i)
		}
		return false
	}
	switch a.kind {
	case KindNone:
		return a == b
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindComplex:
		return a.cpx == b.cpx
	case KindStr:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindList, KindTuple:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !rt.Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ============================================================================
// Buffered output
// ============================================================================

// OutputBuffer is a buffered output stream with an explicit flush, standing
// in for the guest's buffered stdio.
type OutputBuffer struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	sink io.Writer
}

func newOutputBuffer(sink io.Writer) *OutputBuffer {
	if sink == nil {
		sink = io.Discard
	}
	return &OutputBuffer{sink: sink}
}

// Write buffers p until the next Flush.
func (o *OutputBuffer) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

// Flush forwards buffered bytes to the sink.
func (o *OutputBuffer) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf.Len() == 0 {
		return nil
	}
	_, err := o.sink.Write(o.buf.Bytes())
	o.buf.Reset()
	return err
}

// FlushOutput flushes both guest output streams, reporting the first error.
func (rt *Runtime) FlushOutput() error {
	if err := rt.Stdout.Flush(); err != nil {
		return err
	}
	return rt.Stderr.Flush()
}
