// Package guest implements the embedded reference-counted object runtime.
//
// The runtime owns a heap of dynamically typed, reference-counted objects
// (scalars, sequences, mappings, strided typed arrays, callables, capsules
// and exceptions). The bridge at the module root converts between these
// objects and host values; nothing in this package knows about host values
// except through opaque capsule payloads.
package guest

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies the structural category of an Object.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindComplex
	KindStr
	KindBytes
	KindList
	KindTuple
	KindDict
	KindArray
	KindCallable
	KindIterator
	KindCapsule
	KindException
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindComplex:
		return "complex"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindArray:
		return "array"
	case KindCallable:
		return "callable"
	case KindIterator:
		return "iterator"
	case KindCapsule:
		return "capsule"
	case KindException:
		return "exception"
	case KindModule:
		return "module"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Class describes an object's type for method-resolution-order reporting.
// Bases are ordered most-derived first; the root object class terminates
// every chain.
type Class struct {
	Name   string
	Module string
	Bases  []*Class
}

// Tag returns the qualified class tag. The builtin module maps to the
// "guest" prefix so host code sees e.g. "guest.list" rather than
// "builtins.list".
func (c *Class) Tag() string {
	module := c.Module
	if module == "" || module == "builtins" {
		module = "guest"
	}
	return module + "." + c.Name
}

// MRO returns the class and its bases in method resolution order.
func (c *Class) MRO() []*Class {
	out := []*Class{c}
	for _, b := range c.Bases {
		out = append(out, b.MRO()...)
	}
	return out
}

var objectClass = &Class{Name: "object", Module: "builtins"}

func builtinClass(name string) *Class {
	return &Class{Name: name, Module: "builtins", Bases: []*Class{objectClass}}
}

var (
	noneClass      = builtinClass("NoneType")
	boolClass      = builtinClass("bool")
	intClass       = builtinClass("int")
	floatClass     = builtinClass("float")
	complexClass   = builtinClass("complex")
	strClass       = builtinClass("str")
	bytesClass     = builtinClass("bytearray")
	listClass      = builtinClass("list")
	tupleClass     = builtinClass("tuple")
	dictClass      = builtinClass("dict")
	arrayClass     = &Class{Name: "ndarray", Module: "narr", Bases: []*Class{objectClass}}
	callableClass  = builtinClass("function")
	iteratorClass  = builtinClass("iterator")
	capsuleClass   = builtinClass("capsule")
	moduleClass    = builtinClass("module")
	exceptionClass = builtinClass("Exception")
	naClass        = &Class{Name: "NAType", Module: "missing", Bases: []*Class{objectClass}}
)

// CallFunc is the implementation of a guest callable. A nil return means an
// exception was raised into the runtime's pending slot.
type CallFunc func(rt *Runtime, args []*Object, kwargs []KV) *Object

// NextFunc advances an iterator. done=true signals exhaustion; a nil object
// with done=false signals a raised exception.
type NextFunc func() (obj *Object, done bool)

// KV is a keyword argument.
type KV struct {
	Key string
	Val *Object
}

// DictEntry is one insertion-ordered mapping entry. The key reference is
// owned by the dict.
type DictEntry struct {
	Key *Object
	Val *Object
}

// Object is a reference-counted guest heap object. All bridge-visible
// references are counted: IncRef when a new long-lived reference is handed
// out, exactly one DecRef when that reference's owner goes away.
type Object struct {
	refs     int32
	immortal bool
	kind     Kind
	class    *Class

	b   bool
	i   int64
	f   float64
	cpx complex128
	s   string
	raw []byte

	items   []*Object // list, tuple
	fields  []string  // tuple: non-nil marks a named tuple
	entries []DictEntry

	arr *Array

	fn   CallFunc
	name string // callable, module and exception type name

	next    NextFunc
	iterSrc *Object

	capTag  string
	capPtr  any
	capCtx  any
	capFree func(cap *Object)

	excMsg  string
	excTB   []string
	context *Object // chained cause of an exception

	attrs     map[string]*Object
	attrNames []string
}

func newObject(kind Kind, class *Class) *Object {
	return &Object{refs: 1, kind: kind, class: class}
}

// Kind reports the structural category.
func (o *Object) Kind() Kind { return o.kind }

// Class returns the object's class descriptor.
func (o *Object) Class() *Class { return o.class }

// Refs returns the current reference count. Immortal singletons report 1.
func (o *Object) Refs() int32 { return atomic.LoadInt32(&o.refs) }

// IncRef adds a reference and returns the object for chaining.
func (o *Object) IncRef() *Object {
	if o != nil && !o.immortal {
		atomic.AddInt32(&o.refs, 1)
	}
	return o
}

// DecRef drops a reference. When the count reaches zero the object is
// finalized: child references are dropped and, for capsules, the registered
// destructor runs. The destructor may be invoked on whatever goroutine
// performed the final DecRef; destructors that touch single-owner state must
// redirect themselves.
func (o *Object) DecRef() {
	if o == nil || o.immortal {
		return
	}
	if n := atomic.AddInt32(&o.refs, -1); n == 0 {
		o.finalize()
	} else if n < 0 {
		panic(fmt.Sprintf("guest: refcount underflow on %s object", o.kind))
	}
}

func (o *Object) finalize() {
	for _, it := range o.items {
		it.DecRef()
	}
	o.items = nil
	for _, e := range o.entries {
		e.Key.DecRef()
		e.Val.DecRef()
	}
	o.entries = nil
	for _, name := range o.attrNames {
		o.attrs[name].DecRef()
	}
	o.attrs = nil
	o.attrNames = nil
	if o.context != nil {
		o.context.DecRef()
		o.context = nil
	}
	if o.iterSrc != nil {
		o.iterSrc.DecRef()
		o.iterSrc = nil
	}
	if o.arr != nil && o.arr.base != nil {
		o.arr.base.DecRef()
		o.arr.base = nil
	}
	if o.capFree != nil {
		free := o.capFree
		o.capFree = nil
		free(o)
	}
}

// Bool reports the payload of a bool object.
func (o *Object) Bool() bool { return o.b }

// Int reports the payload of an int object.
func (o *Object) Int() int64 { return o.i }

// Float reports the payload of a float object.
func (o *Object) Float() float64 { return o.f }

// Complex reports the payload of a complex object.
func (o *Object) Complex() complex128 { return o.cpx }

// String reports the payload of a str object. For other kinds use
// Runtime.Str for the generic conversion.
func (o *Object) String() string { return o.s }

// Bytes returns the backing byte slice of a bytes object.
func (o *Object) Bytes() []byte { return o.raw }

// Items returns the element slice of a list or tuple (borrowed references).
func (o *Object) Items() []*Object { return o.items }

// Entries returns the insertion-ordered entries of a dict (borrowed).
func (o *Object) Entries() []DictEntry { return o.entries }

// Array returns the array payload, or nil.
func (o *Object) Array() *Array { return o.arr }

// Name returns the diagnostic name of a callable, module or exception type.
func (o *Object) Name() string { return o.name }

// IsNamedTuple reports whether a tuple carries field names (named tuples are
// usually custom classes and are not structurally converted).
func (o *Object) IsNamedTuple() bool { return o.kind == KindTuple && o.fields != nil }

// IsCallable reports whether the object can be called.
func (o *Object) IsCallable() bool {
	return o.kind == KindCallable || (o.attrs != nil && o.attrs["__call__"] != nil)
}

// IsIterator reports whether the object exposes both the iterate and next
// capabilities.
func (o *Object) IsIterator() bool { return o.kind == KindIterator }

// Attr returns a borrowed reference to a named attribute, or nil.
func (o *Object) Attr(name string) *Object {
	if o.attrs == nil {
		return nil
	}
	return o.attrs[name]
}

// HasAttr reports whether the attribute exists.
func (o *Object) HasAttr(name string) bool { return o.Attr(name) != nil }

// SetAttr stores an attribute, taking a new reference on v and releasing any
// previous value.
func (o *Object) SetAttr(name string, v *Object) {
	if o.attrs == nil {
		o.attrs = make(map[string]*Object)
	}
	if old, ok := o.attrs[name]; ok {
		old.DecRef()
	} else {
		o.attrNames = append(o.attrNames, name)
	}
	o.attrs[name] = v.IncRef()
}

// SetAttrConsume stores an attribute, adopting the caller's reference to v.
func (o *Object) SetAttrConsume(name string, v *Object) {
	o.SetAttr(name, v)
	v.DecRef()
}

// DelAttr removes an attribute, releasing its reference. Reports whether the
// attribute existed.
func (o *Object) DelAttr(name string) bool {
	old, ok := o.attrs[name]
	if !ok {
		return false
	}
	old.DecRef()
	delete(o.attrs, name)
	for i, n := range o.attrNames {
		if n == name {
			o.attrNames = append(o.attrNames[:i], o.attrNames[i+1:]...)
			break
		}
	}
	return true
}

// AttrNames lists attribute names in insertion order.
func (o *Object) AttrNames() []string {
	out := make([]string, len(o.attrNames))
	copy(out, o.attrNames)
	return out
}

// CapsuleTag returns the typed tag of a capsule object.
func (o *Object) CapsuleTag() string { return o.capTag }

// CapsulePointer returns the boxed payload of a capsule object.
func (o *Object) CapsulePointer() any { return o.capPtr }

// CapsuleContext returns the context slot of a capsule object.
func (o *Object) CapsuleContext() any { return o.capCtx }

// SetCapsuleContext stores the context slot of a capsule object.
func (o *Object) SetCapsuleContext(ctx any) { o.capCtx = ctx }

// Context returns the chained cause of an exception (borrowed), or nil.
func (o *Object) Context() *Object { return o.context }

// SetContext chains a cause onto an exception, taking a reference.
func (o *Object) SetContext(cause *Object) {
	if o.context != nil {
		o.context.DecRef()
	}
	o.context = cause.IncRef()
}

// Message returns the message of an exception object.
func (o *Object) Message() string { return o.excMsg }

// Traceback returns the captured guest traceback lines of an exception.
func (o *Object) Traceback() []string { return o.excTB }

// TypeName returns the exception type name ("ValueError" etc.).
func (o *Object) TypeName() string { return o.name }

// Len returns the number of elements for sized kinds, or -1.
func (o *Object) Len() int {
	switch o.kind {
	case KindList, KindTuple:
		return len(o.items)
	case KindDict:
		return len(o.entries)
	case KindStr:
		return len(o.s)
	case KindBytes:
		return len(o.raw)
	case KindArray:
		return o.arr.Size()
	default:
		return -1
	}
}
