// Package objbridge is a bidirectional object bridge between a tagged,
// copy-on-write host value model and an embedded reference-counted guest
// object runtime.
//
// Host values are represented by the Value type below: a tagged vector model
// with optional element names, a missing-value mask and a dimension
// attribute. Guest objects live in the internal guest runtime and reach host
// code either structurally converted into Values or wrapped in an ObjectRef.
package objbridge

import "fmt"

// ValueKind tags the payload of a Value.
type ValueKind int

const (
	// KindNull is the host null value.
	KindNull ValueKind = iota
	// KindLogical is a boolean vector.
	KindLogical
	// KindInteger is a 32-bit integer vector.
	KindInteger
	// KindDouble is a float64 vector.
	KindDouble
	// KindComplex is a complex128 vector.
	KindComplex
	// KindCharacter is a string vector.
	KindCharacter
	// KindRaw is a byte vector.
	KindRaw
	// KindList is a generic list, optionally named.
	KindList
	// KindClosure is a host function.
	KindClosure
	// KindExternal is an opaque handle: an ObjectRef or any other host
	// payload the bridge round-trips through a capsule.
	KindExternal
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindLogical:
		return "logical"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindComplex:
		return "complex"
	case KindCharacter:
		return "character"
	case KindRaw:
		return "raw"
	case KindList:
		return "list"
	case KindClosure:
		return "closure"
	case KindExternal:
		return "external"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Closure is a host function value. Fn receives positional and keyword
// arguments and returns exactly one of a result or an error. Ref, when
// non-nil, is the guest callable this closure adapts, so identity survives a
// round trip.
type Closure struct {
	Name string
	Fn   func(args []Value, kwargs map[string]Value) (Value, error)
	Ref  *ObjectRef
}

// Value is one host value: a tagged vector with optional names, an optional
// missing-value mask aligned with the payload, and an optional dimension
// attribute. The zero Value is null.
type Value struct {
	kind ValueKind

	lgl  []bool
	ints []int32
	dbl  []float64
	cpx  []complex128
	chr  []string
	raw  []byte
	list []Value

	names []string
	na    []bool
	dim   []int

	closure *Closure
	ext     any
}

// ============================================================================
// Constructors
// ============================================================================

// Null returns the host null value.
func Null() Value { return Value{} }

// Logical builds a boolean vector.
func Logical(v ...bool) Value { return Value{kind: KindLogical, lgl: v} }

// Integer builds a 32-bit integer vector.
func Integer(v ...int32) Value { return Value{kind: KindInteger, ints: v} }

// Double builds a float64 vector.
func Double(v ...float64) Value { return Value{kind: KindDouble, dbl: v} }

// Complex builds a complex128 vector.
func Complex(v ...complex128) Value { return Value{kind: KindComplex, cpx: v} }

// Character builds a string vector.
func Character(v ...string) Value { return Value{kind: KindCharacter, chr: v} }

// Raw builds a byte vector over v (not copied).
func Raw(v []byte) Value {
	if v == nil {
		v = []byte{}
	}
	return Value{kind: KindRaw, raw: v}
}

// List builds an unnamed list.
func List(v ...Value) Value { return Value{kind: KindList, list: v} }

// NamedList builds a named list. names must align with values.
func NamedList(names []string, values []Value) Value {
	if len(names) != len(values) {
		panic("objbridge: NamedList name/value length mismatch")
	}
	return Value{kind: KindList, list: values, names: names}
}

// NewClosure builds a closure value.
func NewClosure(c *Closure) Value { return Value{kind: KindClosure, closure: c} }

// External builds an opaque handle value.
func External(handle any) Value { return Value{kind: KindExternal, ext: handle} }

// NA returns the host missing-value scalar: a length-1 logical with its
// missing mask set, the conventional type for a bare missing value.
func NA() Value {
	v := Logical(false)
	v.na = []bool{true}
	return v
}

// ============================================================================
// Accessors
// ============================================================================

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Len returns the element count of the payload.
func (v Value) Len() int {
	switch v.kind {
	case KindLogical:
		return len(v.lgl)
	case KindInteger:
		return len(v.ints)
	case KindDouble:
		return len(v.dbl)
	case KindComplex:
		return len(v.cpx)
	case KindCharacter:
		return len(v.chr)
	case KindRaw:
		return len(v.raw)
	case KindList:
		return len(v.list)
	default:
		return 0
	}
}

// Logicals returns the boolean payload.
func (v Value) Logicals() []bool { return v.lgl }

// Integers returns the integer payload.
func (v Value) Integers() []int32 { return v.ints }

// Doubles returns the float payload.
func (v Value) Doubles() []float64 { return v.dbl }

// Complexes returns the complex payload.
func (v Value) Complexes() []complex128 { return v.cpx }

// Characters returns the string payload.
func (v Value) Characters() []string { return v.chr }

// RawBytes returns the byte payload.
func (v Value) RawBytes() []byte { return v.raw }

// Elements returns the list payload.
func (v Value) Elements() []Value { return v.list }

// ClosureValue returns the closure payload, or nil.
func (v Value) ClosureValue() *Closure { return v.closure }

// Handle returns the opaque external payload.
func (v Value) Handle() any { return v.ext }

// Ref returns the ObjectRef payload of a reference-wrapper value, or nil.
func (v Value) Ref() *ObjectRef {
	r, _ := v.ext.(*ObjectRef)
	return r
}

// Names returns the element names, or nil for an unnamed value.
func (v Value) Names() []string { return v.names }

// SetNames attaches element names. Pass nil to clear.
func (v *Value) SetNames(names []string) {
	if names != nil && len(names) != v.Len() {
		panic("objbridge: SetNames length mismatch")
	}
	v.names = names
}

// Dim returns the dimension attribute, or nil. Values carrying a dimension
// convert to guest arrays rather than scalars or lists.
func (v Value) Dim() []int { return v.dim }

// SetDim attaches a dimension attribute; the product must equal Len.
func (v *Value) SetDim(dim []int) {
	if dim != nil {
		n := 1
		for _, d := range dim {
			n *= d
		}
		if n != v.Len() {
			panic(fmt.Sprintf("objbridge: dim %v does not match length %d", dim, v.Len()))
		}
	}
	v.dim = dim
}

// WithDim returns a copy of v with the dimension attribute set.
func (v Value) WithDim(dim ...int) Value {
	v.SetDim(dim)
	return v
}

// IsNA reports whether element i is missing.
func (v Value) IsNA(i int) bool { return i < len(v.na) && v.na[i] }

// NAMask returns the missing-value mask, or nil if nothing is missing.
func (v Value) NAMask() []bool { return v.na }

// SetNAMask attaches a missing-value mask aligned with the payload.
func (v *Value) SetNAMask(mask []bool) {
	if mask != nil && len(mask) != v.Len() {
		panic("objbridge: SetNAMask length mismatch")
	}
	v.na = mask
}

// HasNA reports whether any element is missing.
func (v Value) HasNA() bool {
	for _, m := range v.na {
		if m {
			return true
		}
	}
	return false
}
