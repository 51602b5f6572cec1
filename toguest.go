package objbridge

import (
	"fmt"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// ToGuest converts a host value into a guest object, returning a new
// reference. The convert flag is propagated into any reference wrapper the
// guest side later hands back through the callable adapter.
func (b *Bridge) ToGuest(v Value, convert bool) (*guest.Object, error) {
	switch v.Kind() {
	case KindNull:
		return b.rt.None.IncRef(), nil

	case KindExternal:
		// a wrapper previously produced by ToHost round-trips to its
		// stored guest object; a raw guest object is treated the same
		switch h := v.Handle().(type) {
		case *ObjectRef:
			return h.obj.IncRef(), nil
		case *guest.Object:
			return h.IncRef(), nil
		}
		// any other opaque host handle becomes a capsule, which ToHost
		// unwraps back to this exact value
		return b.newHostCapsule(v), nil

	case KindClosure:
		if v.ClosureValue().Ref != nil {
			// an adapted guest callable round-trips to itself
			return v.ClosureValue().Ref.obj.IncRef(), nil
		}
		return b.hostClosureToGuest(v.ClosureValue(), convert), nil
	}

	if v.Dim() != nil {
		return b.vectorToGuestArray(v)
	}

	switch v.Kind() {
	case KindLogical, KindInteger, KindDouble, KindComplex, KindCharacter:
		if v.Len() == 1 {
			return b.scalarToGuest(v, 0), nil
		}
		// longer vectors become lists of scalars, never arrays, so the
		// uniform-sequence rule maps them straight back
		items := make([]*guest.Object, v.Len())
		for i := range items {
			items[i] = b.scalarToGuest(v, i)
		}
		return b.rt.NewList(items...), nil

	case KindRaw:
		return b.rt.NewBytes(v.RawBytes()), nil

	case KindList:
		if v.Names() != nil {
			return b.namedListToGuest(v)
		}
		items := make([]*guest.Object, v.Len())
		for i, el := range v.Elements() {
			obj, err := b.ToGuest(el, convert)
			if err != nil {
				for _, it := range items[:i] {
					it.DecRef()
				}
				return nil, err
			}
			items[i] = obj
		}
		return b.rt.NewList(items...), nil
	}

	return nil, &ConversionError{
		Direction: "host to guest",
		Reason:    fmt.Sprintf("unsupported host value kind %s", v.Kind()),
	}
}

// scalarToGuest converts element i of a typed vector. Missing elements map
// to the guest's missing sentinel.
func (b *Bridge) scalarToGuest(v Value, i int) *guest.Object {
	if v.IsNA(i) {
		return b.rt.NA.IncRef()
	}
	switch v.Kind() {
	case KindLogical:
		return b.rt.NewBool(v.Logicals()[i])
	case KindInteger:
		return b.rt.NewInt(int64(v.Integers()[i]))
	case KindDouble:
		return b.rt.NewFloat(v.Doubles()[i])
	case KindComplex:
		return b.rt.NewComplex(v.Complexes()[i])
	case KindCharacter:
		return b.rt.NewStr(v.Characters()[i])
	default:
		panic(fmt.Sprintf("objbridge: scalarToGuest on %s", v.Kind()))
	}
}

// vectorToGuestArray converts a dimensioned host vector into a guest array.
// Numeric and boolean payloads share their backing store with the guest
// array (zero copy); the host value is pinned alive for the array's lifetime
// through a capsule base. Character payloads are copied since no shared
// representation exists. Host storage is column-major, and the array keeps
// that layout.
func (b *Bridge) vectorToGuestArray(v Value) (*guest.Object, error) {
	dim := make([]int, len(v.Dim()))
	copy(dim, v.Dim())

	var (
		dtype guest.DType
		data  any
	)
	switch v.Kind() {
	case KindLogical:
		dtype, data = guest.DTypeBool, v.Logicals()
	case KindInteger:
		dtype, data = guest.DTypeInt32, v.Integers()
	case KindDouble:
		dtype, data = guest.DTypeFloat64, v.Doubles()
	case KindComplex:
		dtype, data = guest.DTypeComplex128, v.Complexes()
	case KindCharacter:
		copied := make([]string, len(v.Characters()))
		copy(copied, v.Characters())
		return b.rt.NewArray(guest.DTypeString, dim, true, copied), nil
	default:
		return nil, &ConversionError{
			Direction: "host to guest",
			Reason:    fmt.Sprintf("cannot build an array from host kind %s", v.Kind()),
		}
	}

	base := b.newHostCapsule(v)
	return b.rt.NewSharedArray(dtype, dim, true, data, base), nil
}

// namedListToGuest converts a named host list into a guest mapping,
// preserving element order.
func (b *Bridge) namedListToGuest(v Value) (*guest.Object, error) {
	dict := b.rt.NewDict()
	names := v.Names()
	for i, el := range v.Elements() {
		obj, err := b.ToGuest(el, true)
		if err != nil {
			dict.DecRef()
			return nil, err
		}
		key := b.rt.NewStr(names[i])
		b.rt.DictSet(dict, key, obj)
		key.DecRef()
		obj.DecRef()
	}
	return dict, nil
}
