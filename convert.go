package objbridge

import (
	"math"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// ToHost converts a guest object into a host value. The input reference is
// borrowed. With convert=false the object is returned as a reference
// wrapper; with convert=true the structural classifier below is applied in
// fixed priority order and the first match wins, falling back to a wrapper
// when nothing matches.
func (b *Bridge) ToHost(obj *guest.Object, convert bool) (Value, error) {
	if !convert {
		return External(b.NewRef(obj, false)), nil
	}

	// Round-trip fast path: a capsule this bridge created unwraps straight
	// back to the preserved host value.
	if v, ok := b.unwrapHostCapsule(obj); ok {
		return v, nil
	}
	if obj == b.rt.NA {
		return NA(), nil
	}

	switch obj.Kind() {
	case guest.KindNone:
		if obj.Class() == b.rt.None.Class() {
			return Null(), nil
		}
		// custom-class instances fall through to the wrapper

	case guest.KindBool:
		return Logical(obj.Bool()), nil

	case guest.KindInt:
		return intScalar(obj.Int()), nil

	case guest.KindFloat:
		return Double(obj.Float()), nil

	case guest.KindComplex:
		return Complex(obj.Complex()), nil

	case guest.KindStr:
		return Character(obj.String()), nil

	case guest.KindList:
		return b.sequenceToHost(obj.Items())

	case guest.KindTuple:
		if !obj.IsNamedTuple() {
			// plain tuples become unnamed lists, never named vectors
			return b.listToHost(obj.Items())
		}

	case guest.KindDict:
		return b.dictToHost(obj)

	case guest.KindArray:
		if b.numericAvailable {
			return b.arrayToHost(obj)
		}

	case guest.KindCallable:
		return b.guestCallableToHost(obj, convert), nil

	case guest.KindIterator:
		// never eagerly drained
		return External(b.NewRef(obj, convert)), nil

	case guest.KindBytes:
		// zero-length buffers produce a zero-length vector, not null
		return Raw(obj.Bytes()), nil
	}

	return External(b.NewRef(obj, true)), nil
}

// intScalar maps a guest integer to host storage: a 32-bit integer when it
// fits, a double otherwise.
func intScalar(i int64) Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Integer(int32(i))
	}
	return Double(float64(i))
}

// sequenceToHost converts a guest list. A sequence whose elements are all
// one scalar kind collapses into a single typed vector; anything non-uniform,
// nested or empty becomes a host list of recursively converted elements.
func (b *Bridge) sequenceToHost(items []*guest.Object) (Value, error) {
	if len(items) == 0 {
		return List(), nil
	}
	kind := items[0].Kind()
	uniform := scalarKind(kind)
	for _, it := range items[1:] {
		if it.Kind() != kind {
			uniform = false
			break
		}
	}
	if !uniform {
		return b.listToHost(items)
	}

	switch kind {
	case guest.KindBool:
		out := make([]bool, len(items))
		for i, it := range items {
			out[i] = it.Bool()
		}
		return Logical(out...), nil
	case guest.KindInt:
		out := make([]int32, len(items))
		for i, it := range items {
			n := it.Int()
			if n < math.MinInt32 || n > math.MaxInt32 {
				return b.intOverflowToHost(items)
			}
			out[i] = int32(n)
		}
		return Integer(out...), nil
	case guest.KindFloat:
		out := make([]float64, len(items))
		for i, it := range items {
			out[i] = it.Float()
		}
		return Double(out...), nil
	case guest.KindComplex:
		out := make([]complex128, len(items))
		for i, it := range items {
			out[i] = it.Complex()
		}
		return Complex(out...), nil
	case guest.KindStr:
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.String()
		}
		return Character(out...), nil
	default:
		return b.listToHost(items)
	}
}

func scalarKind(k guest.Kind) bool {
	switch k {
	case guest.KindBool, guest.KindInt, guest.KindFloat, guest.KindComplex, guest.KindStr:
		return true
	}
	return false
}

// intOverflowToHost widens an integer sequence to doubles when any element
// exceeds 32-bit host integer range.
func (b *Bridge) intOverflowToHost(items []*guest.Object) (Value, error) {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = float64(it.Int())
	}
	return Double(out...), nil
}

// listToHost converts each element recursively into an unnamed host list.
func (b *Bridge) listToHost(items []*guest.Object) (Value, error) {
	out := make([]Value, len(items))
	for i, it := range items {
		v, err := b.ToHost(it, true)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return List(out...), nil
}

// dictToHost converts a mapping into a named host list. Non-string keys are
// stringified with the guest's generic conversion; insertion order is kept.
func (b *Bridge) dictToHost(obj *guest.Object) (Value, error) {
	entries := obj.Entries()
	names := make([]string, len(entries))
	values := make([]Value, len(entries))
	for i, e := range entries {
		if e.Key.Kind() == guest.KindStr {
			names[i] = e.Key.String()
		} else {
			names[i] = b.rt.Str(e.Key)
		}
		v, err := b.ToHost(e.Val, true)
		if err != nil {
			return Value{}, err
		}
		values[i] = v
	}
	return NamedList(names, values), nil
}

// arrayToHost copies a guest array into host column-major storage, narrowing
// its element type with the fixed table. Non-numeric element types convert
// per element: a generic-object array collapses to a character vector only
// when every element is string-like or missing, otherwise it becomes a host
// list. Multi-dimensional inputs carry their shape as the dim attribute.
func (b *Bridge) arrayToHost(obj *guest.Object) (Value, error) {
	arr := obj.Array()
	nk, err := narrowDType(arr.DType)
	if err != nil {
		return Value{}, err
	}
	n := arr.Size()

	var v Value
	switch nk {
	case narrowLogical:
		out := make([]bool, n)
		for i := 0; i < n; i++ {
			out[i] = arr.BoolAt(i)
		}
		v = Logical(out...)
	case narrowInteger:
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = int32(arr.IntAt(i))
		}
		v = Integer(out...)
	case narrowDouble:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = arr.FloatAt(i)
		}
		v = Double(out...)
	case narrowComplex:
		out := make([]complex128, n)
		for i := 0; i < n; i++ {
			out[i] = arr.ComplexAt(i)
		}
		v = Complex(out...)
	case narrowElementwise:
		ev, err := b.elementwiseArrayToHost(arr, n)
		if err != nil {
			return Value{}, err
		}
		v = ev
	}

	if arr.NDim() > 0 {
		dim := make([]int, arr.NDim())
		copy(dim, arr.Shape)
		v.SetDim(dim)
	}
	return v, nil
}

func (b *Bridge) elementwiseArrayToHost(arr *guest.Array, n int) (Value, error) {
	if arr.DType == guest.DTypeString {
		out := make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = arr.StringAt(i)
		}
		return Character(out...), nil
	}

	// generic-object array: a character vector only when every element is
	// string-like or the missing sentinel
	stringLike := true
	for i := 0; i < n; i++ {
		el := arr.ObjectAt(i)
		if el.Kind() != guest.KindStr && el != b.rt.NA {
			stringLike = false
			break
		}
	}
	if stringLike {
		out := make([]string, n)
		var mask []bool
		for i := 0; i < n; i++ {
			el := arr.ObjectAt(i)
			if el == b.rt.NA {
				if mask == nil {
					mask = make([]bool, n)
				}
				mask[i] = true
				continue
			}
			out[i] = el.String()
		}
		v := Character(out...)
		v.SetNAMask(mask)
		return v, nil
	}

	out := make([]Value, n)
	for i := 0; i < n; i++ {
		ev, err := b.ToHost(arr.ObjectAt(i), true)
		if err != nil {
			return Value{}, err
		}
		out[i] = ev
	}
	return List(out...), nil
}
