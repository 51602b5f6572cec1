package guest

import (
	"fmt"
	"math"
)

// DType is the element type of a typed array.
type DType int

const (
	DTypeBool DType = iota
	DTypeInt8
	DTypeUInt8
	DTypeInt16
	DTypeUInt16
	DTypeInt32
	DTypeUInt32
	DTypeInt64
	DTypeUInt64
	DTypeFloat16
	DTypeFloat32
	DTypeFloat64
	DTypeComplex64
	DTypeComplex128
	DTypeString
	DTypeObject
)

func (d DType) String() string {
	switch d {
	case DTypeBool:
		return "bool"
	case DTypeInt8:
		return "int8"
	case DTypeUInt8:
		return "uint8"
	case DTypeInt16:
		return "int16"
	case DTypeUInt16:
		return "uint16"
	case DTypeInt32:
		return "int32"
	case DTypeUInt32:
		return "uint32"
	case DTypeInt64:
		return "int64"
	case DTypeUInt64:
		return "uint64"
	case DTypeFloat16:
		return "float16"
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	case DTypeComplex64:
		return "complex64"
	case DTypeComplex128:
		return "complex128"
	case DTypeString:
		return "str"
	case DTypeObject:
		return "object"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Array is a multi-dimensional typed array with an explicit memory order.
// Data is one of []bool, []int8, []uint8, []int16, []uint16, []int32,
// []uint32, []int64, []uint64, []float32, []float64, []complex64,
// []complex128, []string or []*Object, stored contiguously in either
// row-major or column-major order. A zero-length Shape marks an array
// scalar. base, when set, pins foreign backing storage for the lifetime of
// the array.
type Array struct {
	DType    DType
	Shape    []int
	ColMajor bool
	Data     any

	base *Object
}

// Size returns the total element count (1 for an array scalar).
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// NDim returns the number of dimensions.
func (a *Array) NDim() int { return len(a.Shape) }

// index translates a flat column-major position into a flat position in the
// array's own storage order.
func (a *Array) index(colMajorPos int) int {
	if a.ColMajor || len(a.Shape) < 2 {
		return colMajorPos
	}
	// decompose along column-major axes, recompose row-major
	coords := make([]int, len(a.Shape))
	rem := colMajorPos
	for i, d := range a.Shape {
		coords[i] = rem % d
		rem /= d
	}
	pos := 0
	for i := range a.Shape {
		pos = pos*a.Shape[i] + coords[i]
	}
	return pos
}

// BoolAt, IntAt, FloatAt and ComplexAt read one element at a flat
// column-major position, widening the stored element type. They are the
// access path the bridge copies through; unsupported dtypes panic since the
// narrowing table rejects them first.

func (a *Array) BoolAt(pos int) bool {
	return a.Data.([]bool)[a.index(pos)]
}

func (a *Array) IntAt(pos int) int64 {
	i := a.index(pos)
	switch d := a.Data.(type) {
	case []int8:
		return int64(d[i])
	case []uint8:
		return int64(d[i])
	case []int16:
		return int64(d[i])
	case []uint16:
		return int64(d[i])
	case []int32:
		return int64(d[i])
	default:
		panic(fmt.Sprintf("guest: IntAt on %s array", a.DType))
	}
}

func (a *Array) FloatAt(pos int) float64 {
	i := a.index(pos)
	// float16 shares []uint16 storage with uint16, so dispatch on dtype
	if a.DType == DTypeFloat16 {
		return halfToFloat64(a.Data.([]uint16)[i])
	}
	switch d := a.Data.(type) {
	case []uint32:
		return float64(d[i])
	case []int64:
		return float64(d[i])
	case []uint64:
		return float64(d[i])
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	default:
		panic(fmt.Sprintf("guest: FloatAt on %s array", a.DType))
	}
}

func (a *Array) ComplexAt(pos int) complex128 {
	i := a.index(pos)
	switch d := a.Data.(type) {
	case []complex64:
		return complex128(d[i])
	case []complex128:
		return d[i]
	default:
		panic(fmt.Sprintf("guest: ComplexAt on %s array", a.DType))
	}
}

// halfToFloat64 widens an IEEE 754 binary16 value stored as raw bits.
func halfToFloat64(bits uint16) float64 {
	sign := uint64(bits>>15) << 63
	exp := uint64(bits >> 10 & 0x1f)
	frac := uint64(bits & 0x3ff)
	switch exp {
	case 0:
		if frac == 0 {
			return math.Float64frombits(sign) // signed zero
		}
		f := float64(frac) * 0x1p-24 // subnormal
		if sign != 0 {
			f = -f
		}
		return f
	case 0x1f:
		if frac == 0 {
			return math.Float64frombits(sign | 0x7ff0000000000000)
		}
		return math.NaN()
	}
	// rebias 15 -> 1023, widen the 10-bit fraction to 52
	return math.Float64frombits(sign | (exp+1008)<<52 | frac<<42)
}

// StringAt reads one element of a string-dtype array.
func (a *Array) StringAt(pos int) string {
	return a.Data.([]string)[a.index(pos)]
}

// ObjectAt reads one element of an object-dtype array (borrowed reference).
func (a *Array) ObjectAt(pos int) *Object {
	return a.Data.([]*Object)[a.index(pos)]
}

func dataLen(data any) int {
	switch d := data.(type) {
	case []bool:
		return len(d)
	case []int8:
		return len(d)
	case []uint8:
		return len(d)
	case []int16:
		return len(d)
	case []uint16:
		return len(d)
	case []int32:
		return len(d)
	case []uint32:
		return len(d)
	case []int64:
		return len(d)
	case []uint64:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []complex64:
		return len(d)
	case []complex128:
		return len(d)
	case []string:
		return len(d)
	case []*Object:
		return len(d)
	default:
		return -1
	}
}

// NewArray allocates an array object. Data length must match the shape
// product; object-dtype element references are adopted (stolen).
func (rt *Runtime) NewArray(dtype DType, shape []int, colMajor bool, data any) *Object {
	arr := &Array{DType: dtype, Shape: shape, ColMajor: colMajor, Data: data}
	if n := dataLen(data); n != arr.Size() {
		panic(fmt.Sprintf("guest: array data length %d does not match shape %v", n, shape))
	}
	o := newObject(KindArray, arrayClass)
	o.arr = arr
	return o
}

// NewSharedArray allocates an array over foreign backing storage, pinning
// base (typically a capsule holding a preserved host value) for the array's
// lifetime. The base reference is adopted.
func (rt *Runtime) NewSharedArray(dtype DType, shape []int, colMajor bool, data any, base *Object) *Object {
	o := rt.NewArray(dtype, shape, colMajor, data)
	o.arr.base = base
	return o
}

// NewArrayScalar allocates a zero-dimensional array (array scalar).
func (rt *Runtime) NewArrayScalar(dtype DType, data any) *Object {
	return rt.NewArray(dtype, nil, true, data)
}
