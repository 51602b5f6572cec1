package objbridge

import (
	"fmt"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// narrowKind is the host storage type a guest array element type narrows to.
type narrowKind int

const (
	narrowLogical narrowKind = iota
	narrowInteger
	narrowDouble
	narrowComplex
	// narrowElementwise marks element types with no bulk host
	// representation; the array and object rules convert per element.
	narrowElementwise
)

func (k narrowKind) String() string {
	switch k {
	case narrowLogical:
		return "logical"
	case narrowInteger:
		return "integer"
	case narrowDouble:
		return "double"
	case narrowComplex:
		return "complex"
	case narrowElementwise:
		return "elementwise"
	default:
		return fmt.Sprintf("narrow(%d)", int(k))
	}
}

// narrowDType maps a guest array element type to host storage. The table is
// total over guest.DType: anything it does not know is a hard conversion
// error, never a silent fallback. It is idempotent by construction since the
// output kinds are fixed points.
func narrowDType(d guest.DType) (narrowKind, error) {
	switch d {
	case guest.DTypeBool:
		return narrowLogical, nil
	case guest.DTypeInt8, guest.DTypeUInt8, guest.DTypeInt16, guest.DTypeUInt16, guest.DTypeInt32:
		return narrowInteger, nil
	case guest.DTypeUInt32, guest.DTypeInt64, guest.DTypeUInt64,
		guest.DTypeFloat16, guest.DTypeFloat32, guest.DTypeFloat64:
		return narrowDouble, nil
	case guest.DTypeComplex64, guest.DTypeComplex128:
		return narrowComplex, nil
	case guest.DTypeString, guest.DTypeObject:
		return narrowElementwise, nil
	default:
		return 0, &ConversionError{
			Direction: "guest to host",
			Reason:    fmt.Sprintf("unsupported array element type %s", d),
		}
	}
}
