package objbridge

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ToMatrix views a two-dimensional double value as a dense matrix. The host
// payload is column-major, so elements are copied into the matrix's own
// storage.
func ToMatrix(v Value) (*mat.Dense, error) {
	if v.Kind() != KindDouble {
		return nil, &ConversionError{
			Direction: "host to matrix",
			Reason:    fmt.Sprintf("need a double value, got %s", v.Kind()),
		}
	}
	dim := v.Dim()
	if len(dim) != 2 {
		return nil, &ConversionError{
			Direction: "host to matrix",
			Reason:    fmt.Sprintf("need two dimensions, got %v", dim),
		}
	}
	r, c := dim[0], dim[1]
	m := mat.NewDense(r, c, nil)
	data := v.Doubles()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			m.Set(i, j, data[j*r+i])
		}
	}
	return m, nil
}

// FromMatrix copies a matrix into a dimensioned double value in column-major
// order, ready for zero-copy sharing with a guest array.
func FromMatrix(m mat.Matrix) Value {
	r, c := m.Dims()
	data := make([]float64, r*c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			data[j*r+i] = m.At(i, j)
		}
	}
	v := Double(data...)
	v.SetDim([]int{r, c})
	return v
}
