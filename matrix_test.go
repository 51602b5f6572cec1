package objbridge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestMatrixRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})

	v := FromMatrix(m)
	if diff := cmp.Diff([]int{2, 3}, v.Dim()); diff != "" {
		t.Fatalf("dim (-want +got):\n%s", diff)
	}
	// column-major storage
	want := Double(1, 4, 2, 5, 3, 6).WithDim(2, 3)
	if diff := cmp.Diff(want, v, valueCmp); diff != "" {
		t.Errorf("FromMatrix (-want +got):\n%s", diff)
	}

	back, err := ToMatrix(v)
	if err != nil {
		t.Fatalf("ToMatrix() error = %v", err)
	}
	if !mat.Equal(m, back) {
		t.Errorf("matrix round trip mismatch:\n%v\n%v", mat.Formatted(m), mat.Formatted(back))
	}
}

func TestMatrixThroughGuestArray(t *testing.T) {
	b := newTestBridge(t)

	v := FromMatrix(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	obj, err := b.ToGuest(v, true)
	if err != nil {
		t.Fatalf("ToGuest() error = %v", err)
	}
	defer obj.DecRef()

	back, err := b.ToHost(obj, true)
	if err != nil {
		t.Fatalf("ToHost() error = %v", err)
	}
	m, err := ToMatrix(back)
	if err != nil {
		t.Fatalf("ToMatrix() error = %v", err)
	}
	if got := m.At(1, 0); got != 3 {
		t.Errorf("At(1,0) = %v, want 3", got)
	}
}

func TestToMatrixRejectsBadShape(t *testing.T) {
	if _, err := ToMatrix(Double(1, 2, 3)); err == nil {
		t.Errorf("ToMatrix without dim = nil error, want ConversionError")
	}
	if _, err := ToMatrix(Character("x").WithDim(1, 1)); err == nil {
		t.Errorf("ToMatrix on character = nil error, want ConversionError")
	}
}
