package objbridge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

func TestRefAttrAccess(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	obj := rt.NewObjectWithClass(&guest.Class{Name: "Point", Module: "demo"})
	ref := b.adoptRef(obj, true)
	defer ref.Close()

	if err := ref.SetAttr("x", Integer(3)); err != nil {
		t.Fatalf("SetAttr() error = %v", err)
	}
	got, err := ref.Attr("x")
	if err != nil {
		t.Fatalf("Attr() error = %v", err)
	}
	if diff := cmp.Diff(Integer(3), got, valueCmp); diff != "" {
		t.Errorf("attribute (-want +got):\n%s", diff)
	}

	if !ref.HasAttr("x") {
		t.Errorf("HasAttr(x) = false")
	}
	if err := ref.DelAttr("x"); err != nil {
		t.Fatalf("DelAttr() error = %v", err)
	}
	if ref.HasAttr("x") {
		t.Errorf("attribute survived DelAttr")
	}
}

func TestRefMissingAttrIsGuestError(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	obj := rt.NewObjectWithClass(&guest.Class{Name: "Empty", Module: "demo"})
	ref := b.adoptRef(obj, true)
	defer ref.Close()

	_, err := ref.Attr("missing")
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	if gerr.Type != "AttributeError" {
		t.Errorf("Type = %q, want AttributeError", gerr.Type)
	}
}

func TestRefItemAccess(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	ref := b.adoptRef(rt.NewDict(), true)
	defer ref.Close()

	if err := ref.SetItem(Character("k"), Integer(1)); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
	got, err := ref.GetItem(Character("k"))
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if diff := cmp.Diff(Integer(1), got, valueCmp); diff != "" {
		t.Errorf("item (-want +got):\n%s", diff)
	}
	if ref.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ref.Len())
	}

	if err := ref.DelItem(Character("k")); err != nil {
		t.Fatalf("DelItem() error = %v", err)
	}
	_, err = ref.GetItem(Character("k"))
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	if gerr.Type != "KeyError" {
		t.Errorf("Type = %q, want KeyError", gerr.Type)
	}
}

func TestRefCallPerConvertFlag(t *testing.T) {
	b := newTestBridge(t)

	fn := sumCallable(b.Runtime())
	lazy := b.adoptRef(fn, false)
	defer lazy.Close()

	got, err := lazy.Call([]Value{Integer(1), Integer(2)}, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.Ref() == nil {
		t.Fatalf("convert=false call returned %s, want wrapper", got.Kind())
	}
	got.Ref().Close()
}

func TestRefCloseIdempotent(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	obj := rt.NewInt(1)
	ref := b.adoptRef(obj, true)
	ref.Close()
	ref.Close()
}

func TestRefComparison(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	two := b.adoptRef(rt.NewInt(2), true)
	defer two.Close()
	half := b.adoptRef(rt.NewFloat(2.5), true)
	defer half.Close()

	for _, tt := range []struct {
		op   string
		want bool
	}{
		{"<", true}, {"<=", true}, {">", false}, {">=", false}, {"==", false}, {"!=", true},
	} {
		got, err := two.Compare(half, tt.op)
		if err != nil {
			t.Fatalf("Compare(%s) error = %v", tt.op, err)
		}
		if got != tt.want {
			t.Errorf("2 %s 2.5 = %t, want %t", tt.op, got, tt.want)
		}
	}

	str := b.adoptRef(rt.NewStr("x"), true)
	defer str.Close()
	_, err := two.Compare(str, "<")
	var gerr *GuestError
	if !errors.As(err, &gerr) {
		t.Fatalf("error type = %T, want *GuestError", err)
	}
	if gerr.Type != "TypeError" {
		t.Errorf("Type = %q, want TypeError", gerr.Type)
	}
}

func TestRefPredicates(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	none := b.NewRef(rt.None, true)
	defer none.Close()
	if !none.IsNone() {
		t.Errorf("IsNone() = false for the null sentinel")
	}

	fn := b.adoptRef(sumCallable(rt), true)
	defer fn.Close()
	if !fn.IsCallable() {
		t.Errorf("IsCallable() = false for a callable")
	}

	_, ok, err := fn.AttrOrNil("nope")
	if err != nil || ok {
		t.Errorf("AttrOrNil(nope) = ok=%t err=%v, want absent without error", ok, err)
	}
}

func TestRefStringUsesGenericConversion(t *testing.T) {
	b := newTestBridge(t)
	rt := b.Runtime()

	ref := b.adoptRef(rt.NewList(rt.NewInt(1), rt.NewStr("x")), true)
	defer ref.Close()

	if got := ref.String(); got != `[1, "x"]` {
		t.Errorf("String() = %q", got)
	}
}
