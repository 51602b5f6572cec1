package guest

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefcountLifecycle(t *testing.T) {
	rt := New(nil, nil)

	o := rt.NewInt(5)
	assert.Equal(t, int32(1), o.Refs())
	o.IncRef()
	assert.Equal(t, int32(2), o.Refs())
	o.DecRef()
	o.DecRef()
	assert.Equal(t, int32(0), o.Refs())
}

func TestRefcountUnderflowPanics(t *testing.T) {
	rt := New(nil, nil)
	o := rt.NewInt(5)
	o.DecRef()
	assert.Panics(t, func() { o.DecRef() })
}

func TestSingletonsAreImmortal(t *testing.T) {
	rt := New(nil, nil)
	for i := 0; i < 10; i++ {
		rt.None.DecRef()
		rt.True.DecRef()
		rt.NA.DecRef()
	}
	assert.Equal(t, int32(1), rt.None.Refs())
	assert.Same(t, rt.True, rt.NewBool(true))
	assert.Same(t, rt.False, rt.NewBool(false))
}

func TestContainerFinalizeReleasesChildren(t *testing.T) {
	rt := New(nil, nil)

	el := rt.NewStr("x")
	el.IncRef() // keep our own handle across the list's death
	lst := rt.NewList(el)
	lst.DecRef()
	assert.Equal(t, int32(1), el.Refs())
	el.DecRef()
}

func TestCapsuleDestructorRunsOnce(t *testing.T) {
	rt := New(nil, nil)

	freed := 0
	cap := rt.NewCapsule("tag", 42, func(*Object) { freed++ })
	cap.IncRef()
	cap.DecRef()
	assert.Zero(t, freed)
	cap.DecRef()
	assert.Equal(t, 1, freed)
	assert.True(t, IsCapsule(cap, "tag"))
	assert.Equal(t, 42, cap.CapsulePointer())
}

func TestClassTagsAndMRO(t *testing.T) {
	base := &Class{Name: "Animal", Module: "zoo", Bases: []*Class{{Name: "object", Module: "builtins"}}}
	derived := &Class{Name: "Dog", Module: "zoo", Bases: []*Class{base}}

	mro := derived.MRO()
	require.Len(t, mro, 3)
	assert.Equal(t, "zoo.Dog", mro[0].Tag())
	assert.Equal(t, "zoo.Animal", mro[1].Tag())
	assert.Equal(t, "guest.object", mro[2].Tag())
}

func TestDictPreservesInsertionOrder(t *testing.T) {
	rt := New(nil, nil)

	d := rt.NewDict()
	defer d.DecRef()
	for _, k := range []string{"b", "a", "c"} {
		key := rt.NewStr(k)
		val := rt.NewInt(int64(len(k)))
		rt.DictSet(d, key, val)
		key.DecRef()
		val.DecRef()
	}

	var keys []string
	for _, e := range d.Entries() {
		keys = append(keys, e.Key.String())
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)
}

func TestDictReplaceKeepsPosition(t *testing.T) {
	rt := New(nil, nil)

	d := rt.NewDict()
	defer d.DecRef()
	k1, k2 := rt.NewStr("x"), rt.NewStr("y")
	v1, v2, v3 := rt.NewInt(1), rt.NewInt(2), rt.NewInt(3)
	rt.DictSet(d, k1, v1)
	rt.DictSet(d, k2, v2)
	rt.DictSet(d, k1, v3)
	for _, o := range []*Object{k1, k2, v1, v2, v3} {
		o.DecRef()
	}

	require.Equal(t, 2, d.Len())
	assert.Equal(t, "x", d.Entries()[0].Key.String())
	assert.Equal(t, int64(3), d.Entries()[0].Val.Int())
}

func TestCallRaisesForNonCallable(t *testing.T) {
	rt := New(nil, nil)

	n := rt.NewInt(1)
	defer n.DecRef()
	res := rt.Call(n, nil, nil)
	assert.Nil(t, res)
	assert.Equal(t, "TypeError", rt.PendingTypeName())
	rt.Clear()
}

func TestIterationOverList(t *testing.T) {
	rt := New(nil, nil)

	lst := rt.NewList(rt.NewInt(1), rt.NewInt(2), rt.NewInt(3))
	defer lst.DecRef()

	it := rt.GetIter(lst)
	require.NotNil(t, it)
	defer it.DecRef()
	require.True(t, it.IsIterator())

	var got []int64
	for {
		o, done := rt.IterNext(it)
		if done {
			break
		}
		got = append(got, o.Int())
		o.DecRef()
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestGetIterRejectsNonIterable(t *testing.T) {
	rt := New(nil, nil)
	n := rt.NewInt(1)
	defer n.DecRef()
	assert.Nil(t, rt.GetIter(n))
	assert.Equal(t, "TypeError", rt.PendingTypeName())
	rt.Clear()
}

func TestRaiseChainsPendingException(t *testing.T) {
	rt := New(nil, nil)

	rt.Raise("KeyError", "missing")
	rt.Raise("RuntimeError", "handler failed")

	exc := rt.Fetch()
	require.NotNil(t, exc)
	defer exc.DecRef()
	assert.Equal(t, "RuntimeError", exc.TypeName())
	cause := exc.Context()
	require.NotNil(t, cause)
	assert.Equal(t, "KeyError", cause.TypeName())
	assert.False(t, rt.ErrOccurred())
}

func TestRaiseReleasesDisplacedPending(t *testing.T) {
	rt := New(nil, nil)

	first := rt.NewException("KeyError", "missing")
	first.IncRef() // keep our own handle across displacement
	rt.RaiseObject(first)
	first.DecRef() // construction reference; slot holds one, we hold one

	// an exception arriving with its own cause must not chain onto the
	// pending one, and the slot's reference to it must still be released
	second := rt.NewException("RuntimeError", "handler failed")
	cause := rt.NewException("ValueError", "root")
	second.SetContext(cause)
	cause.DecRef()
	rt.RaiseObject(second)
	second.DecRef()
	rt.Clear()

	assert.Equal(t, int32(1), first.Refs())
	first.DecRef()
}

func TestFetchDrainsSlot(t *testing.T) {
	rt := New(nil, nil)
	assert.Nil(t, rt.Fetch())

	rt.Raise("ValueError", "x")
	exc := rt.Fetch()
	require.NotNil(t, exc)
	exc.DecRef()
	assert.Nil(t, rt.Fetch())
}

func TestStrRendering(t *testing.T) {
	rt := New(nil, nil)

	tests := []struct {
		obj  *Object
		want string
	}{
		{rt.None, "None"},
		{rt.NA, "NA"},
		{rt.True, "True"},
		{rt.NewInt(42), "42"},
		{rt.NewFloat(1.5), "1.5"},
		{rt.NewStr("hi"), "hi"},
		{rt.NewList(rt.NewInt(1), rt.NewStr("a")), `[1, "a"]`},
		{rt.NewTuple(rt.NewInt(1)), "(1)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rt.Str(tt.obj))
	}
}

func TestEqualCrossNumeric(t *testing.T) {
	rt := New(nil, nil)

	i := rt.NewInt(2)
	f := rt.NewFloat(2.0)
	defer i.DecRef()
	defer f.DecRef()
	assert.True(t, rt.Equal(i, f))
	assert.True(t, rt.Equal(f, i))
}

func TestOutputBuffering(t *testing.T) {
	var out bytes.Buffer
	rt := New(&out, nil)

	_, err := rt.Stdout.Write([]byte("buffered"))
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "nothing reaches the sink before flush")

	require.NoError(t, rt.FlushOutput())
	assert.Equal(t, "buffered", out.String())
}

func TestModuleImport(t *testing.T) {
	rt := New(nil, nil)

	fn := rt.NewCallable("f", func(rt *Runtime, args []*Object, kwargs []KV) *Object {
		return rt.None.IncRef()
	})
	rt.NewModule("m", map[string]*Object{"f": fn})
	fn.DecRef()

	mod := rt.Import("m")
	require.NotNil(t, mod)
	assert.True(t, mod.Attr("f").IsCallable())
	assert.Nil(t, rt.Import("nope"))
}

func TestArrayScalarAndShape(t *testing.T) {
	rt := New(nil, nil)

	s := rt.NewArrayScalar(DTypeInt32, []int32{7})
	defer s.DecRef()
	assert.Equal(t, 0, s.Array().NDim())
	assert.Equal(t, 1, s.Array().Size())
	assert.Equal(t, int64(7), s.Array().IntAt(0))

	a := rt.NewArray(DTypeFloat64, []int{2, 2}, true, []float64{1, 2, 3, 4})
	defer a.DecRef()
	assert.Equal(t, 4, a.Array().Size())
	assert.Equal(t, 3.0, a.Array().FloatAt(2))
}

func TestHalfPrecisionElements(t *testing.T) {
	rt := New(nil, nil)

	a := rt.NewArray(DTypeFloat16, []int{8}, true, []uint16{
		0x3c00, // 1.0
		0xc100, // -2.5
		0x0000, // +0
		0x8000, // -0
		0x0001, // smallest subnormal
		0x7c00, // +Inf
		0xfc00, // -Inf
		0x7e00, // NaN
	})
	defer a.DecRef()

	arr := a.Array()
	assert.Equal(t, "float16", arr.DType.String())
	assert.Equal(t, 1.0, arr.FloatAt(0))
	assert.Equal(t, -2.5, arr.FloatAt(1))
	assert.Equal(t, 0.0, arr.FloatAt(2))
	assert.True(t, math.Signbit(arr.FloatAt(3)))
	assert.Equal(t, 0x1p-24, arr.FloatAt(4))
	assert.True(t, math.IsInf(arr.FloatAt(5), 1))
	assert.True(t, math.IsInf(arr.FloatAt(6), -1))
	assert.True(t, math.IsNaN(arr.FloatAt(7)))
}

func TestArrayShapeMismatchPanics(t *testing.T) {
	rt := New(nil, nil)
	assert.Panics(t, func() {
		rt.NewArray(DTypeFloat64, []int{2, 2}, true, []float64{1, 2, 3})
	})
}
