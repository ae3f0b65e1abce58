package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) Value { return FromObject(&Str{S: s}) }

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(true), true},
		{Bool(false), false},
		{Int(0), false},
		{Int(-3), true},
		{Float(0), false},
		{Float(0.5), true},
		{str(""), false},
		{str("x"), true},
		{FromObject(&Array{}), true},
		{FromObject(NewMapObject()), true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.v.Truthy(), c.v.Kind.String()+" "+c.v.String())
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Int(3).Equal(Int(3)))
	assert.False(t, Int(1).Equal(Bool(true)), "kinds differ")
	assert.False(t, Int(1).Equal(Float(1)))
	assert.True(t, Null().Equal(Null()))
	assert.True(t, str("ab").Equal(str("ab")), "strings compare by content")

	a1, a2 := FromObject(&Array{}), FromObject(&Array{})
	assert.True(t, a1.Equal(a1))
	assert.False(t, a1.Equal(a2), "containers compare by identity")
}

func TestString(t *testing.T) {
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "2.5", Float(2.5).String())
	assert.Equal(t, "3", Float(3).String())
	assert.Equal(t, "1e+06", Float(1e6).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "null", Null().String())

	arr := FromObject(&Array{Elems: []Value{Int(1), str("a")}})
	assert.Equal(t, "[1, a]", arr.String())
}

func TestArrayIndex(t *testing.T) {
	a := &Array{Elems: []Value{Int(10), Int(20), Int(30), Int(40), Int(50)}}
	v, ok := a.Get(-1)
	require.True(t, ok)
	assert.Equal(t, int64(50), v.I)
	_, ok = a.Get(5)
	assert.False(t, ok)
	_, ok = a.Get(-6)
	assert.False(t, ok)
	assert.True(t, a.Set(-5, Int(1)))
	assert.Equal(t, int64(1), a.Elems[0].I)
	a.Push(Int(60))
	assert.Equal(t, 6, a.Len())
}

func TestMapOrderAndKeys(t *testing.T) {
	m := NewMapObject()
	m.Set(str("b"), Int(1))
	m.Set(Int(7), Int(2))
	m.Set(str("a"), Int(3))
	m.Set(str("b"), Int(4))

	assert.Equal(t, 3, m.Len())
	keys := m.Keys()
	assert.Equal(t, "b", keys[0].Str())
	assert.Equal(t, int64(7), keys[1].I)
	v, ok := m.Get(str("b"))
	require.True(t, ok)
	assert.Equal(t, int64(4), v.I)

	assert.False(t, m.Has(Bool(true)), "bool true is not int 1")
	m.Set(Float(-0.0), Int(9))
	assert.True(t, m.Has(Float(0)))

	assert.True(t, m.Delete(Int(7)))
	assert.False(t, m.Delete(Int(7)))
	v, ok = m.Get(str("a"))
	require.True(t, ok)
	assert.Equal(t, int64(3), v.I)
	assert.Equal(t, []Value{Int(4), Int(3), Int(9)}, m.Values())
}
