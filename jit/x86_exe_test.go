//go:build linux && amd64 && cgo
// +build linux,amd64,cgo

package jit

import (
	"context"
	"math"
	"testing"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nativeEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{Enabled: true, Threshold: 1})
	require.True(t, e.Native())
	t.Cleanup(func() { e.Close() })
	return e
}

func ints(vs ...int64) []value.Value {
	out := make([]value.Value, len(vs))
	for i, v := range vs {
		out[i] = value.Int(v)
	}
	return out
}

func TestNativeFib(t *testing.T) {
	m := fibModule(t)
	e := nativeEngine(t)
	fn := m.Functions[0]

	got, handled, err := e.OnCall(context.Background(), 0, fn, ints(10), 0, 1024)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, value.Int(55), got)
	assert.Equal(t, Compiled, e.Profiler().Profile(0).State)

	got, handled, err = e.OnCall(context.Background(), 0, fn, ints(20), 0, 1024)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, value.Int(6765), got)

	st := e.Stats()
	assert.Equal(t, uint64(1), st.TotalCompilations)
	assert.Equal(t, uint64(2), st.NativeExecutions)
}

func TestNativeSelfCallDepth(t *testing.T) {
	m := fibModule(t)
	e := nativeEngine(t)
	_, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], ints(30), 0, 8)
	require.True(t, handled)
	assert.ErrorIs(t, err, vmerrors.ErrEStackOverflow)

	// at the frame limit the call is left to the interpreter
	_, handled, err = e.OnCall(context.Background(), 0, m.Functions[0], ints(3), 8, 8)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestNativeArithmetic(t *testing.T) {
	m := arithModule(t, bytecode.ADD_I64, bytecode.SUB_I64, bytecode.MUL_I64, bytecode.DIV_I64, bytecode.MOD_I64,
		bytecode.LT, bytecode.GTE, bytecode.EQ, bytecode.AND, bytecode.OR)
	e := nativeEngine(t)
	tests := []struct {
		fn   uint32
		a, b int64
		want value.Value
	}{
		{0, 7, 3, value.Int(10)},
		{0, math.MaxInt64, 1, value.Int(math.MinInt64)},
		{1, 3, 7, value.Int(-4)},
		{2, -6, 7, value.Int(-42)},
		{3, -7, 2, value.Int(-3)},
		{3, math.MinInt64, -1, value.Int(math.MinInt64)},
		{4, 7, -3, value.Int(1)},
		{4, -7, 2, value.Int(-1)},
		{4, math.MinInt64, -1, value.Int(0)},
		{5, 2, 3, value.Bool(true)},
		{6, 2, 3, value.Bool(false)},
		{7, 4, 4, value.Bool(true)},
		{8, 1, 0, value.Bool(false)},
		{9, 0, 5, value.Bool(true)},
	}
	for _, tc := range tests {
		fn := m.Functions[tc.fn]
		got, handled, err := e.OnCall(context.Background(), tc.fn, fn, ints(tc.a, tc.b), 0, 16)
		require.NoError(t, err, fn.Name)
		require.True(t, handled, fn.Name)
		assert.Equal(t, tc.want, got, "%s(%d, %d)", fn.Name, tc.a, tc.b)
	}
}

func TestNativeDivisionByZero(t *testing.T) {
	m := arithModule(t, bytecode.DIV_I64, bytecode.MOD_I64)
	e := nativeEngine(t)
	for i, fn := range m.Functions {
		_, handled, err := e.OnCall(context.Background(), uint32(i), fn, ints(1, 0), 0, 16)
		assert.True(t, handled)
		assert.ErrorIs(t, err, vmerrors.ErrEDivisionByZero, fn.Name)
	}
}

func TestNativeSpilledRegisters(t *testing.T) {
	m := spillModule(t)
	e := nativeEngine(t)
	got, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], ints(3, 4), 0, 16)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, value.Int(46), got)
}

func TestNativeNonIntArgsStayInterpreted(t *testing.T) {
	m := fibModule(t)
	e := nativeEngine(t)
	_, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], []value.Value{value.Float(3)}, 0, 16)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, Compiled, e.Profiler().Profile(0).State)
	assert.Equal(t, uint64(1), e.Stats().InterpExecutions)
}

func TestNativeInvalidate(t *testing.T) {
	m := fibModule(t)
	e := nativeEngine(t)
	_, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], ints(5), 0, 64)
	require.NoError(t, err)
	require.True(t, handled)
	gen := e.Cache().Generation()

	e.Invalidate(0)
	assert.Equal(t, Cold, e.Profiler().Profile(0).State)
	assert.Equal(t, gen+1, e.Cache().Generation())
	assert.Zero(t, e.Cache().Used())

	got, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], ints(6), 0, 64)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, value.Int(8), got)
}
