package jit

import (
	"testing"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/stretchr/testify/require"
)

// fibModule builds fib(n) as function 0:
//
//	if n < 2 { return n }
//	return fib(n-1) + fib(n-2)
func fibModule(t *testing.T) *bytecode.Module {
	t.Helper()
	mb := bytecode.NewModuleBuilder()
	fib := mb.Func("fib", 1, 7)
	fib.ConstI64(1, 2).
		Binary(bytecode.LT, 2, 0, 1).
		JmpIfFalse(2, "rec").
		Ret(0).
		Label("rec").
		ConstI64(1, 1).
		Binary(bytecode.SUB_I64, 3, 0, 1).
		Call(4, fib.Index, 3, 1).
		ConstI64(1, 2).
		Binary(bytecode.SUB_I64, 3, 0, 1).
		Call(5, fib.Index, 3, 1).
		Binary(bytecode.ADD_I64, 6, 4, 5).
		Ret(6)
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}

// arithModule holds small two-argument functions, one per binary opcode.
func arithModule(t *testing.T, ops ...byte) *bytecode.Module {
	t.Helper()
	mb := bytecode.NewModuleBuilder()
	for _, op := range ops {
		mb.Func(bytecode.Name(op), 2, 3).Binary(op, 2, 0, 1).Ret(2)
	}
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}

// spillModule uses registers beyond the physical homes:
// r10 = a + b; r11 = r10 * r10; return r11 - a
func spillModule(t *testing.T) *bytecode.Module {
	t.Helper()
	mb := bytecode.NewModuleBuilder()
	mb.Func("spill", 2, 12).
		Binary(bytecode.ADD_I64, 10, 0, 1).
		Binary(bytecode.MUL_I64, 11, 10, 10).
		Binary(bytecode.SUB_I64, 9, 11, 0).
		Ret(9)
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}

// concatModule concatenates two strings and cannot be compiled.
func concatModule(t *testing.T) *bytecode.Module {
	t.Helper()
	mb := bytecode.NewModuleBuilder()
	mb.Func("greet", 0, 3).
		ConstStr(0, "hello, ").
		ConstStr(1, "world").
		Binary(bytecode.ADD_STR, 2, 0, 1).
		Ret(2)
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}
