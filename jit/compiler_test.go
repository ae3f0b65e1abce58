package jit

import (
	"strings"
	"testing"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func TestCompileFib(t *testing.T) {
	m := fibModule(t)
	body, err := Compile(m.Functions[0], 0)
	require.NoError(t, err)
	assert.Equal(t, value.KindInt, body.ResultKind)
	assert.Equal(t, 7, body.RegCount)

	// every bytecode instruction has a native offset
	require.NoError(t, bytecode.Walk(m.Functions[0].Code, func(in bytecode.Instruction) error {
		_, ok := body.PCMap[in.PC]
		assert.True(t, ok, "pc 0x%04x", in.PC)
		return nil
	}))

	// prologue starts with push rbp; mov rbp, rsp
	inst, err := x86asm.Decode(body.Code, 64)
	require.NoError(t, err)
	assert.Equal(t, x86asm.PUSH, inst.Op)
	assert.Equal(t, x86asm.RBP, inst.Args[0])

	listing := DisassembleBody(body)
	assert.Contains(t, listing, "; bytecode 0x0000")
	assert.Contains(t, listing, "call")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(listing), "ret"), listing)
	assert.NotContains(t, listing, "db 0x")
}

func TestCompileResultKinds(t *testing.T) {
	m := arithModule(t, bytecode.LT, bytecode.MUL_I64)
	lt, err := Compile(m.Functions[0], 0)
	require.NoError(t, err)
	assert.Equal(t, value.KindBool, lt.ResultKind)

	mul, err := Compile(m.Functions[1], 1)
	require.NoError(t, err)
	assert.Equal(t, value.KindInt, mul.ResultKind)
}

func TestCompileSpills(t *testing.T) {
	body, err := Compile(spillModule(t).Functions[0], 0)
	require.NoError(t, err)
	assert.Contains(t, Disassemble(body.Code), "rbp-0x")
}

func TestCompileRejects(t *testing.T) {
	build := func(f func(mb *bytecode.ModuleBuilder)) *bytecode.Function {
		mb := bytecode.NewModuleBuilder()
		f(mb)
		m, err := mb.Build()
		require.NoError(t, err)
		return m.Functions[0]
	}
	tests := []struct {
		name string
		fn   *bytecode.Function
		want error
	}{
		{"string concat", concatModule(t).Functions[0], vmerrors.ErrJUnsupportedOpcode},
		{"float add", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 2, 3).Binary(bytecode.ADD_F64, 2, 0, 1).Ret(2)
		}), vmerrors.ErrJUnsupportedOpcode},
		{"call to another function", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("a", 1, 2).Call(1, 1, 0, 1).Ret(1)
			mb.Func("b", 1, 1).Ret(0)
		}), vmerrors.ErrJUnsupportedOpcode},
		{"empty body", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("empty", 0, 1)
		}), vmerrors.ErrJUnsupportedOpcode},
		{"falls off the end", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 1).ConstI64(0, 1)
		}), vmerrors.ErrJUnsupportedOpcode},
		{"jump into an instruction", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 1).Raw(bytecode.JMP, 1, 0, 0, 0).Ret(0)
		}), vmerrors.ErrJBadJumpTarget},
		{"jump to the end", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 1).ConstI64(0, 1).Jmp("end").Ret(0).Label("end")
		}), vmerrors.ErrJBadJumpTarget},
		{"register out of range", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 2).ConstI64(5, 1).Ret(0)
		}), vmerrors.ErrJKindMismatch},
		{"bool arithmetic", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 3).ConstBool(0, true).ConstI64(1, 1).Binary(bytecode.ADD_I64, 2, 0, 1).Ret(2)
		}), vmerrors.ErrJKindMismatch},
		{"mixed equality", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 1, 3).ConstBool(1, true).Binary(bytecode.EQ, 2, 0, 1).Ret(2)
		}), vmerrors.ErrJKindMismatch},
		{"mixed result", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 1, 2).ConstBool(1, true).JmpIfTrue(1, "int").Ret(1).Label("int").Ret(0)
		}), vmerrors.ErrJKindMismatch},
		{"read before write", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 1, 3).Binary(bytecode.ADD_I64, 2, 0, 1).ConstI64(1, 5).Ret(2)
		}), vmerrors.ErrJKindMismatch},
		{"written on one branch only", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 1, 4).
				JmpIfFalse(0, "join").
				ConstI64(1, 2).
				Label("join").
				Binary(bytecode.MUL_I64, 2, 0, 1).
				Ret(2)
		}), vmerrors.ErrJKindMismatch},
		{"self call arity", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 1, 3).Call(1, 0, 0, 2).Ret(1)
		}), vmerrors.ErrJKindMismatch},
		{"truncated", build(func(mb *bytecode.ModuleBuilder) {
			mb.Func("f", 0, 1).Raw(bytecode.CONST_I64, 0, 1)
		}), vmerrors.ErrJTruncated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.fn, 0)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompileStackFormat(t *testing.T) {
	fn := &bytecode.Function{Name: "legacy", Format: bytecode.FormatStack, Code: []byte{bytecode.RET, 0}}
	_, err := Compile(fn, 0)
	assert.ErrorIs(t, err, vmerrors.ErrJUnsupportedFormat)
}

func TestAnalyzeKinds(t *testing.T) {
	m := fibModule(t)
	fn := m.Functions[0]
	var insts []bytecode.Instruction
	require.NoError(t, bytecode.Walk(fn.Code, func(in bytecode.Instruction) error {
		insts = append(insts, in)
		return nil
	}))
	info, err := analyzeKinds(fn, insts)
	require.NoError(t, err)
	assert.Equal(t, KInt, info.Result)
	assert.Equal(t, KInt, info.Regs[0])
	assert.Equal(t, KBool, info.Regs[2])
	assert.Equal(t, KInt, info.Regs[4])
	assert.Equal(t, KInt, info.Regs[6])
}

func TestAnalyzeKindsFollowsControlFlow(t *testing.T) {
	mb := bytecode.NewModuleBuilder()
	// r1 is written on both paths before the join, then reused as a bool
	mb.Func("f", 1, 3).
		JmpIfFalse(0, "zero").
		ConstI64(1, 10).
		Jmp("join").
		Label("zero").
		ConstI64(1, 20).
		Label("join").
		Binary(bytecode.ADD_I64, 2, 0, 1).
		Binary(bytecode.LT, 1, 0, 2).
		Ret(2)
	m, err := mb.Build()
	require.NoError(t, err)
	fn := m.Functions[0]
	var insts []bytecode.Instruction
	require.NoError(t, bytecode.Walk(fn.Code, func(in bytecode.Instruction) error {
		insts = append(insts, in)
		return nil
	}))
	info, err := analyzeKinds(fn, insts)
	require.NoError(t, err)
	assert.Equal(t, KInt, info.Result)
	assert.Equal(t, KInt|KBool, info.Regs[1])

	// entry state: parameter Int, the rest Null
	assert.Equal(t, []KindSet{KInt, KNull, KNull}, info.At[0])
	// at the ADD both paths have stored an Int into r1
	add := len(insts) - 3
	require.Equal(t, byte(bytecode.ADD_I64), insts[add].Op)
	assert.Equal(t, KInt, info.At[add][1])
	assert.Equal(t, KNull, info.At[add][2])
}

func TestCompileConstBoolNormalised(t *testing.T) {
	mb := bytecode.NewModuleBuilder()
	mb.Func("f", 0, 3).Raw(bytecode.CONST_BOOL, 0, 2).ConstBool(1, true).Binary(bytecode.EQ, 2, 0, 1).Ret(2)
	m, err := mb.Build()
	require.NoError(t, err)
	body, err := Compile(m.Functions[0], 0)
	require.NoError(t, err)

	// both constants, pc 0x0000 and 0x0003, load the immediate 1
	var imms []int64
	code := body.Code[:body.PCMap[6]]
	for off := body.PCMap[0]; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err)
		if imm, ok := inst.Args[1].(x86asm.Imm); ok && inst.Op == x86asm.MOV {
			imms = append(imms, int64(imm))
		}
		off += inst.Len
	}
	assert.Equal(t, []int64{1, 1}, imms)
}
