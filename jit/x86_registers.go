// Package jit provides the profiler, x86-64 code generator, code cache and
// native dispatcher for hot register functions.
package jit

// X86Reg represents an x86-64 register with encoding information
type X86Reg struct {
	Name    string
	RegBits byte // 3-bit code for ModRM/SIB
	REXBit  byte // 1 if register index >= 8
}

var (
	RAX = X86Reg{"rax", 0, 0} // return value, setcc target
	RCX = X86Reg{"rcx", 1, 0} // divisor
	RDX = X86Reg{"rdx", 2, 0} // idiv high half / remainder
	RBX = X86Reg{"rbx", 3, 0}
	RSP = X86Reg{"rsp", 4, 0}
	RBP = X86Reg{"rbp", 5, 0} // frame base for spill slots
	RSI = X86Reg{"rsi", 6, 0}
	RDI = X86Reg{"rdi", 7, 0} // window pointer, never clobbered by a body
	R8  = X86Reg{"r8", 0, 1}
	R9  = X86Reg{"r9", 1, 1}
	R10 = X86Reg{"r10", 2, 1} // scratch for spilled reads
	R11 = X86Reg{"r11", 3, 1} // scratch for spilled reads
	R12 = X86Reg{"r12", 4, 1}
	R13 = X86Reg{"r13", 5, 1}
	R14 = X86Reg{"r14", 6, 1}
	R15 = X86Reg{"r15", 7, 1}
)

// vregHomes maps virtual registers 0..7 to physical registers. Higher vregs
// live in spill slots below the saved callee registers.
var vregHomes = []X86Reg{RBX, R12, R13, R14, R15, RSI, R8, R9}

// calleeSaved is pushed by the prologue in this order and popped in reverse.
var calleeSaved = []X86Reg{RBX, R12, R13, R14, R15}

// callerSavedHomes are vreg homes the SysV ABI lets a callee clobber; a
// native self-call preserves them around the call.
var callerSavedHomes = []X86Reg{RSI, R8, R9}

const (
	numPhysVregs = 8
	// first spill slot sits below rbp and the five callee-saved pushes
	spillBase = -48
)

func spillDisp(v int) int32 {
	return int32(spillBase - 8*(v-numPhysVregs))
}
