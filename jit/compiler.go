package jit

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

// Native window status codes, written to window[reg_count].
const (
	StatusOK            = 0
	StatusDivByZero     = 1
	StatusStackOverflow = 2
)

// WindowSlots is the number of int64 slots a native body expects: one per
// register, the status slot and the remaining self-call depth.
func WindowSlots(regCount int) int { return regCount + 2 }

// CompiledBody is a function translated to x86-64 before it is placed in the
// code cache.
type CompiledBody struct {
	Code       []byte
	ResultKind value.Kind
	RegCount   int
	// PCMap maps each bytecode pc to the native offset of its first byte.
	PCMap map[int]int
}

var nativeOps = map[byte]bool{
	bytecode.CONST_I64: true, bytecode.CONST_BOOL: true, bytecode.MOV: true,
	bytecode.ADD_I64: true, bytecode.SUB_I64: true, bytecode.MUL_I64: true,
	bytecode.DIV_I64: true, bytecode.MOD_I64: true, bytecode.NEG_I64: true,
	bytecode.EQ: true, bytecode.NEQ: true, bytecode.LT: true, bytecode.LTE: true,
	bytecode.GT: true, bytecode.GTE: true,
	bytecode.NOT: true, bytecode.AND: true, bytecode.OR: true,
	bytecode.JMP: true, bytecode.JMP_IF_FALSE: true, bytecode.JMP_IF_TRUE: true,
	bytecode.CALL: true, bytecode.RET: true,
}

var setccFor = map[byte]byte{
	bytecode.EQ: X86_CC_E, bytecode.NEQ: X86_CC_NE,
	bytecode.LT: X86_CC_L, bytecode.LTE: X86_CC_LE,
	bytecode.GT: X86_CC_G, bytecode.GTE: X86_CC_GE,
}

var aluFor = map[byte]byte{
	bytecode.ADD_I64: X86_OP_ADD_RM_R,
	bytecode.SUB_I64: X86_OP_SUB_RM_R,
}

// registerOperands lists the operand offsets that name registers.
func registerOperands(in bytecode.Instruction) []int {
	switch in.Op {
	case bytecode.CONST_I64, bytecode.CONST_BOOL, bytecode.RET, bytecode.JMP_IF_FALSE, bytecode.JMP_IF_TRUE:
		return []int{0}
	case bytecode.MOV, bytecode.NEG_I64, bytecode.NOT:
		return []int{0, 1}
	case bytecode.CALL:
		return []int{0}
	case bytecode.JMP:
		return nil
	}
	return []int{0, 1, 2}
}

type compiler struct {
	fn       *bytecode.Function
	fnIdx    uint32
	rc       int
	cb       *CodeBuffer
	entry    Label
	epilogue Label
	targets  map[int]Label
	insts    []bytecode.Instruction
	pcMap    map[int]int
}

// Compile translates fn, the function at index fnIdx, into a native body with
// the signature int64 fn(int64 *window).
func Compile(fn *bytecode.Function, fnIdx uint32) (*CompiledBody, error) {
	c := &compiler{fn: fn, fnIdx: fnIdx, rc: int(fn.RegCount), cb: NewCodeBuffer(), targets: make(map[int]Label), pcMap: make(map[int]int)}
	if err := c.scan(); err != nil {
		return nil, err
	}
	info, err := analyzeKinds(fn, c.insts)
	if err != nil {
		return nil, err
	}
	if err := c.emit(); err != nil {
		return nil, err
	}
	log.Debug(log.JITModule, "compiled", "fn", fn.Name, "bytecode", len(fn.Code), "native", c.cb.Len(), "result", info.Result)
	return &CompiledBody{Code: c.cb.Bytes(), ResultKind: info.Result.Kind(), RegCount: c.rc, PCMap: c.pcMap}, nil
}

// scan is pass 1: decode every instruction, validate operands and allocate a
// label per jump target.
func (c *compiler) scan() error {
	if c.fn.Format != bytecode.FormatRegister {
		return fmt.Errorf("%s is %s bytecode: %w", c.fn.Name, c.fn.Format, vmerrors.ErrJUnsupportedFormat)
	}
	c.entry = c.cb.NewLabel()
	c.epilogue = c.cb.NewLabel()
	starts := make(map[int]bool)
	for pc := 0; pc < len(c.fn.Code); {
		in, err := bytecode.DecodeAt(c.fn.Code, pc)
		if errors.Is(err, vmerrors.ErrLTruncated) {
			return fmt.Errorf("%s: %v: %w", c.fn.Name, err, vmerrors.ErrJTruncated)
		} else if err != nil {
			return fmt.Errorf("%s: %v: %w", c.fn.Name, err, vmerrors.ErrJUnsupportedOpcode)
		}
		if !nativeOps[in.Op] {
			return fmt.Errorf("%s: %s at 0x%04x: %w", c.fn.Name, bytecode.Name(in.Op), pc, vmerrors.ErrJUnsupportedOpcode)
		}
		if in.Op == bytecode.CALL && in.U32(1) != c.fnIdx {
			return fmt.Errorf("%s: CALL to function %d at 0x%04x: %w", c.fn.Name, in.U32(1), pc, vmerrors.ErrJUnsupportedOpcode)
		}
		for _, off := range registerOperands(in) {
			if in.Reg(off) >= c.rc {
				return fmt.Errorf("%s: r%d outside %d registers at 0x%04x: %w", c.fn.Name, in.Reg(off), c.rc, pc, vmerrors.ErrJKindMismatch)
			}
		}
		starts[pc] = true
		c.insts = append(c.insts, in)
		pc = in.Next()
	}
	if len(c.insts) == 0 {
		return fmt.Errorf("%s: empty body: %w", c.fn.Name, vmerrors.ErrJUnsupportedOpcode)
	}
	// A body that can fall off its end relies on the interpreter's implicit
	// return, which has no native equivalent.
	if last := c.insts[len(c.insts)-1].Op; last != bytecode.RET && last != bytecode.JMP {
		return fmt.Errorf("%s: ends with %s: %w", c.fn.Name, bytecode.Name(last), vmerrors.ErrJUnsupportedOpcode)
	}
	for _, in := range c.insts {
		tgt, ok := in.JumpTarget()
		if !ok {
			continue
		}
		if !starts[tgt] {
			return fmt.Errorf("%s: %s at 0x%04x targets 0x%04x: %w", c.fn.Name, bytecode.Name(in.Op), in.PC, tgt, vmerrors.ErrJBadJumpTarget)
		}
		if _, ok := c.targets[tgt]; !ok {
			c.targets[tgt] = c.cb.NewLabel()
		}
	}
	return nil
}

// read returns the physical register holding v, loading a spilled vreg into
// scratch first.
func (c *compiler) read(v int, scratch X86Reg) X86Reg {
	if v < numPhysVregs {
		return vregHomes[v]
	}
	c.cb.Emit(emitLoad(scratch, RBP, spillDisp(v))...)
	return scratch
}

func (c *compiler) write(v int, src X86Reg) {
	if v < numPhysVregs {
		if home := vregHomes[v]; home != src {
			c.cb.Emit(emitMovRegReg(home, src)...)
		}
		return
	}
	c.cb.Emit(emitStore(RBP, spillDisp(v), src)...)
}

func (c *compiler) slot(i int) int32 { return int32(8 * i) }

func (c *compiler) spillBytes() int32 {
	n := 0
	if c.rc > numPhysVregs {
		n = c.rc - numPhysVregs
	}
	size := 8 * n
	// 8 (return address) + 8 (rbp) + 40 (saved registers) + size keeps rsp 16-aligned
	if size%16 == 0 {
		size += 8
	}
	return int32(size)
}

func (c *compiler) prologue() {
	cb := c.cb
	cb.Emit(emitPush(RBP)...)
	cb.Emit(emitMovRegReg(RBP, RSP)...)
	for _, r := range calleeSaved {
		cb.Emit(emitPush(r)...)
	}
	cb.Emit(emitGroup1Imm32(X86_REG_SUB, RSP, c.spillBytes())...)
	for v := 0; v < c.rc; v++ {
		if v < numPhysVregs {
			cb.Emit(emitLoad(vregHomes[v], RDI, c.slot(v))...)
		} else {
			cb.Emit(emitLoad(R10, RDI, c.slot(v))...)
			cb.Emit(emitStore(RBP, spillDisp(v), R10)...)
		}
	}
}

func (c *compiler) epilogueCode() {
	cb := c.cb
	cb.Emit(emitLea(RSP, RBP, int32(-8*len(calleeSaved)))...)
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		cb.Emit(emitPop(calleeSaved[i])...)
	}
	cb.Emit(emitPop(RBP)...)
	cb.Emit(emitRet()...)
}

// bail stores status into the window and returns 0 through the epilogue.
func (c *compiler) bail(status int64) {
	c.cb.Emit(emitMovRegImm(R10, status)...)
	c.cb.Emit(emitStore(RDI, c.slot(c.rc), R10)...)
	c.cb.Emit(emitAluRegReg(X86_OP_XOR_RM_R, RAX, RAX)...)
	c.cb.Jmp32(c.epilogue)
}

// emit is pass 2.
func (c *compiler) emit() error {
	cb := c.cb
	cb.Bind(c.entry)
	c.prologue()
	for _, in := range c.insts {
		if l, ok := c.targets[in.PC]; ok {
			cb.Bind(l)
		}
		c.pcMap[in.PC] = cb.Len()
		if err := c.emitInstruction(in); err != nil {
			return err
		}
	}
	cb.Bind(c.epilogue)
	c.epilogueCode()
	if err := cb.Resolve(); err != nil {
		return fmt.Errorf("%s: %w", c.fn.Name, err)
	}
	return nil
}

func (c *compiler) emitInstruction(in bytecode.Instruction) error {
	cb := c.cb
	switch in.Op {
	case bytecode.CONST_I64, bytecode.CONST_BOOL:
		var imm int64
		switch {
		case in.Op == bytecode.CONST_I64:
			imm = in.I64(1)
		case in.U8(1) != 0:
			// any nonzero byte is true; bools are 0 or 1 in native code
			imm = 1
		}
		dst := in.Reg(0)
		if dst < numPhysVregs {
			cb.Emit(emitMovRegImm(vregHomes[dst], imm)...)
		} else {
			cb.Emit(emitMovRegImm(RAX, imm)...)
			c.write(dst, RAX)
		}

	case bytecode.MOV:
		c.write(in.Reg(0), c.read(in.Reg(1), R10))

	case bytecode.ADD_I64, bytecode.SUB_I64, bytecode.MUL_I64:
		a := c.read(in.Reg(1), R10)
		b := c.read(in.Reg(2), R11)
		cb.Emit(emitMovRegReg(RAX, a)...)
		if in.Op == bytecode.MUL_I64 {
			cb.Emit(emitImulRegReg(RAX, b)...)
		} else {
			cb.Emit(emitAluRegReg(aluFor[in.Op], RAX, b)...)
		}
		c.write(in.Reg(0), RAX)

	case bytecode.DIV_I64, bytecode.MOD_I64:
		c.emitDivMod(in)

	case bytecode.NEG_I64:
		cb.Emit(emitMovRegReg(RAX, c.read(in.Reg(1), R10))...)
		cb.Emit(emitNeg(RAX)...)
		c.write(in.Reg(0), RAX)

	case bytecode.EQ, bytecode.NEQ, bytecode.LT, bytecode.LTE, bytecode.GT, bytecode.GTE:
		a := c.read(in.Reg(1), R10)
		b := c.read(in.Reg(2), R11)
		cb.Emit(emitAluRegReg(X86_OP_CMP_RM_R, a, b)...)
		cb.Emit(emitSetcc(setccFor[in.Op], RAX)...)
		cb.Emit(emitMovzxByte(RAX, RAX)...)
		c.write(in.Reg(0), RAX)

	case bytecode.NOT:
		r := c.read(in.Reg(1), R10)
		cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, r, r)...)
		cb.Emit(emitSetcc(X86_CC_E, RAX)...)
		cb.Emit(emitMovzxByte(RAX, RAX)...)
		c.write(in.Reg(0), RAX)

	case bytecode.AND, bytecode.OR:
		a := c.read(in.Reg(1), R10)
		cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, a, a)...)
		cb.Emit(emitSetcc(X86_CC_NE, RAX)...)
		cb.Emit(emitMovzxByte(RAX, RAX)...)
		b := c.read(in.Reg(2), R11)
		cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, b, b)...)
		cb.Emit(emitSetcc(X86_CC_NE, RCX)...)
		cb.Emit(emitMovzxByte(RCX, RCX)...)
		op := byte(X86_OP_AND_RM_R)
		if in.Op == bytecode.OR {
			op = X86_OP_OR_RM_R
		}
		cb.Emit(emitAluRegReg(op, RAX, RCX)...)
		c.write(in.Reg(0), RAX)

	case bytecode.JMP:
		tgt, _ := in.JumpTarget()
		cb.Jmp32(c.targets[tgt])

	case bytecode.JMP_IF_FALSE, bytecode.JMP_IF_TRUE:
		tgt, _ := in.JumpTarget()
		r := c.read(in.Reg(0), R10)
		cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, r, r)...)
		cc := byte(X86_CC_E)
		if in.Op == bytecode.JMP_IF_TRUE {
			cc = X86_CC_NE
		}
		cb.Jcc32(cc, c.targets[tgt])

	case bytecode.CALL:
		c.emitSelfCall(in)

	case bytecode.RET:
		r := c.read(in.Reg(0), R10)
		cb.Emit(emitMovRegReg(RAX, r)...)
		cb.Jmp32(c.epilogue)

	default:
		return fmt.Errorf("%s: %s: %w", c.fn.Name, bytecode.Name(in.Op), vmerrors.ErrJUnsupportedOpcode)
	}
	return nil
}

// emitDivMod matches the interpreter: a zero divisor bails with
// StatusDivByZero and a divisor of -1 avoids the idiv overflow trap.
func (c *compiler) emitDivMod(in bytecode.Instruction) {
	cb := c.cb
	nonZero, normal, done := cb.NewLabel(), cb.NewLabel(), cb.NewLabel()

	cb.Emit(emitMovRegReg(RAX, c.read(in.Reg(1), R10))...)
	cb.Emit(emitMovRegReg(RCX, c.read(in.Reg(2), R11))...)
	cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, RCX, RCX)...)
	cb.Jcc8(X86_CC_NE, nonZero)
	c.bail(StatusDivByZero)

	cb.Bind(nonZero)
	cb.Emit(emitGroup1Imm8(X86_REG_CMP, RCX, -1)...)
	cb.Jcc8(X86_CC_NE, normal)
	if in.Op == bytecode.DIV_I64 {
		cb.Emit(emitNeg(RAX)...)
	} else {
		cb.Emit(emitAluRegReg(X86_OP_XOR_RM_R, RAX, RAX)...)
	}
	cb.Jmp8(done)

	cb.Bind(normal)
	cb.Emit(emitCqo()...)
	cb.Emit(emitIdiv(RCX)...)
	if in.Op == bytecode.MOD_I64 {
		cb.Emit(emitMovRegReg(RAX, RDX)...)
	}
	cb.Bind(done)
	c.write(in.Reg(0), RAX)
}

// emitSelfCall lowers a recursive CALL to a native call of this body with a
// fresh window on the machine stack. The callee's status propagates and the
// depth slot bounds recursion like the interpreter's frame limit.
func (c *compiler) emitSelfCall(in bytecode.Instruction) {
	cb := c.cb
	rc := c.rc
	base, argc := in.Reg(5), int(in.U8(6))
	winBytes := int32((8*WindowSlots(rc) + 15) &^ 15)

	ok := cb.NewLabel()
	cb.Emit(emitLoad(RAX, RDI, c.slot(rc+1))...)
	cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, RAX, RAX)...)
	cb.Jcc8(X86_CC_NE, ok)
	c.bail(StatusStackOverflow)
	cb.Bind(ok)

	for _, r := range callerSavedHomes {
		cb.Emit(emitPush(r)...)
	}
	cb.Emit(emitPush(RDI)...)
	cb.Emit(emitGroup1Imm32(X86_REG_SUB, RSP, winBytes)...)

	for i := 0; i < argc; i++ {
		cb.Emit(emitStore(RSP, c.slot(i), c.read(base+i, R10))...)
	}
	cb.Emit(emitAluRegReg(X86_OP_XOR_RM_R, RAX, RAX)...)
	for i := argc; i <= rc; i++ {
		cb.Emit(emitStore(RSP, c.slot(i), RAX)...)
	}
	cb.Emit(emitLoad(RAX, RDI, c.slot(rc+1))...)
	cb.Emit(emitGroup1Imm8(X86_REG_SUB, RAX, 1)...)
	cb.Emit(emitStore(RSP, c.slot(rc+1), RAX)...)

	cb.Emit(emitMovRegReg(RDI, RSP)...)
	cb.Call32(c.entry)

	cb.Emit(emitLoad(R11, RSP, c.slot(rc))...)
	cb.Emit(emitGroup1Imm32(X86_REG_ADD, RSP, winBytes)...)
	cb.Emit(emitPop(RDI)...)
	for i := len(callerSavedHomes) - 1; i >= 0; i-- {
		cb.Emit(emitPop(callerSavedHomes[i])...)
	}

	fine := cb.NewLabel()
	cb.Emit(emitAluRegReg(X86_OP_TEST_RM_R, R11, R11)...)
	cb.Jcc8(X86_CC_E, fine)
	cb.Emit(emitStore(RDI, c.slot(rc), R11)...)
	cb.Emit(emitAluRegReg(X86_OP_XOR_RM_R, RAX, RAX)...)
	cb.Jmp32(c.epilogue)
	cb.Bind(fine)
	c.write(in.Reg(0), RAX)
}
