package jit

import "encoding/binary"

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// rexW builds a REX.W prefix for a ModRM instruction with the given reg and
// r/m operands.
func rexW(reg, rm X86Reg) byte {
	return X86_REX | X86_REX_W | reg.REXBit<<2 | rm.REXBit
}

func imm32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

// emitMovRegReg: mov dst, src
func emitMovRegReg(dst, src X86Reg) []byte {
	return []byte{rexW(src, dst), X86_OP_MOV_RM_R, modrm(X86_MOD_REGISTER, src.RegBits, dst.RegBits)}
}

// emitAluRegReg encodes the "op r/m64, r64" form (add, sub, and, or, xor,
// cmp, test) with dst as r/m.
func emitAluRegReg(op byte, dst, src X86Reg) []byte {
	return []byte{rexW(src, dst), op, modrm(X86_MOD_REGISTER, src.RegBits, dst.RegBits)}
}

// emitImulRegReg: imul dst, src
func emitImulRegReg(dst, src X86Reg) []byte {
	return []byte{rexW(dst, src), X86_PREFIX_0F, X86_OP2_IMUL, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits)}
}

// emitMovRegImm loads imm into dst, using the sign-extended imm32 form when
// the value fits.
func emitMovRegImm(dst X86Reg, imm int64) []byte {
	if imm >= -1<<31 && imm < 1<<31 {
		b := []byte{rexW(X86Reg{}, dst), X86_OP_MOV_RM_IMM, modrm(X86_MOD_REGISTER, 0, dst.RegBits)}
		return append(b, imm32(int32(imm))...)
	}
	b := []byte{X86_REX | X86_REX_W | dst.REXBit, X86_OP_MOV_R_IMM + dst.RegBits}
	return binary.LittleEndian.AppendUint64(b, uint64(imm))
}

// emitMem encodes "op reg, [base+disp32]" or its store twin. A base whose low
// bits are 100 (rsp, r12) needs a SIB byte.
func emitMem(op byte, reg, base X86Reg, disp int32) []byte {
	b := []byte{rexW(reg, base), op, modrm(X86_MOD_INDIRECT_DISP32, reg.RegBits, base.RegBits)}
	if base.RegBits == 4 {
		b = append(b, X86_SIB_RSP_BASE)
	}
	return append(b, imm32(disp)...)
}

// emitLoad: mov dst, qword [base+disp]
func emitLoad(dst, base X86Reg, disp int32) []byte {
	return emitMem(X86_OP_MOV_R_RM, dst, base, disp)
}

// emitStore: mov qword [base+disp], src
func emitStore(base X86Reg, disp int32, src X86Reg) []byte {
	return emitMem(X86_OP_MOV_RM_R, src, base, disp)
}

// emitLea: lea dst, [base+disp]
func emitLea(dst, base X86Reg, disp int32) []byte {
	return emitMem(X86_OP_LEA, dst, base, disp)
}

// emitGroup1Imm8 encodes add/sub/cmp r64, imm8 selected by ext.
func emitGroup1Imm8(ext byte, r X86Reg, imm int8) []byte {
	return []byte{rexW(X86Reg{}, r), X86_OP_GROUP1_RM_IMM8, modrm(X86_MOD_REGISTER, ext, r.RegBits), byte(imm)}
}

// emitGroup1Imm32 encodes add/sub/cmp r64, imm32 selected by ext.
func emitGroup1Imm32(ext byte, r X86Reg, imm int32) []byte {
	b := []byte{rexW(X86Reg{}, r), X86_OP_GROUP1_RM_IMM32, modrm(X86_MOD_REGISTER, ext, r.RegBits)}
	return append(b, imm32(imm)...)
}

func emitNeg(r X86Reg) []byte {
	return []byte{rexW(X86Reg{}, r), X86_OP_GROUP3_RM, modrm(X86_MOD_REGISTER, X86_REG_NEG, r.RegBits)}
}

func emitIdiv(r X86Reg) []byte {
	return []byte{rexW(X86Reg{}, r), X86_OP_GROUP3_RM, modrm(X86_MOD_REGISTER, X86_REG_IDIV, r.RegBits)}
}

func emitCqo() []byte {
	return []byte{X86_REX | X86_REX_W, X86_OP_CQO}
}

// emitSetcc writes the condition into the low byte of r. r must be one of
// rax, rcx, rdx or rbx so no REX prefix is needed.
func emitSetcc(cc byte, r X86Reg) []byte {
	return []byte{X86_PREFIX_0F, X86_OP2_SETCC + cc, modrm(X86_MOD_REGISTER, 0, r.RegBits)}
}

// emitMovzxByte: movzx dst, src8
func emitMovzxByte(dst, src X86Reg) []byte {
	return []byte{rexW(dst, src), X86_PREFIX_0F, X86_OP2_MOVZX_B, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits)}
}

func emitPush(r X86Reg) []byte {
	if r.REXBit != 0 {
		return []byte{X86_REX | X86_REX_B, X86_OP_PUSH_R + r.RegBits}
	}
	return []byte{X86_OP_PUSH_R + r.RegBits}
}

func emitPop(r X86Reg) []byte {
	if r.REXBit != 0 {
		return []byte{X86_REX | X86_REX_B, X86_OP_POP_R + r.RegBits}
	}
	return []byte{X86_OP_POP_R + r.RegBits}
}

func emitRet() []byte {
	return []byte{X86_OP_RET}
}
