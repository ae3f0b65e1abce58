package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/colorfulnotion/bpvm/vmerrors"
)

// Instruction is a decoded view into a function body. Operands aliases the
// body and must not be modified.
type Instruction struct {
	PC       int
	Op       byte
	Operands []byte
}

// DecodeAt decodes the instruction starting at pc.
func DecodeAt(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("pc 0x%04x outside body of %d bytes: %w", pc, len(code), vmerrors.ErrLTruncated)
	}
	op := code[pc]
	n := OperandLength(op)
	if n < 0 {
		return Instruction{}, fmt.Errorf("opcode 0x%02x at 0x%04x: %w", op, pc, vmerrors.ErrEBadOpcode)
	}
	if pc+1+n > len(code) {
		return Instruction{}, fmt.Errorf("%s at 0x%04x needs %d operand bytes: %w", Name(op), pc, n, vmerrors.ErrLTruncated)
	}
	return Instruction{PC: pc, Op: op, Operands: code[pc+1 : pc+1+n]}, nil
}

// Walk decodes every instruction of code in order and stops at the first error.
func Walk(code []byte, visit func(Instruction) error) error {
	for pc := 0; pc < len(code); {
		in, err := DecodeAt(code, pc)
		if err != nil {
			return err
		}
		if err := visit(in); err != nil {
			return err
		}
		pc = in.Next()
	}
	return nil
}

// Next is the pc of the following instruction.
func (in Instruction) Next() int { return in.PC + 1 + len(in.Operands) }

func (in Instruction) Reg(off int) int     { return int(in.Operands[off]) }
func (in Instruction) U8(off int) uint8    { return in.Operands[off] }
func (in Instruction) U16(off int) uint16  { return binary.LittleEndian.Uint16(in.Operands[off:]) }
func (in Instruction) U32(off int) uint32  { return binary.LittleEndian.Uint32(in.Operands[off:]) }
func (in Instruction) I64(off int) int64   { return int64(binary.LittleEndian.Uint64(in.Operands[off:])) }
func (in Instruction) F64(off int) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(in.Operands[off:])) }

// JumpTarget returns the absolute target of a jump instruction.
func (in Instruction) JumpTarget() (int, bool) {
	switch in.Op {
	case JMP:
		return int(in.U32(0)), true
	case JMP_IF_FALSE, JMP_IF_TRUE:
		return int(in.U32(1)), true
	}
	return 0, false
}
