package jit

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/exp/slices"
)

// Disassemble lists native code one instruction per line. Bytes the decoder
// rejects are printed as db.
func Disassemble(code []byte) string {
	return disassemble(code, nil)
}

// DisassembleBody annotates the listing with the bytecode pc each native
// range was generated from.
func DisassembleBody(body *CompiledBody) string {
	marks := make(map[int][]int, len(body.PCMap))
	for pc, off := range body.PCMap {
		marks[off] = append(marks[off], pc)
	}
	for _, pcs := range marks {
		slices.Sort(pcs)
	}
	return disassemble(body.Code, marks)
}

func disassemble(code []byte, marks map[int][]int) string {
	var sb strings.Builder
	for off := 0; off < len(code); {
		for _, pc := range marks[off] {
			fmt.Fprintf(&sb, "; bytecode 0x%04x\n", pc)
		}
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			fmt.Fprintf(&sb, "0x%04x: db 0x%02x\n", off, code[off])
			off++
			continue
		}
		signDisp(&inst)
		hex := make([]string, inst.Len)
		for i := range hex {
			hex[i] = fmt.Sprintf("%02x", code[off+i])
		}
		fmt.Fprintf(&sb, "0x%04x: %-30s %s\n", off, strings.Join(hex, " "), x86asm.IntelSyntax(inst, uint64(off), nil))
		off += inst.Len
	}
	return sb.String()
}

// signDisp sign-extends 32-bit memory displacements, which the decoder
// reports zero-extended, so spill slots print as rbp-0x38.
func signDisp(inst *x86asm.Inst) {
	for i, arg := range inst.Args {
		if mem, ok := arg.(x86asm.Mem); ok {
			mem.Disp = int64(int32(mem.Disp))
			inst.Args[i] = mem
		}
	}
}
