package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatInstruction renders the operands of in. When m is non-nil CONST_STR
// shows the resolved string.
func FormatInstruction(in Instruction, fn *Function, m *Module) string {
	r := func(off int) string { return "r" + strconv.Itoa(in.Reg(off)) }
	switch in.Op {
	case CONST_I64:
		return fmt.Sprintf("%s, %d", r(0), in.I64(1))
	case CONST_F64:
		return fmt.Sprintf("%s, %g", r(0), in.F64(1))
	case CONST_BOOL:
		return fmt.Sprintf("%s, %t", r(0), in.U8(1) != 0)
	case CONST_STR:
		id := in.U32(1)
		if m != nil && fn != nil {
			if s, err := m.String(fn, id); err == nil {
				return fmt.Sprintf("%s, %q", r(0), s)
			}
		}
		return fmt.Sprintf("%s, str#%d", r(0), id)
	case CONST_NULL, RET, THROW:
		return r(0)
	case MOV, NEG_I64, NEG_F64, NOT:
		return fmt.Sprintf("%s, %s", r(0), r(1))
	case JMP:
		return fmt.Sprintf("0x%04x", in.U32(0))
	case JMP_IF_FALSE, JMP_IF_TRUE:
		return fmt.Sprintf("%s, 0x%04x", r(0), in.U32(1))
	case CALL:
		name := fmt.Sprintf("fn#%d", in.U32(1))
		if m != nil && int(in.U32(1)) < len(m.Functions) {
			name = m.Functions[in.U32(1)].Name
		}
		return fmt.Sprintf("%s, %s, %s, %d", r(0), name, r(5), in.U8(6))
	case CALL_BUILTIN, FFI_CALL, SUPER_CALL:
		return fmt.Sprintf("%s, #%d, %s, %d", r(0), in.U16(1), r(3), in.U8(4))
	case METHOD_CALL:
		return fmt.Sprintf("%s, %s, #%d, %s, %d", r(0), r(1), in.U16(2), r(4), in.U8(5))
	case ARRAY_NEW, MAP_NEW:
		return fmt.Sprintf("%s, %s, %d", r(0), r(1), in.U16(2))
	case TRY_BEGIN:
		return fmt.Sprintf("catch=0x%04x, finally=0x%04x, %s", in.U32(0), in.U32(4), r(8))
	case TRY_END:
		return ""
	case STRUCT_NEW, CLASS_NEW:
		return fmt.Sprintf("%s, #%d, %s, %d", r(0), in.U16(1), r(3), in.U8(4))
	case STRUCT_GET, CLASS_GET:
		return fmt.Sprintf("%s, %s.%d", r(0), r(1), in.U16(2))
	case STRUCT_SET, CLASS_SET:
		return fmt.Sprintf("%s.%d, %s", r(0), in.U16(1), r(3))
	}
	// three-register forms
	return fmt.Sprintf("%s, %s, %s", r(0), r(1), r(2))
}

// Disassemble lists fn one instruction per line as "0x%04x: MNEMONIC operands".
// A decode error ends the listing with a final "error:" line.
func Disassemble(fn *Function, m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s arity=%d regs=%d format=%s\n", fn.Name, fn.Arity, fn.RegCount, fn.Format)
	if fn.Format != FormatRegister {
		fmt.Fprintf(&sb, "; %d bytes of %s bytecode\n", len(fn.Code), fn.Format)
		return sb.String()
	}
	err := Walk(fn.Code, func(in Instruction) error {
		ops := FormatInstruction(in, fn, m)
		if ops == "" {
			fmt.Fprintf(&sb, "0x%04x: %s\n", in.PC, Name(in.Op))
		} else {
			fmt.Fprintf(&sb, "0x%04x: %-12s %s\n", in.PC, Name(in.Op), ops)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(&sb, "error: %v\n", err)
	}
	return sb.String()
}

// DisassembleModule lists every function of m.
func DisassembleModule(m *Module) string {
	var sb strings.Builder
	for i, fn := range m.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		if uint32(i) == m.Entry {
			sb.WriteString("; entry\n")
		}
		sb.WriteString(Disassemble(fn, m))
	}
	return sb.String()
}
