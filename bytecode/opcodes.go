package bytecode

// Register bytecode opcodes. Every instruction is one opcode byte followed by a
// fixed operand sequence; register operands are one byte each, ids are u16,
// function indices and jump targets are u32 (absolute), immediates are 8 bytes.
// All multi-byte operands are little-endian.

// Constants: dst + immediate.
const (
	CONST_I64  = 1 // dst, i64
	CONST_F64  = 2 // dst, f64
	CONST_BOOL = 3 // dst, u8
	CONST_STR  = 4 // dst, u32 local string-constant id
	CONST_NULL = 5 // dst
)

// Two registers.
const (
	MOV     = 10
	NEG_I64 = 11
	NEG_F64 = 12
	NOT     = 13
)

// Three registers: dst, src1, src2.
const (
	ADD_I64 = 20
	SUB_I64 = 21
	MUL_I64 = 22
	DIV_I64 = 23
	MOD_I64 = 24
	ADD_F64 = 25
	SUB_F64 = 26
	MUL_F64 = 27
	DIV_F64 = 28
	MOD_F64 = 29
	ADD_STR = 30
	EQ      = 31
	NEQ     = 32
	LT      = 33
	LTE     = 34
	GT      = 35
	GTE     = 36
	LT_F64  = 37
	LTE_F64 = 38
	GT_F64  = 39
	GTE_F64 = 40
	AND     = 41
	OR      = 42
)

// Jumps with absolute u32 targets.
const (
	JMP          = 50 // target
	JMP_IF_FALSE = 51 // cond, target
	JMP_IF_TRUE  = 52 // cond, target
)

// Calls.
const (
	CALL         = 60 // dst, u32 fn, arg_base, argc
	CALL_BUILTIN = 61 // dst, u16 id, arg_base, argc
	RET          = 62 // src
	FFI_CALL     = 63 // dst, u16 extern, arg_base, argc
	METHOD_CALL  = 64 // dst, obj, u16 method, arg_base, argc
	SUPER_CALL   = 65 // dst, u16 method, arg_base, argc
)

// Containers.
const (
	ARRAY_NEW = 70 // dst, src_base, u16 count
	ARRAY_GET = 71 // dst, arr, idx
	ARRAY_SET = 72 // arr, idx, val
	MAP_NEW   = 73 // dst, src_base, u16 pairs
	MAP_GET   = 74 // dst, map, key
	MAP_SET   = 75 // map, key, val
)

// Exceptions.
const (
	TRY_BEGIN = 80 // u32 catch, u32 finally, exc_reg
	TRY_END   = 81
	THROW     = 82 // src
)

// Structs and classes.
const (
	STRUCT_NEW = 90 // dst, u16 type, src_base, count
	STRUCT_GET = 91 // dst, obj, u16 field
	STRUCT_SET = 92 // obj, u16 field, val
	CLASS_NEW  = 93 // dst, u16 class, arg_base, argc
	CLASS_GET  = 94 // dst, obj, u16 field
	CLASS_SET  = 95 // obj, u16 field, val
)

type opInfo struct {
	name  string
	width int // operand bytes following the opcode
	valid bool
}

var opTable [256]opInfo

func def(op byte, name string, width int) {
	opTable[op] = opInfo{name: name, width: width, valid: true}
}

func init() {
	def(CONST_I64, "CONST_I64", 9)
	def(CONST_F64, "CONST_F64", 9)
	def(CONST_BOOL, "CONST_BOOL", 2)
	def(CONST_STR, "CONST_STR", 5)
	def(CONST_NULL, "CONST_NULL", 1)

	def(MOV, "MOV", 2)
	def(NEG_I64, "NEG_I64", 2)
	def(NEG_F64, "NEG_F64", 2)
	def(NOT, "NOT", 2)

	for op, name := range map[byte]string{
		ADD_I64: "ADD_I64", SUB_I64: "SUB_I64", MUL_I64: "MUL_I64", DIV_I64: "DIV_I64", MOD_I64: "MOD_I64",
		ADD_F64: "ADD_F64", SUB_F64: "SUB_F64", MUL_F64: "MUL_F64", DIV_F64: "DIV_F64", MOD_F64: "MOD_F64",
		ADD_STR: "ADD_STR",
		EQ:      "EQ", NEQ: "NEQ", LT: "LT", LTE: "LTE", GT: "GT", GTE: "GTE",
		LT_F64: "LT_F64", LTE_F64: "LTE_F64", GT_F64: "GT_F64", GTE_F64: "GTE_F64",
		AND: "AND", OR: "OR",
		ARRAY_GET: "ARRAY_GET", ARRAY_SET: "ARRAY_SET", MAP_GET: "MAP_GET", MAP_SET: "MAP_SET",
	} {
		def(op, name, 3)
	}

	def(JMP, "JMP", 4)
	def(JMP_IF_FALSE, "JMP_IF_FALSE", 5)
	def(JMP_IF_TRUE, "JMP_IF_TRUE", 5)

	def(CALL, "CALL", 7)
	def(CALL_BUILTIN, "CALL_BUILTIN", 5)
	def(RET, "RET", 1)
	def(FFI_CALL, "FFI_CALL", 5)
	def(METHOD_CALL, "METHOD_CALL", 6)
	def(SUPER_CALL, "SUPER_CALL", 5)

	def(ARRAY_NEW, "ARRAY_NEW", 4)
	def(MAP_NEW, "MAP_NEW", 4)

	def(TRY_BEGIN, "TRY_BEGIN", 9)
	def(TRY_END, "TRY_END", 0)
	def(THROW, "THROW", 1)

	def(STRUCT_NEW, "STRUCT_NEW", 5)
	def(STRUCT_GET, "STRUCT_GET", 4)
	def(STRUCT_SET, "STRUCT_SET", 4)
	def(CLASS_NEW, "CLASS_NEW", 5)
	def(CLASS_GET, "CLASS_GET", 4)
	def(CLASS_SET, "CLASS_SET", 4)
}

// Valid reports whether op is a known register opcode.
func Valid(op byte) bool {
	return opTable[op].valid
}

// OperandLength returns the number of operand bytes that follow op, or -1 for
// an unknown opcode.
func OperandLength(op byte) int {
	if !opTable[op].valid {
		return -1
	}
	return opTable[op].width
}

// Name returns the mnemonic of op.
func Name(op byte) string {
	if !opTable[op].valid {
		return "UNKNOWN"
	}
	return opTable[op].name
}

// IsJump reports whether op carries an absolute jump target.
func IsJump(op byte) bool {
	return op == JMP || op == JMP_IF_FALSE || op == JMP_IF_TRUE
}
