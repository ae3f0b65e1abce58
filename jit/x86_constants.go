package jit

// REX Prefix Constants
const (
	X86_REX   = 0x40
	X86_REX_W = 0x08 // REX.W - 64-bit operand size
	X86_REX_R = 0x04 // REX.R - Extension of ModRM reg field
	X86_REX_B = 0x01 // REX.B - Extension of ModRM r/m or opcode reg field
)

// ModRM Mode Constants
const (
	X86_MOD_INDIRECT_DISP8  = 0x01 // [reg + disp8]
	X86_MOD_INDIRECT_DISP32 = 0x02 // [reg + disp32]
	X86_MOD_REGISTER        = 0x03 // reg
	X86_SIB_RSP_BASE        = 0x24 // SIB with base=rsp, no index
)

// Primary Opcodes
const (
	X86_OP_ADD_RM_R        = 0x01 // ADD r/m, r
	X86_OP_OR_RM_R         = 0x09 // OR r/m, r
	X86_OP_AND_RM_R        = 0x21 // AND r/m, r
	X86_OP_SUB_RM_R        = 0x29 // SUB r/m, r
	X86_OP_XOR_RM_R        = 0x31 // XOR r/m, r
	X86_OP_CMP_RM_R        = 0x39 // CMP r/m, r
	X86_OP_PUSH_R          = 0x50 // PUSH r64 (+ reg)
	X86_OP_POP_R           = 0x58 // POP r64 (+ reg)
	X86_OP_JCC_REL8        = 0x70 // Jcc rel8 (+ cc)
	X86_OP_GROUP1_RM_IMM32 = 0x81 // Group 1 operations with imm32
	X86_OP_GROUP1_RM_IMM8  = 0x83 // Group 1 operations with imm8
	X86_OP_TEST_RM_R       = 0x85 // TEST r/m, r
	X86_OP_MOV_RM_R        = 0x89 // MOV r/m, r
	X86_OP_MOV_R_RM        = 0x8B // MOV r, r/m
	X86_OP_LEA             = 0x8D // LEA r, m
	X86_OP_CQO             = 0x99 // CQO with REX.W
	X86_OP_MOV_R_IMM       = 0xB8 // MOV r, imm64 (+ reg)
	X86_OP_RET             = 0xC3 // RET
	X86_OP_MOV_RM_IMM      = 0xC7 // MOV r/m, imm32
	X86_OP_CALL_REL32      = 0xE8 // CALL rel32
	X86_OP_JMP_REL32       = 0xE9 // JMP rel32
	X86_OP_JMP_REL8        = 0xEB // JMP rel8
	X86_OP_GROUP3_RM       = 0xF7 // Group 3 unary operations
)

// Two-byte opcodes (0x0F prefix)
const (
	X86_PREFIX_0F   = 0x0F
	X86_OP2_JCC     = 0x80 // Jcc rel32 (+ cc)
	X86_OP2_SETCC   = 0x90 // SETcc r/m8 (+ cc)
	X86_OP2_IMUL    = 0xAF // IMUL r, r/m
	X86_OP2_MOVZX_B = 0xB6 // MOVZX r, r/m8
)

// ModRM reg-field extensions
const (
	X86_REG_ADD  = 0 // group 1 /0
	X86_REG_SUB  = 5 // group 1 /5
	X86_REG_CMP  = 7 // group 1 /7
	X86_REG_NEG  = 3 // group 3 /3
	X86_REG_IDIV = 7 // group 3 /7
)

// Condition codes
const (
	X86_CC_E  = 0x4
	X86_CC_NE = 0x5
	X86_CC_L  = 0xC
	X86_CC_GE = 0xD
	X86_CC_LE = 0xE
	X86_CC_G  = 0xF
)
