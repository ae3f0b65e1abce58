package vm

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

var handlerTable [256]opHandler

func init() {
	for op, h := range map[byte]opHandler{
		bytecode.CONST_I64:  opConstI64,
		bytecode.CONST_F64:  opConstF64,
		bytecode.CONST_BOOL: opConstBool,
		bytecode.CONST_STR:  opConstStr,
		bytecode.CONST_NULL: opConstNull,

		bytecode.MOV:     opMov,
		bytecode.NEG_I64: opNegI64,
		bytecode.NEG_F64: opNegF64,
		bytecode.NOT:     opNot,

		bytecode.ADD_I64: opAddI64,
		bytecode.SUB_I64: opSubI64,
		bytecode.MUL_I64: opMulI64,
		bytecode.DIV_I64: opDivI64,
		bytecode.MOD_I64: opModI64,
		bytecode.ADD_F64: opAddF64,
		bytecode.SUB_F64: opSubF64,
		bytecode.MUL_F64: opMulF64,
		bytecode.DIV_F64: opDivF64,
		bytecode.MOD_F64: opModF64,
		bytecode.ADD_STR: opAddStr,
		bytecode.EQ:      opEq,
		bytecode.NEQ:     opNeq,
		bytecode.LT:      opLt,
		bytecode.LTE:     opLte,
		bytecode.GT:      opGt,
		bytecode.GTE:     opGte,
		bytecode.LT_F64:  opLtF,
		bytecode.LTE_F64: opLteF,
		bytecode.GT_F64:  opGtF,
		bytecode.GTE_F64: opGteF,
		bytecode.AND:     opAnd,
		bytecode.OR:      opOr,

		bytecode.JMP:          opJmp,
		bytecode.JMP_IF_FALSE: opJmpIfFalse,
		bytecode.JMP_IF_TRUE:  opJmpIfTrue,

		bytecode.CALL:         opCall,
		bytecode.CALL_BUILTIN: opCallBuiltin,
		bytecode.RET:          opRet,
		bytecode.FFI_CALL:     opFFICall,
		bytecode.METHOD_CALL:  opMethodCall,
		bytecode.SUPER_CALL:   opSuperCall,

		bytecode.ARRAY_NEW: opArrayNew,
		bytecode.ARRAY_GET: opArrayGet,
		bytecode.ARRAY_SET: opArraySet,
		bytecode.MAP_NEW:   opMapNew,
		bytecode.MAP_GET:   opMapGet,
		bytecode.MAP_SET:   opMapSet,

		bytecode.TRY_BEGIN: opTryBegin,
		bytecode.TRY_END:   opTryEnd,
		bytecode.THROW:     opThrow,

		bytecode.STRUCT_NEW: opStructNew,
		bytecode.STRUCT_GET: opStructGet,
		bytecode.STRUCT_SET: opStructSet,
		bytecode.CLASS_NEW:  opClassNew,
		bytecode.CLASS_GET:  opClassGet,
		bytecode.CLASS_SET:  opClassSet,
	} {
		handlerTable[op] = h
	}
}

func badOpcode(op byte) error {
	return fmt.Errorf("opcode 0x%02x: %w", op, vmerrors.ErrEBadOpcode)
}

func (vm *VM) execTable(op byte, ops []byte) error {
	h := handlerTable[op]
	if h == nil {
		return badOpcode(op)
	}
	return h(vm, ops)
}

func (vm *VM) execSwitch(op byte, ops []byte) error {
	switch op {
	case bytecode.CONST_I64:
		return opConstI64(vm, ops)
	case bytecode.CONST_F64:
		return opConstF64(vm, ops)
	case bytecode.CONST_BOOL:
		return opConstBool(vm, ops)
	case bytecode.CONST_STR:
		return opConstStr(vm, ops)
	case bytecode.CONST_NULL:
		return opConstNull(vm, ops)
	case bytecode.MOV:
		return opMov(vm, ops)
	case bytecode.NEG_I64:
		return opNegI64(vm, ops)
	case bytecode.NEG_F64:
		return opNegF64(vm, ops)
	case bytecode.NOT:
		return opNot(vm, ops)
	case bytecode.ADD_I64:
		return opAddI64(vm, ops)
	case bytecode.SUB_I64:
		return opSubI64(vm, ops)
	case bytecode.MUL_I64:
		return opMulI64(vm, ops)
	case bytecode.DIV_I64:
		return opDivI64(vm, ops)
	case bytecode.MOD_I64:
		return opModI64(vm, ops)
	case bytecode.ADD_F64:
		return opAddF64(vm, ops)
	case bytecode.SUB_F64:
		return opSubF64(vm, ops)
	case bytecode.MUL_F64:
		return opMulF64(vm, ops)
	case bytecode.DIV_F64:
		return opDivF64(vm, ops)
	case bytecode.MOD_F64:
		return opModF64(vm, ops)
	case bytecode.ADD_STR:
		return opAddStr(vm, ops)
	case bytecode.EQ:
		return opEq(vm, ops)
	case bytecode.NEQ:
		return opNeq(vm, ops)
	case bytecode.LT:
		return opLt(vm, ops)
	case bytecode.LTE:
		return opLte(vm, ops)
	case bytecode.GT:
		return opGt(vm, ops)
	case bytecode.GTE:
		return opGte(vm, ops)
	case bytecode.LT_F64:
		return opLtF(vm, ops)
	case bytecode.LTE_F64:
		return opLteF(vm, ops)
	case bytecode.GT_F64:
		return opGtF(vm, ops)
	case bytecode.GTE_F64:
		return opGteF(vm, ops)
	case bytecode.AND:
		return opAnd(vm, ops)
	case bytecode.OR:
		return opOr(vm, ops)
	case bytecode.JMP:
		return opJmp(vm, ops)
	case bytecode.JMP_IF_FALSE:
		return opJmpIfFalse(vm, ops)
	case bytecode.JMP_IF_TRUE:
		return opJmpIfTrue(vm, ops)
	case bytecode.CALL:
		return opCall(vm, ops)
	case bytecode.CALL_BUILTIN:
		return opCallBuiltin(vm, ops)
	case bytecode.RET:
		return opRet(vm, ops)
	case bytecode.FFI_CALL:
		return opFFICall(vm, ops)
	case bytecode.METHOD_CALL:
		return opMethodCall(vm, ops)
	case bytecode.SUPER_CALL:
		return opSuperCall(vm, ops)
	case bytecode.ARRAY_NEW:
		return opArrayNew(vm, ops)
	case bytecode.ARRAY_GET:
		return opArrayGet(vm, ops)
	case bytecode.ARRAY_SET:
		return opArraySet(vm, ops)
	case bytecode.MAP_NEW:
		return opMapNew(vm, ops)
	case bytecode.MAP_GET:
		return opMapGet(vm, ops)
	case bytecode.MAP_SET:
		return opMapSet(vm, ops)
	case bytecode.TRY_BEGIN:
		return opTryBegin(vm, ops)
	case bytecode.TRY_END:
		return opTryEnd(vm, ops)
	case bytecode.THROW:
		return opThrow(vm, ops)
	case bytecode.STRUCT_NEW:
		return opStructNew(vm, ops)
	case bytecode.STRUCT_GET:
		return opStructGet(vm, ops)
	case bytecode.STRUCT_SET:
		return opStructSet(vm, ops)
	case bytecode.CLASS_NEW:
		return opClassNew(vm, ops)
	case bytecode.CLASS_GET:
		return opClassGet(vm, ops)
	case bytecode.CLASS_SET:
		return opClassSet(vm, ops)
	}
	return badOpcode(op)
}
