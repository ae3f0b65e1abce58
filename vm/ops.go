package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

// opHandler executes one decoded instruction. ops holds exactly the opcode's
// operand bytes and vm.ip already points at the next instruction.
type opHandler func(vm *VM, ops []byte) error

func u16(ops []byte, off int) uint16 { return binary.LittleEndian.Uint16(ops[off:]) }
func u32(ops []byte, off int) uint32 { return binary.LittleEndian.Uint32(ops[off:]) }

func typeMismatch(op byte, vals ...value.Value) error {
	kinds := make([]string, len(vals))
	for i, v := range vals {
		kinds[i] = v.Kind.String()
	}
	return fmt.Errorf("%s got %v: %w", bytecode.Name(op), kinds, vmerrors.ErrETypeMismatch)
}

func (vm *VM) ints(op byte, ops []byte) (int64, int64, error) {
	a, b := vm.reg(ops[1]), vm.reg(ops[2])
	if a.Kind != value.KindInt || b.Kind != value.KindInt {
		return 0, 0, typeMismatch(op, a, b)
	}
	return a.I, b.I, nil
}

func (vm *VM) floats(op byte, ops []byte) (float64, float64, error) {
	a, b := vm.reg(ops[1]), vm.reg(ops[2])
	if a.Kind != value.KindFloat || b.Kind != value.KindFloat {
		return 0, 0, typeMismatch(op, a, b)
	}
	return a.F, b.F, nil
}

// constants and moves

func opConstI64(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Int(int64(binary.LittleEndian.Uint64(ops[1:]))))
	return nil
}

func opConstF64(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Float(math.Float64frombits(binary.LittleEndian.Uint64(ops[1:]))))
	return nil
}

func opConstBool(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(ops[1] != 0))
	return nil
}

func opConstStr(vm *VM, ops []byte) error {
	s, err := vm.mod.String(vm.fn, u32(ops, 1))
	if err != nil {
		return err
	}
	vm.setReg(ops[0], vm.heap.NewStr(s))
	return nil
}

func opConstNull(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Null())
	return nil
}

func opMov(vm *VM, ops []byte) error {
	vm.setReg(ops[0], vm.reg(ops[1]))
	return nil
}

// integer arithmetic

func opAddI64(vm *VM, ops []byte) error {
	a, b, err := vm.ints(bytecode.ADD_I64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Int(a+b))
	return nil
}

func opSubI64(vm *VM, ops []byte) error {
	a, b, err := vm.ints(bytecode.SUB_I64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Int(a-b))
	return nil
}

func opMulI64(vm *VM, ops []byte) error {
	a, b, err := vm.ints(bytecode.MUL_I64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Int(a*b))
	return nil
}

// Go defines MinInt64 / -1 as MinInt64 and MinInt64 % -1 as 0, which is
// what native code produces as well.
func opDivI64(vm *VM, ops []byte) error {
	a, b, err := vm.ints(bytecode.DIV_I64, ops)
	if err != nil {
		return err
	}
	if b == 0 {
		return fmt.Errorf("%d / 0: %w", a, vmerrors.ErrEDivisionByZero)
	}
	vm.setReg(ops[0], value.Int(a/b))
	return nil
}

func opModI64(vm *VM, ops []byte) error {
	a, b, err := vm.ints(bytecode.MOD_I64, ops)
	if err != nil {
		return err
	}
	if b == 0 {
		return fmt.Errorf("%d %% 0: %w", a, vmerrors.ErrEDivisionByZero)
	}
	vm.setReg(ops[0], value.Int(a%b))
	return nil
}

func opNegI64(vm *VM, ops []byte) error {
	a := vm.reg(ops[1])
	if a.Kind != value.KindInt {
		return typeMismatch(bytecode.NEG_I64, a)
	}
	vm.setReg(ops[0], value.Int(-a.I))
	return nil
}

// float arithmetic

func opAddF64(vm *VM, ops []byte) error {
	a, b, err := vm.floats(bytecode.ADD_F64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Float(a+b))
	return nil
}

func opSubF64(vm *VM, ops []byte) error {
	a, b, err := vm.floats(bytecode.SUB_F64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Float(a-b))
	return nil
}

func opMulF64(vm *VM, ops []byte) error {
	a, b, err := vm.floats(bytecode.MUL_F64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Float(a*b))
	return nil
}

func opDivF64(vm *VM, ops []byte) error {
	a, b, err := vm.floats(bytecode.DIV_F64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Float(a/b))
	return nil
}

func opModF64(vm *VM, ops []byte) error {
	a, b, err := vm.floats(bytecode.MOD_F64, ops)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], value.Float(math.Mod(a, b)))
	return nil
}

func opNegF64(vm *VM, ops []byte) error {
	a := vm.reg(ops[1])
	if a.Kind != value.KindFloat {
		return typeMismatch(bytecode.NEG_F64, a)
	}
	vm.setReg(ops[0], value.Float(-a.F))
	return nil
}

func opAddStr(vm *VM, ops []byte) error {
	a, b := vm.reg(ops[1]), vm.reg(ops[2])
	if a.Kind != value.KindStr || b.Kind != value.KindStr {
		return typeMismatch(bytecode.ADD_STR, a, b)
	}
	vm.setReg(ops[0], vm.heap.NewStr(a.Str()+b.Str()))
	return nil
}

// comparisons

func opEq(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(vm.reg(ops[1]).Equal(vm.reg(ops[2]))))
	return nil
}

func opNeq(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(!vm.reg(ops[1]).Equal(vm.reg(ops[2]))))
	return nil
}

func intCompare(op byte, cmp func(a, b int64) bool) opHandler {
	return func(vm *VM, ops []byte) error {
		a, b, err := vm.ints(op, ops)
		if err != nil {
			return err
		}
		vm.setReg(ops[0], value.Bool(cmp(a, b)))
		return nil
	}
}

func floatCompare(op byte, cmp func(a, b float64) bool) opHandler {
	return func(vm *VM, ops []byte) error {
		a, b, err := vm.floats(op, ops)
		if err != nil {
			return err
		}
		vm.setReg(ops[0], value.Bool(cmp(a, b)))
		return nil
	}
}

var (
	opLt   = intCompare(bytecode.LT, func(a, b int64) bool { return a < b })
	opLte  = intCompare(bytecode.LTE, func(a, b int64) bool { return a <= b })
	opGt   = intCompare(bytecode.GT, func(a, b int64) bool { return a > b })
	opGte  = intCompare(bytecode.GTE, func(a, b int64) bool { return a >= b })
	opLtF  = floatCompare(bytecode.LT_F64, func(a, b float64) bool { return a < b })
	opLteF = floatCompare(bytecode.LTE_F64, func(a, b float64) bool { return a <= b })
	opGtF  = floatCompare(bytecode.GT_F64, func(a, b float64) bool { return a > b })
	opGteF = floatCompare(bytecode.GTE_F64, func(a, b float64) bool { return a >= b })
)

// logic

func opNot(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(!vm.reg(ops[1]).Truthy()))
	return nil
}

func opAnd(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(vm.reg(ops[1]).Truthy() && vm.reg(ops[2]).Truthy()))
	return nil
}

func opOr(vm *VM, ops []byte) error {
	vm.setReg(ops[0], value.Bool(vm.reg(ops[1]).Truthy() || vm.reg(ops[2]).Truthy()))
	return nil
}

// jumps

func opJmp(vm *VM, ops []byte) error {
	vm.ip = int(u32(ops, 0))
	return nil
}

func opJmpIfFalse(vm *VM, ops []byte) error {
	if !vm.reg(ops[0]).Truthy() {
		vm.ip = int(u32(ops, 1))
	}
	return nil
}

func opJmpIfTrue(vm *VM, ops []byte) error {
	if vm.reg(ops[0]).Truthy() {
		vm.ip = int(u32(ops, 1))
	}
	return nil
}

// containers

func opArrayNew(vm *VM, ops []byte) error {
	elems, err := vm.window(ops[1], int(u16(ops, 2)))
	if err != nil {
		return err
	}
	vm.setReg(ops[0], vm.heap.NewArray(elems))
	return nil
}

func (vm *VM) arrayIndex(op byte, arrReg, idxReg byte) (*value.Array, int, error) {
	a, i := vm.reg(arrReg), vm.reg(idxReg)
	if a.Kind != value.KindArray || i.Kind != value.KindInt {
		return nil, 0, typeMismatch(op, a, i)
	}
	arr := a.Array()
	idx, ok := arr.Index(i.I)
	if !ok {
		return nil, 0, fmt.Errorf("index %d on array of length %d: %w", i.I, arr.Len(), vmerrors.ErrEIndexOutOfBounds)
	}
	return arr, idx, nil
}

func opArrayGet(vm *VM, ops []byte) error {
	arr, idx, err := vm.arrayIndex(bytecode.ARRAY_GET, ops[1], ops[2])
	if err != nil {
		return err
	}
	vm.setReg(ops[0], arr.Elems[idx])
	return nil
}

func opArraySet(vm *VM, ops []byte) error {
	arr, idx, err := vm.arrayIndex(bytecode.ARRAY_SET, ops[0], ops[1])
	if err != nil {
		return err
	}
	arr.Elems[idx] = vm.reg(ops[2])
	return nil
}

// opMapNew reads count key/value pairs from consecutive registers.
func opMapNew(vm *VM, ops []byte) error {
	pairs := int(u16(ops, 2))
	kv, err := vm.window(ops[1], 2*pairs)
	if err != nil {
		return err
	}
	mv := vm.heap.NewMap()
	m := mv.Map()
	for i := 0; i < pairs; i++ {
		m.Set(kv[2*i], kv[2*i+1])
	}
	vm.setReg(ops[0], mv)
	return nil
}

func opMapGet(vm *VM, ops []byte) error {
	m := vm.reg(ops[1])
	if m.Kind != value.KindMap {
		return typeMismatch(bytecode.MAP_GET, m)
	}
	k := vm.reg(ops[2])
	v, ok := m.Map().Get(k)
	if !ok {
		return fmt.Errorf("key %s: %w", k, vmerrors.ErrEKeyNotFound)
	}
	vm.setReg(ops[0], v)
	return nil
}

func opMapSet(vm *VM, ops []byte) error {
	m := vm.reg(ops[0])
	if m.Kind != value.KindMap {
		return typeMismatch(bytecode.MAP_SET, m)
	}
	m.Map().Set(vm.reg(ops[1]), vm.reg(ops[2]))
	return nil
}

// records

func opStructNew(vm *VM, ops []byte) error {
	fields, err := vm.window(ops[3], int(ops[4]))
	if err != nil {
		return err
	}
	vm.setReg(ops[0], vm.heap.NewStruct(u16(ops, 1), fields))
	return nil
}

func (vm *VM) fields(op byte, r byte, kind value.Kind, field uint16) ([]value.Value, error) {
	v := vm.reg(r)
	if v.Kind != kind {
		return nil, typeMismatch(op, v)
	}
	var fs []value.Value
	if kind == value.KindStruct {
		fs = v.Struct().Fields
	} else {
		fs = v.Class().Fields
	}
	if int(field) >= len(fs) {
		return nil, fmt.Errorf("field %d of %d: %w", field, len(fs), vmerrors.ErrEBadField)
	}
	return fs, nil
}

func opStructGet(vm *VM, ops []byte) error {
	field := u16(ops, 2)
	fs, err := vm.fields(bytecode.STRUCT_GET, ops[1], value.KindStruct, field)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], fs[field])
	return nil
}

func opStructSet(vm *VM, ops []byte) error {
	field := u16(ops, 1)
	fs, err := vm.fields(bytecode.STRUCT_SET, ops[0], value.KindStruct, field)
	if err != nil {
		return err
	}
	fs[field] = vm.reg(ops[3])
	return nil
}

// opClassNew sizes the instance from the class table; an unknown class id
// gets no fields.
func opClassNew(vm *VM, ops []byte) error {
	id := u16(ops, 1)
	n := 0
	if int(id) < len(vm.mod.Classes) {
		n = int(vm.mod.Classes[id].FieldCount)
	}
	init, err := vm.window(ops[3], int(ops[4]))
	if err != nil {
		return err
	}
	vm.setReg(ops[0], vm.heap.NewClass(id, n, init))
	return nil
}

func opClassGet(vm *VM, ops []byte) error {
	field := u16(ops, 2)
	fs, err := vm.fields(bytecode.CLASS_GET, ops[1], value.KindClass, field)
	if err != nil {
		return err
	}
	vm.setReg(ops[0], fs[field])
	return nil
}

func opClassSet(vm *VM, ops []byte) error {
	field := u16(ops, 1)
	fs, err := vm.fields(bytecode.CLASS_SET, ops[0], value.KindClass, field)
	if err != nil {
		return err
	}
	fs[field] = vm.reg(ops[3])
	return nil
}
