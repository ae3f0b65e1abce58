package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/colorfulnotion/bpvm/vmerrors"
)

// ModuleBuilder assembles a Module in memory. The demo command, the diff
// command and the tests all build their programs through it.
type ModuleBuilder struct {
	strings  []string
	strIndex map[string]uint32
	funcs    []*Assembler
	classes  []*ClassType
	entry    uint32
}

func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{strIndex: make(map[string]uint32)}
}

func (mb *ModuleBuilder) intern(s string) uint32 {
	if idx, ok := mb.strIndex[s]; ok {
		return idx
	}
	idx := uint32(len(mb.strings))
	mb.strings = append(mb.strings, s)
	mb.strIndex[s] = idx
	return idx
}

// Func starts a new register function and returns its assembler. The
// function's index is Assembler.Index.
func (mb *ModuleBuilder) Func(name string, arity, regCount uint16) *Assembler {
	a := &Assembler{
		mb:     mb,
		Index:  uint32(len(mb.funcs)),
		fn:     &Function{Name: name, Arity: arity, RegCount: regCount, Format: FormatRegister},
		labels: make(map[string]int),
		local:  make(map[uint32]uint32),
	}
	mb.funcs = append(mb.funcs, a)
	return a
}

// Class appends a class type and returns its id.
func (mb *ModuleBuilder) Class(name string, fields uint16, parent int32, methods ...uint32) uint16 {
	mb.classes = append(mb.classes, &ClassType{Name: name, FieldCount: fields, Parent: parent, Methods: methods})
	return uint16(len(mb.classes) - 1)
}

func (mb *ModuleBuilder) SetEntry(idx uint32) { mb.entry = idx }

// Build resolves every function's labels and returns the module.
func (mb *ModuleBuilder) Build() (*Module, error) {
	m := &Module{Strings: mb.strings, Entry: mb.entry, Classes: mb.classes}
	for _, a := range mb.funcs {
		fn, err := a.finish()
		if err != nil {
			return nil, err
		}
		m.Functions = append(m.Functions, fn)
	}
	if int(m.Entry) >= len(m.Functions) {
		return nil, fmt.Errorf("entry %d: %w", m.Entry, vmerrors.ErrLBadEntry)
	}
	return m, nil
}

type labelRef struct {
	at    int // operand offset of the u32 target
	label string
}

// Assembler emits the instructions of one function.
type Assembler struct {
	mb     *ModuleBuilder
	Index  uint32
	fn     *Function
	code   []byte
	labels map[string]int
	refs   []labelRef
	local  map[uint32]uint32 // pool index -> local id
}

// PC is the offset the next instruction will be emitted at.
func (a *Assembler) PC() int { return len(a.code) }

// Label binds name to the current pc. A label may be bound at the end of the
// body, in which case jumping to it is an implicit return.
func (a *Assembler) Label(name string) *Assembler {
	a.labels[name] = len(a.code)
	return a
}

func (a *Assembler) op(op byte, operands ...byte) *Assembler {
	a.code = append(a.code, op)
	a.code = append(a.code, operands...)
	return a
}

func u16le(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32le(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func (a *Assembler) target(label string) []byte {
	a.refs = append(a.refs, labelRef{at: len(a.code), label: label})
	return []byte{0, 0, 0, 0}
}

func (a *Assembler) ConstI64(dst byte, v int64) *Assembler {
	return a.op(CONST_I64, append([]byte{dst}, binary.LittleEndian.AppendUint64(nil, uint64(v))...)...)
}

func (a *Assembler) ConstF64(dst byte, v float64) *Assembler {
	return a.op(CONST_F64, append([]byte{dst}, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))...)...)
}

func (a *Assembler) ConstBool(dst byte, v bool) *Assembler {
	b := byte(0)
	if v {
		b = 1
	}
	return a.op(CONST_BOOL, dst, b)
}

// ConstStr interns s in the module pool and loads it through a function-local id.
func (a *Assembler) ConstStr(dst byte, s string) *Assembler {
	pool := a.mb.intern(s)
	id, ok := a.local[pool]
	if !ok {
		id = uint32(len(a.fn.StrConstIDs))
		a.fn.StrConstIDs = append(a.fn.StrConstIDs, pool)
		a.local[pool] = id
	}
	return a.op(CONST_STR, append([]byte{dst}, u32le(id)...)...)
}

func (a *Assembler) ConstNull(dst byte) *Assembler { return a.op(CONST_NULL, dst) }
func (a *Assembler) Mov(dst, src byte) *Assembler  { return a.op(MOV, dst, src) }

// Unary emits a two-register opcode such as NEG_I64 or NOT.
func (a *Assembler) Unary(op, dst, src byte) *Assembler { return a.op(op, dst, src) }

// Binary emits a three-register opcode: arithmetic, comparisons, logic and
// the container get/set forms.
func (a *Assembler) Binary(op, x, y, z byte) *Assembler { return a.op(op, x, y, z) }

func (a *Assembler) Jmp(label string) *Assembler {
	a.code = append(a.code, JMP)
	a.code = append(a.code, a.target(label)...)
	return a
}

func (a *Assembler) JmpIfFalse(cond byte, label string) *Assembler {
	a.code = append(a.code, JMP_IF_FALSE, cond)
	a.code = append(a.code, a.target(label)...)
	return a
}

func (a *Assembler) JmpIfTrue(cond byte, label string) *Assembler {
	a.code = append(a.code, JMP_IF_TRUE, cond)
	a.code = append(a.code, a.target(label)...)
	return a
}

func (a *Assembler) Call(dst byte, fn uint32, base, argc byte) *Assembler {
	ops := append([]byte{dst}, u32le(fn)...)
	return a.op(CALL, append(ops, base, argc)...)
}

func (a *Assembler) CallBuiltin(dst byte, id uint16, base, argc byte) *Assembler {
	return a.op(CALL_BUILTIN, append(append([]byte{dst}, u16le(id)...), base, argc)...)
}

func (a *Assembler) FFICall(dst byte, id uint16, base, argc byte) *Assembler {
	return a.op(FFI_CALL, append(append([]byte{dst}, u16le(id)...), base, argc)...)
}

func (a *Assembler) Ret(src byte) *Assembler { return a.op(RET, src) }

func (a *Assembler) ArrayNew(dst, base byte, count uint16) *Assembler {
	return a.op(ARRAY_NEW, append([]byte{dst, base}, u16le(count)...)...)
}

func (a *Assembler) MapNew(dst, base byte, pairs uint16) *Assembler {
	return a.op(MAP_NEW, append([]byte{dst, base}, u16le(pairs)...)...)
}

// TryBegin installs a handler that resumes at catch with the thrown value in exc.
func (a *Assembler) TryBegin(catch, finally string, exc byte) *Assembler {
	a.code = append(a.code, TRY_BEGIN)
	a.code = append(a.code, a.target(catch)...)
	if finally == "" {
		a.code = append(a.code, 0, 0, 0, 0)
	} else {
		a.code = append(a.code, a.target(finally)...)
	}
	a.code = append(a.code, exc)
	return a
}

func (a *Assembler) TryEnd() *Assembler      { return a.op(TRY_END) }
func (a *Assembler) Throw(src byte) *Assembler { return a.op(THROW, src) }

func (a *Assembler) StructNew(dst byte, typ uint16, base, count byte) *Assembler {
	return a.op(STRUCT_NEW, append(append([]byte{dst}, u16le(typ)...), base, count)...)
}

func (a *Assembler) StructGet(dst, obj byte, field uint16) *Assembler {
	return a.op(STRUCT_GET, append([]byte{dst, obj}, u16le(field)...)...)
}

func (a *Assembler) StructSet(obj byte, field uint16, val byte) *Assembler {
	return a.op(STRUCT_SET, append(append([]byte{obj}, u16le(field)...), val)...)
}

func (a *Assembler) ClassNew(dst byte, class uint16, base, argc byte) *Assembler {
	return a.op(CLASS_NEW, append(append([]byte{dst}, u16le(class)...), base, argc)...)
}

func (a *Assembler) ClassGet(dst, obj byte, field uint16) *Assembler {
	return a.op(CLASS_GET, append([]byte{dst, obj}, u16le(field)...)...)
}

func (a *Assembler) ClassSet(obj byte, field uint16, val byte) *Assembler {
	return a.op(CLASS_SET, append(append([]byte{obj}, u16le(field)...), val)...)
}

func (a *Assembler) MethodCall(dst, obj byte, method uint16, base, argc byte) *Assembler {
	return a.op(METHOD_CALL, append(append([]byte{dst, obj}, u16le(method)...), base, argc)...)
}

func (a *Assembler) SuperCall(dst byte, method uint16, base, argc byte) *Assembler {
	return a.op(SUPER_CALL, append(append([]byte{dst}, u16le(method)...), base, argc)...)
}

// Raw appends bytes verbatim, for hand-crafted malformed bodies.
func (a *Assembler) Raw(b ...byte) *Assembler {
	a.code = append(a.code, b...)
	return a
}

func (a *Assembler) finish() (*Function, error) {
	for _, ref := range a.refs {
		pc, ok := a.labels[ref.label]
		if !ok {
			return nil, fmt.Errorf("%s: label %q: %w", a.fn.Name, ref.label, vmerrors.ErrJUndefinedLabel)
		}
		binary.LittleEndian.PutUint32(a.code[ref.at:], uint32(pc))
	}
	a.fn.Code = a.code
	return a.fn, nil
}
