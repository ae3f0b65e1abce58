package jit

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

// KindSet is a bitset of value kinds a virtual register may hold.
type KindSet uint16

const (
	KNull KindSet = 1 << value.KindNull
	KInt  KindSet = 1 << value.KindInt
	KBool KindSet = 1 << value.KindBool
)

func (k KindSet) single() bool { return k != 0 && k&(k-1) == 0 }

func (k KindSet) String() string {
	s := ""
	for kind := value.KindNull; kind <= value.KindPtr; kind++ {
		if k&(1<<kind) != 0 {
			if s != "" {
				s += "|"
			}
			s += kind.String()
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Kind returns the value kind of a single-kind set.
func (k KindSet) Kind() value.Kind {
	for kind := value.KindNull; kind <= value.KindPtr; kind++ {
		if k == 1<<kind {
			return kind
		}
	}
	return value.KindNull
}

// KindInfo is the result of kind analysis over one function.
type KindInfo struct {
	// Regs holds every kind assigned to each register, Null when never written.
	Regs   []KindSet
	Result KindSet
	// At holds the register kinds on entry to each instruction, nil when the
	// instruction is unreachable.
	At [][]KindSet
}

// writtenKind is the kind an instruction stores into its destination
// register; ok is false when it writes none. A self call yields the result
// kinds known so far.
func writtenKind(in bytecode.Instruction, st []KindSet, result KindSet) (k KindSet, ok bool) {
	switch in.Op {
	case bytecode.CONST_I64, bytecode.ADD_I64, bytecode.SUB_I64, bytecode.MUL_I64,
		bytecode.DIV_I64, bytecode.MOD_I64, bytecode.NEG_I64:
		return KInt, true
	case bytecode.CONST_BOOL, bytecode.EQ, bytecode.NEQ, bytecode.LT, bytecode.LTE,
		bytecode.GT, bytecode.GTE, bytecode.NOT, bytecode.AND, bytecode.OR:
		return KBool, true
	case bytecode.MOV:
		return st[in.Reg(1)], true
	case bytecode.CALL:
		return result, true
	}
	return 0, false
}

// flowKinds propagates register kinds forward from the entry state until
// every reachable instruction's entry state is stable.
func flowKinds(insts []bytecode.Instruction, entry []KindSet, result KindSet) [][]KindSet {
	index := make(map[int]int, len(insts))
	for i, in := range insts {
		index[in.PC] = i
	}
	at := make([][]KindSet, len(insts))
	at[0] = append([]KindSet(nil), entry...)
	work := []int{0}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := insts[i]
		out := append([]KindSet(nil), at[i]...)
		if k, ok := writtenKind(in, out, result); ok {
			out[in.Reg(0)] = k
		}

		var succs []int
		if tgt, ok := in.JumpTarget(); ok {
			succs = append(succs, index[tgt])
		}
		if in.Op != bytecode.JMP && in.Op != bytecode.RET && i+1 < len(insts) {
			succs = append(succs, i+1)
		}
		for _, s := range succs {
			if at[s] == nil {
				at[s] = append([]KindSet(nil), out...)
				work = append(work, s)
				continue
			}
			grew := false
			for r, k := range out {
				if at[s][r]|k != at[s][r] {
					at[s][r] |= k
					grew = true
				}
			}
			if grew {
				work = append(work, s)
			}
		}
	}
	return at
}

// analyzeKinds computes the kinds each register can hold on entry to every
// instruction and rejects any function where native integer code could
// disagree with the interpreter's tag checks. Parameters are assumed Int
// because the dispatcher only enters native code with all-Int arguments; every
// other register starts Null, as the interpreter null-fills the window. The
// result kind of self calls is iterated to a fixed point.
func analyzeKinds(fn *bytecode.Function, insts []bytecode.Instruction) (*KindInfo, error) {
	n := int(fn.RegCount)
	entry := make([]KindSet, n)
	for r := range entry {
		entry[r] = KNull
		if r < int(fn.Arity) {
			entry[r] = KInt
		}
	}

	var (
		result KindSet
		at     [][]KindSet
	)
	for {
		at = flowKinds(insts, entry, result)
		next := result
		for i, in := range insts {
			if in.Op == bytecode.RET && at[i] != nil {
				next |= at[i][in.Reg(0)]
			}
		}
		if next == result {
			break
		}
		result = next
	}

	info := &KindInfo{Regs: make([]KindSet, n), Result: result, At: at}
	for r := 0; r < n && r < int(fn.Arity); r++ {
		info.Regs[r] = KInt
	}
	for i, in := range insts {
		if at[i] == nil {
			continue
		}
		if k, ok := writtenKind(in, at[i], result); ok {
			info.Regs[in.Reg(0)] |= k
		}
	}
	for r, k := range info.Regs {
		if k == 0 {
			info.Regs[r] = KNull
		}
	}

	mismatch := func(in bytecode.Instruction, format string, args ...interface{}) error {
		return fmt.Errorf("%s at 0x%04x: %s: %w", bytecode.Name(in.Op), in.PC, fmt.Sprintf(format, args...), vmerrors.ErrJKindMismatch)
	}
	var st []KindSet
	needInt := func(in bytecode.Instruction, regs ...int) error {
		for _, r := range regs {
			if k := st[r]; k != KInt {
				return mismatch(in, "r%d may hold %s", r, k)
			}
		}
		return nil
	}
	needScalar := func(in bytecode.Instruction, r int) error {
		if k := st[r]; k&^(KInt|KBool|KNull) != 0 {
			return mismatch(in, "r%d may hold %s", r, k)
		}
		return nil
	}

	for i, in := range insts {
		if in.Op == bytecode.CALL {
			if base, argc := in.Reg(5), int(in.U8(6)); argc != int(fn.Arity) || base+argc > n {
				return nil, mismatch(in, "self call passes %d args from r%d to arity %d", argc, base, fn.Arity)
			}
		}
		if st = at[i]; st == nil {
			continue
		}
		var err error
		switch in.Op {
		case bytecode.ADD_I64, bytecode.SUB_I64, bytecode.MUL_I64, bytecode.DIV_I64, bytecode.MOD_I64,
			bytecode.LT, bytecode.LTE, bytecode.GT, bytecode.GTE:
			err = needInt(in, in.Reg(1), in.Reg(2))
		case bytecode.NEG_I64:
			err = needInt(in, in.Reg(1))
		case bytecode.EQ, bytecode.NEQ:
			a, b := st[in.Reg(1)], st[in.Reg(2)]
			if !a.single() || a != b || a&(KInt|KBool) == 0 {
				err = mismatch(in, "operands %s and %s", a, b)
			}
		case bytecode.NOT:
			err = needScalar(in, in.Reg(1))
		case bytecode.AND, bytecode.OR:
			if err = needScalar(in, in.Reg(1)); err == nil {
				err = needScalar(in, in.Reg(2))
			}
		case bytecode.JMP_IF_FALSE, bytecode.JMP_IF_TRUE:
			err = needScalar(in, in.Reg(0))
		case bytecode.CALL:
			base, argc := in.Reg(5), int(in.U8(6))
			for j := 0; j < argc && err == nil; j++ {
				err = needInt(in, base+j)
			}
		case bytecode.RET:
			if k := st[in.Reg(0)]; !k.single() || k&(KInt|KBool) == 0 {
				err = mismatch(in, "returns %s", k)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if !result.single() {
		return nil, fmt.Errorf("%s: result kinds %s: %w", fn.Name, result, vmerrors.ErrJKindMismatch)
	}
	return info, nil
}
