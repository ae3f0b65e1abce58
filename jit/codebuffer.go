package jit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/colorfulnotion/bpvm/vmerrors"
)

// Label identifies a position in a CodeBuffer that jumps can reference
// before it is bound.
type Label int

type fixup struct {
	at    int // offset of the displacement field
	size  int // 1 or 4
	label Label
}

// CodeBuffer is a growable machine-code buffer with label fixups.
type CodeBuffer struct {
	code   []byte
	labels []int // bound offset per label, -1 while unbound
	fixups []fixup
}

func NewCodeBuffer() *CodeBuffer {
	return &CodeBuffer{code: make([]byte, 0, 256)}
}

func (cb *CodeBuffer) Len() int      { return len(cb.code) }
func (cb *CodeBuffer) Bytes() []byte { return cb.code }

func (cb *CodeBuffer) Emit(b ...byte) {
	cb.code = append(cb.code, b...)
}

func (cb *CodeBuffer) NewLabel() Label {
	cb.labels = append(cb.labels, -1)
	return Label(len(cb.labels) - 1)
}

// Bind places l at the current offset.
func (cb *CodeBuffer) Bind(l Label) {
	cb.labels[l] = len(cb.code)
}

// Bound reports the offset of l, or -1.
func (cb *CodeBuffer) Bound(l Label) int {
	return cb.labels[l]
}

func (cb *CodeBuffer) ref(l Label, size int) {
	cb.fixups = append(cb.fixups, fixup{at: len(cb.code), size: size, label: l})
	for i := 0; i < size; i++ {
		cb.code = append(cb.code, 0)
	}
}

// Jmp32 emits jmp rel32 to l.
func (cb *CodeBuffer) Jmp32(l Label) {
	cb.Emit(X86_OP_JMP_REL32)
	cb.ref(l, 4)
}

// Jmp8 emits jmp rel8 to l.
func (cb *CodeBuffer) Jmp8(l Label) {
	cb.Emit(X86_OP_JMP_REL8)
	cb.ref(l, 1)
}

// Jcc32 emits a conditional rel32 jump to l.
func (cb *CodeBuffer) Jcc32(cc byte, l Label) {
	cb.Emit(X86_PREFIX_0F, X86_OP2_JCC+cc)
	cb.ref(l, 4)
}

// Jcc8 emits a conditional rel8 jump to l.
func (cb *CodeBuffer) Jcc8(cc byte, l Label) {
	cb.Emit(X86_OP_JCC_REL8 + cc)
	cb.ref(l, 1)
}

// Call32 emits call rel32 to l.
func (cb *CodeBuffer) Call32(l Label) {
	cb.Emit(X86_OP_CALL_REL32)
	cb.ref(l, 4)
}

// Resolve patches every fixup. Displacements are relative to the end of the
// displacement field.
func (cb *CodeBuffer) Resolve() error {
	for _, f := range cb.fixups {
		target := cb.labels[f.label]
		if target < 0 {
			return fmt.Errorf("label %d referenced at 0x%x: %w", f.label, f.at, vmerrors.ErrJUndefinedLabel)
		}
		disp := int64(target) - int64(f.at+f.size)
		switch f.size {
		case 1:
			if disp < math.MinInt8 || disp > math.MaxInt8 {
				return fmt.Errorf("rel8 %d at 0x%x: %w", disp, f.at, vmerrors.ErrJRel8Overflow)
			}
			cb.code[f.at] = byte(int8(disp))
		case 4:
			if disp < math.MinInt32 || disp > math.MaxInt32 {
				return fmt.Errorf("rel32 %d at 0x%x: %w", disp, f.at, vmerrors.ErrJRel32Overflow)
			}
			binary.LittleEndian.PutUint32(cb.code[f.at:], uint32(int32(disp)))
		}
	}
	return nil
}
