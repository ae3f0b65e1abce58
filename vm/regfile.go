package vm

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

const (
	DefaultInitialRegisters = 4096
	MaxRegisters            = 1 << 24

	// regSlack keeps every 8-bit register operand inside the slice even when
	// a body names a register past its declared count.
	regSlack = 256
)

// RegisterFile is the flat value array all frames share. Frames address it
// by (base, offset) only, since growth replaces the backing slice.
type RegisterFile struct {
	vals []value.Value
}

func NewRegisterFile(initial int) *RegisterFile {
	if initial <= 0 {
		initial = DefaultInitialRegisters
	}
	return &RegisterFile{vals: make([]value.Value, initial+regSlack)}
}

// Cap is the number of usable registers before the next growth.
func (rf *RegisterFile) Cap() int { return len(rf.vals) - regSlack }

// Ensure grows the file by doubling until needed registers fit.
func (rf *RegisterFile) Ensure(needed int) error {
	if needed <= rf.Cap() {
		return nil
	}
	if needed > MaxRegisters {
		return fmt.Errorf("need %d registers, limit %d: %w", needed, MaxRegisters, vmerrors.ErrERegisterFileExhaust)
	}
	n := rf.Cap()
	for n < needed {
		n *= 2
	}
	if n > MaxRegisters {
		n = MaxRegisters
	}
	vals := make([]value.Value, n+regSlack)
	copy(vals, rf.vals)
	rf.vals = vals
	return nil
}

func (rf *RegisterFile) Get(base, off int) value.Value { return rf.vals[base+off] }

func (rf *RegisterFile) Set(base, off int, v value.Value) { rf.vals[base+off] = v }

// Window returns registers [base, base+n). The slice is only valid until the
// next Ensure.
func (rf *RegisterFile) Window(base, n int) []value.Value {
	return rf.vals[base : base+n]
}
