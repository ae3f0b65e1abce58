package jit

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeBufferForwardAndBackward(t *testing.T) {
	cb := NewCodeBuffer()
	top := cb.NewLabel()
	end := cb.NewLabel()
	cb.Bind(top)
	cb.Emit(0x90)
	cb.Jcc8(X86_CC_E, end) // 0x01..0x02
	cb.Jmp32(top)          // 0x03..0x07
	cb.Bind(end)
	cb.Emit(emitRet()...)
	require.NoError(t, cb.Resolve())

	code := cb.Bytes()
	assert.Equal(t, byte(X86_OP_JCC_REL8+X86_CC_E), code[1])
	assert.Equal(t, byte(5), code[2])
	assert.Equal(t, byte(X86_OP_JMP_REL32), code[3])
	assert.Equal(t, int32(-8), int32(binary.LittleEndian.Uint32(code[4:])))
	assert.Equal(t, 8, cb.Bound(end))
}

func TestCodeBufferCall(t *testing.T) {
	cb := NewCodeBuffer()
	entry := cb.NewLabel()
	cb.Bind(entry)
	cb.Emit(0x90, 0x90)
	cb.Call32(entry)
	require.NoError(t, cb.Resolve())
	assert.Equal(t, int32(-7), int32(binary.LittleEndian.Uint32(cb.Bytes()[3:])))
}

func TestCodeBufferUndefinedLabel(t *testing.T) {
	cb := NewCodeBuffer()
	cb.Jmp32(cb.NewLabel())
	assert.ErrorIs(t, cb.Resolve(), vmerrors.ErrJUndefinedLabel)
}

func TestCodeBufferRel8Overflow(t *testing.T) {
	cb := NewCodeBuffer()
	far := cb.NewLabel()
	cb.Jmp8(far)
	for i := 0; i < 200; i++ {
		cb.Emit(0x90)
	}
	cb.Bind(far)
	assert.ErrorIs(t, cb.Resolve(), vmerrors.ErrJRel8Overflow)
}

func TestCodeBufferRel32Overflow(t *testing.T) {
	cb := NewCodeBuffer()
	far := cb.NewLabel()
	cb.Jmp32(far)
	cb.labels[far] = math.MaxInt32 + 64
	assert.ErrorIs(t, cb.Resolve(), vmerrors.ErrJRel32Overflow)
}
