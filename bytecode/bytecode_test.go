package bytecode

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) *Module {
	t.Helper()
	mb := NewModuleBuilder()
	main := mb.Func("main", 0, 4)
	add := mb.Func("add", 2, 3)
	add.Binary(ADD_I64, 2, 0, 1).Ret(2)

	main.ConstI64(1, 7).ConstI64(2, 3).
		Call(0, add.Index, 1, 2).
		ConstStr(3, "done").
		ConstStr(3, "done").
		JmpIfFalse(0, "end").
		Ret(0).
		Label("end")
	mb.Class("Point", 2, -1, add.Index)
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}

func TestEncodeDecodeModule(t *testing.T) {
	m := buildSample(t)
	img := Encode(m)
	assert.Equal(t, MagicRegister, string(img[:4]))

	got, err := Decode(img)
	require.NoError(t, err)
	assert.Equal(t, m.Strings, got.Strings)
	assert.Equal(t, []string{"done"}, got.Strings)
	require.Len(t, got.Functions, 2)
	assert.Equal(t, m.Functions[0].Code, got.Functions[0].Code)
	assert.Equal(t, []uint32{0}, got.Functions[0].StrConstIDs, "repeated constants share one local id")
	assert.Equal(t, FormatRegister, got.Functions[1].Format)
	require.Len(t, got.Classes, 1)
	assert.Equal(t, int32(-1), got.Classes[0].Parent)
	assert.Equal(t, m.Fingerprint(), got.Fingerprint())
}

func TestDecodeErrors(t *testing.T) {
	img := Encode(buildSample(t))

	bad := append([]byte("XXXX"), img[4:]...)
	_, err := Decode(bad)
	assert.ErrorIs(t, err, vmerrors.ErrLBadMagic)

	ver := append([]byte{}, img...)
	ver[4] = 2
	_, err = Decode(ver)
	assert.ErrorIs(t, err, vmerrors.ErrLUnsupportedVersion)

	for _, n := range []int{3, 10, 20, len(img) - 1} {
		_, err = Decode(img[:n])
		assert.Error(t, err, "truncated to %d", n)
	}
	_, err = Decode(img[:20])
	assert.ErrorIs(t, err, vmerrors.ErrLTruncated)

	entry := append([]byte{}, img...)
	entry[8] = 9
	_, err = Decode(entry)
	assert.ErrorIs(t, err, vmerrors.ErrLBadEntry)
}

func TestLegacyContainer(t *testing.T) {
	m := &Module{Legacy: true, Functions: []*Function{{Name: "old", Code: []byte{1, 2, 3}, Format: FormatStack}}}
	got, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.True(t, got.Legacy)
	assert.Equal(t, FormatStack, got.Functions[0].Format)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bpr")
	m := buildSample(t)
	require.NoError(t, WriteFile(path, m))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FunctionIndex("add"))
	assert.Equal(t, -1, got.FunctionIndex("missing"))
}

func TestOperandLengths(t *testing.T) {
	assert.Equal(t, 9, OperandLength(CONST_I64))
	assert.Equal(t, 0, OperandLength(TRY_END))
	assert.Equal(t, 9, OperandLength(TRY_BEGIN))
	assert.Equal(t, 7, OperandLength(CALL))
	assert.Equal(t, -1, OperandLength(0xff))
	assert.Equal(t, "UNKNOWN", Name(0xff))
	assert.True(t, IsJump(JMP_IF_TRUE))
}

func TestWalkAndDisassemble(t *testing.T) {
	m := buildSample(t)
	main := m.Functions[0]

	var ops []string
	require.NoError(t, Walk(main.Code, func(in Instruction) error {
		ops = append(ops, Name(in.Op))
		if tgt, ok := in.JumpTarget(); ok {
			assert.Equal(t, len(main.Code), tgt)
		}
		return nil
	}))
	assert.Equal(t, []string{"CONST_I64", "CONST_I64", "CALL", "CONST_STR", "CONST_STR", "JMP_IF_FALSE", "RET"}, ops)

	out := Disassemble(main, m)
	assert.Contains(t, out, "0x0000: CONST_I64")
	assert.Contains(t, out, `r3, "done"`)
	assert.Contains(t, out, "r0, add, r1, 2")

	// Truncated body surfaces a decode error at the end of the listing.
	broken := &Function{Name: "broken", Format: FormatRegister, Code: []byte{CONST_I64, 0, 1}}
	assert.True(t, strings.HasSuffix(strings.TrimSpace(Disassemble(broken, nil)), "bytes: "+vmerrors.ErrLTruncated.Error()))

	_, err := DecodeAt([]byte{0xee}, 0)
	assert.True(t, errors.Is(err, vmerrors.ErrEBadOpcode))
}

func TestUndefinedLabel(t *testing.T) {
	mb := NewModuleBuilder()
	mb.Func("main", 0, 1).Jmp("nowhere")
	_, err := mb.Build()
	assert.ErrorIs(t, err, vmerrors.ErrJUndefinedLabel)
}

func TestStringResolution(t *testing.T) {
	m := buildSample(t)
	s, err := m.String(m.Functions[0], 0)
	require.NoError(t, err)
	assert.Equal(t, "done", s)
	_, err = m.String(m.Functions[0], 5)
	assert.ErrorIs(t, err, vmerrors.ErrEBadStringConst)
}
