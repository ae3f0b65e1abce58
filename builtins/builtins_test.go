package builtins

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, out *bytes.Buffer, in string) (*Registry, *gc.Heap) {
	t.Helper()
	heap := gc.NewHeap(0)
	r := NewRegistry(heap,
		WithStdout(out),
		WithStdin(strings.NewReader(in)),
		WithSleep(func(time.Duration) {}),
		WithClock(func() time.Time { return time.UnixMilli(1700000000123) }),
	)
	return r, heap
}

func call(t *testing.T, r *Registry, id uint16, args ...value.Value) value.Value {
	t.Helper()
	v, err := r.Call(id, args)
	require.NoError(t, err, r.Name(id))
	return v
}

func TestPrintAndToStr(t *testing.T) {
	var out bytes.Buffer
	r, h := newTestRegistry(t, &out, "")
	call(t, r, PRINT, value.Int(1), h.NewStr("a"), value.Float(2.5), value.Bool(false), value.Null())
	assert.Equal(t, "1 a 2.5 false null\n", out.String())
	assert.Equal(t, "42", call(t, r, TO_STR, value.Int(42)).Str())
}

func TestStringBuiltins(t *testing.T) {
	var out bytes.Buffer
	r, h := newTestRegistry(t, &out, "first line\r\nsecond")
	s := h.NewStr("  Hello, World  ")

	cases := []struct {
		name string
		id   uint16
		args []value.Value
		want string
	}{
		{"trim", STR_TRIM, []value.Value{s}, "Hello, World"},
		{"upper", STR_UPPER, []value.Value{h.NewStr("abC1")}, "ABC1"},
		{"lower", STR_LOWER, []value.Value{h.NewStr("AbC1")}, "abc1"},
		{"substr", SUBSTR, []value.Value{h.NewStr("abcdef"), value.Int(2), value.Int(100)}, "cdef"},
		{"substr clamps start", SUBSTR, []value.Value{h.NewStr("abc"), value.Int(9), value.Int(1)}, ""},
		{"replace first", STR_REPLACE, []value.Value{h.NewStr("a-b-c"), h.NewStr("-"), h.NewStr("+")}, "a+b-c"},
		{"chr", CHR, []value.Value{value.Int(65)}, "A"},
		{"b64 enc", BASE64_ENCODE, []value.Value{h.NewStr("hi!?")}, "aGkhPw=="},
		{"b64 dec", BASE64_DECODE, []value.Value{h.NewStr("aGkhPw==")}, "hi!?"},
		{"read_line", READ_LINE, nil, "first line"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, call(t, r, c.id, c.args...).Str())
		})
	}
	assert.Equal(t, "second", call(t, r, READ_LINE).Str())
	assert.Equal(t, "", call(t, r, READ_LINE).Str())

	assert.Equal(t, int64(7), call(t, r, STR_FIND, h.NewStr("Hello, World"), h.NewStr("World")).I)
	assert.Equal(t, int64(-1), call(t, r, STR_FIND, h.NewStr("abc"), h.NewStr("z")).I)
	assert.True(t, call(t, r, STR_STARTS_WITH, h.NewStr("abc"), h.NewStr("ab")).AsBool())
	assert.False(t, call(t, r, STR_ENDS_WITH, h.NewStr("abc"), h.NewStr("ab")).AsBool())
	assert.Equal(t, int64(97), call(t, r, ORD, h.NewStr("a")).I)
	assert.Equal(t, int64(3), call(t, r, LEN, h.NewStr("abc")).I)

	parts := call(t, r, STR_SPLIT, h.NewStr("a,b,,c"), h.NewStr(","))
	assert.Equal(t, "[a, b, , c]", parts.String())
	assert.Equal(t, int64(4), call(t, r, LEN, parts).I)
	assert.Equal(t, "a;b;;c", call(t, r, STR_JOIN, parts, h.NewStr(";")).Str())
}

func TestMathBuiltins(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRegistry(t, &out, "")
	assert.Equal(t, int64(5), call(t, r, ABS, value.Int(-5)).I)
	assert.Equal(t, int64(-2), call(t, r, MIN, value.Int(3), value.Int(-2)).I)
	assert.Equal(t, int64(3), call(t, r, MAX, value.Int(3), value.Int(-2)).I)
	assert.Equal(t, int64(1024), call(t, r, POW, value.Int(2), value.Int(10)).I)
	assert.Equal(t, int64(4), call(t, r, SQRT, value.Int(17)).I)
	assert.Equal(t, int64(9), call(t, r, ROUND, value.Int(9)).I)
	assert.Equal(t, int64(1700000000123), call(t, r, CLOCK_MS).I)

	call(t, r, RAND_SEED, value.Int(1))
	first := call(t, r, RAND).I
	call(t, r, RAND_SEED, value.Int(1))
	assert.Equal(t, first, call(t, r, RAND).I)
	v := call(t, r, RAND_RANGE, value.Int(10), value.Int(20)).I
	assert.True(t, v >= 10 && v < 20)
}

func TestFileBuiltins(t *testing.T) {
	var out bytes.Buffer
	r, h := newTestRegistry(t, &out, "")
	path := h.NewStr(filepath.Join(t.TempDir(), "f.txt"))

	assert.False(t, call(t, r, FILE_EXISTS, path).AsBool())
	assert.True(t, call(t, r, FILE_WRITE, path, h.NewStr("ab")).AsBool())
	assert.True(t, call(t, r, FILE_APPEND, path, h.NewStr("cd")).AsBool())
	assert.Equal(t, "abcd", call(t, r, FILE_READ, path).Str())
	assert.True(t, call(t, r, FILE_DELETE, path).AsBool())
	assert.Equal(t, "", call(t, r, FILE_READ, path).Str())
}

func TestExitAndErrors(t *testing.T) {
	var out bytes.Buffer
	r, h := newTestRegistry(t, &out, "")
	code := -1
	r.SetExit(func(c int) { code = c })
	call(t, r, EXIT, value.Int(3))
	assert.Equal(t, 3, code)

	_, err := r.Call(200, nil)
	assert.ErrorIs(t, err, vmerrors.ErrEBadBuiltin)

	_, err = r.Call(SUBSTR, []value.Value{h.NewStr("x"), value.Int(1)})
	assert.ErrorIs(t, err, vmerrors.ErrETypeMismatch)
	assert.Contains(t, err.Error(), "substr expects (str,int,int)")

	_, err = r.Call(CHR, []value.Value{value.Int(300)})
	assert.ErrorIs(t, err, vmerrors.ErrETypeMismatch)
	assert.Equal(t, uint64(1), r.Calls()[EXIT])
}
