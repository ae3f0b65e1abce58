package storage

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoFuncModule(t *testing.T) *bytecode.Module {
	t.Helper()
	mb := bytecode.NewModuleBuilder()
	mb.Func("add", 2, 3).Binary(bytecode.ADD_I64, 2, 0, 1).Ret(2)
	mb.Func("greet", 0, 1).ConstStr(0, "hi").Ret(0)
	m, err := mb.Build()
	require.NoError(t, err)
	return m
}

// drive calls fn n times through the engine.
func drive(t *testing.T, e *jit.Engine, m *bytecode.Module, fn uint32, n int) {
	t.Helper()
	args := make([]value.Value, m.Functions[fn].Arity)
	for i := range args {
		args[i] = value.Int(int64(i + 1))
	}
	for i := 0; i < n; i++ {
		_, _, err := e.OnCall(context.Background(), fn, m.Functions[fn], args, 1, 64)
		require.NoError(t, err)
	}
}

func TestPersistenceStore(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, ps.Put([]byte("a/1"), []byte("x")))
	require.NoError(t, ps.PutBatch([][2][]byte{
		{[]byte("a/2"), []byte("y")},
		{[]byte("b/1"), []byte("z")},
	}))

	got, ok, err := ps.Get([]byte("a/2"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "y", string(got))

	_, ok, err = ps.Get([]byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	pairs, err := ps.GetWithPrefix([]byte("a/"))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a/1", string(pairs[0][0]))
	assert.Equal(t, "a/2", string(pairs[1][0]))

	require.NoError(t, ps.Delete([]byte("a/1")))
	pairs, err = ps.GetWithPrefix([]byte("a/"))
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}

func TestProfileStoreSaveLoad(t *testing.T) {
	m := twoFuncModule(t)
	e := jit.NewEngine(jit.Config{Enabled: true, Threshold: 4, CacheBytes: 1 << 16})
	defer e.Close()
	drive(t, e, m, 0, 6)
	drive(t, e, m, 1, 2)
	e.CompileTime[0] = 3 * time.Millisecond

	s, err := OpenProfileStore(filepath.Join(t.TempDir(), "profiles"))
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Save(e, m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := s.Load(m)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	add := recs["add"]
	assert.Equal(t, "add", add.Function)
	// counting stops at the threshold
	assert.Equal(t, uint64(4), add.Calls)
	assert.Contains(t, []string{"Compiled", "Failed"}, add.State)
	assert.Equal(t, int64(3*time.Millisecond), add.CompileNs)

	greet := recs["greet"]
	assert.Equal(t, uint64(2), greet.Calls)
	assert.Equal(t, "Warm", greet.State)

	// compile time accumulates across saves
	_, err = s.Save(e, m)
	require.NoError(t, err)
	recs, err = s.Load(m)
	require.NoError(t, err)
	assert.Equal(t, int64(6*time.Millisecond), recs["add"].CompileNs)
}

func TestProfileStoreKeyedByModule(t *testing.T) {
	m := twoFuncModule(t)
	other := bytecode.NewModuleBuilder()
	other.Func("add", 2, 3).Binary(bytecode.SUB_I64, 2, 0, 1).Ret(2)
	m2, err := other.Build()
	require.NoError(t, err)

	e := jit.NewEngine(jit.Config{Enabled: true, Threshold: 100})
	defer e.Close()
	drive(t, e, m, 0, 3)

	s, err := OpenProfileStore("")
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Save(e, m)
	require.NoError(t, err)

	recs, err := s.Load(m2)
	require.NoError(t, err)
	assert.Empty(t, recs)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	fp := m.Fingerprint()
	assert.Len(t, all[0].Module, 64)
	assert.Equal(t, hex.EncodeToString(fp[:]), all[0].Module)
	assert.Equal(t, "add", all[0].Function)
}

func TestProfileStoreWarm(t *testing.T) {
	m := twoFuncModule(t)
	first := jit.NewEngine(jit.Config{Enabled: true, Threshold: 100})
	defer first.Close()
	drive(t, first, m, 0, 10)

	s, err := OpenProfileStore("")
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Save(first, m)
	require.NoError(t, err)
	failed := `{"function":"greet","calls":10,"state":"Failed","compile_ns":5}`
	require.NoError(t, s.ps.Put(profileKey(m.Fingerprint(), "greet"), []byte(failed)))

	second := jit.NewEngine(jit.Config{Enabled: true, Threshold: 10})
	defer second.Close()
	n, err := s.Warm(second, m)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// greet failed to compile last time and stays cold
	assert.Equal(t, jit.Cold, second.Profiler().Profile(1).State)
	assert.Equal(t, jit.Hot, second.Profiler().Profile(0).State)
	assert.Zero(t, second.Stats().TotalExecutions)

	drive(t, second, m, 0, 1)
	assert.Contains(t, []jit.State{jit.Compiled, jit.Failed}, second.Profiler().Profile(0).State)
	assert.Equal(t, uint64(1), second.Stats().TotalExecutions)
}
