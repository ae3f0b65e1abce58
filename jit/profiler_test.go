package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilerTransitions(t *testing.T) {
	p := NewProfiler(4)
	assert.Equal(t, Cold, p.RecordCall(7))
	assert.Equal(t, Warm, p.RecordCall(7))
	assert.Equal(t, Warm, p.RecordCall(7))
	assert.Equal(t, Hot, p.RecordCall(7))
	assert.True(t, p.ShouldCompile(7))

	p.BeginCompile(7)
	assert.Equal(t, Compiling, p.RecordCall(7))
	p.MarkFailed(7)
	assert.Equal(t, Failed, p.RecordCall(7))

	pr := p.Profile(7)
	assert.Equal(t, uint64(4), pr.Calls)
	assert.Equal(t, []State{Cold, Warm, Hot, Compiling, Failed}, pr.History)

	st := p.Stats()
	assert.Equal(t, uint64(6), st.TotalExecutions)
	assert.Equal(t, uint64(1), st.FailedCompilations)
	assert.Zero(t, st.TotalCompilations)
}

func TestProfilerCompiledAndInvalidate(t *testing.T) {
	p := NewProfiler(1)
	assert.Equal(t, Hot, p.RecordCall(0))
	p.BeginCompile(0)
	p.MarkCompiled(0, 0x1000, 64, 3)

	entry, gen, ok := p.nativeEntry(0)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1000), entry)
	assert.Equal(t, uint64(3), gen)
	assert.Equal(t, uint64(1), p.Stats().TotalCompilations)

	gen, size, had := p.Invalidate(0)
	assert.True(t, had)
	assert.Equal(t, uint64(3), gen)
	assert.Equal(t, 64, size)
	_, _, ok = p.nativeEntry(0)
	assert.False(t, ok)

	pr := p.Profile(0)
	assert.Equal(t, Cold, pr.State)
	assert.Zero(t, pr.Calls)
}

func TestProfilerSeed(t *testing.T) {
	p := NewProfiler(10)
	p.Seed(2, 6)
	assert.Equal(t, Warm, p.Profile(2).State)
	p.Seed(2, 3)
	assert.Equal(t, uint64(6), p.Profile(2).Calls)
	p.Seed(2, 10)
	assert.True(t, p.ShouldCompile(2))
	assert.Zero(t, p.Stats().TotalExecutions)
	assert.ElementsMatch(t, []uint32{2}, p.Functions())
}

func TestStateNames(t *testing.T) {
	for s := Cold; s <= Failed; s++ {
		got, ok := ParseState(s.String())
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseState("Lukewarm")
	assert.False(t, ok)
	assert.Equal(t, "State(9)", State(9).String())
}

func TestDefaultThreshold(t *testing.T) {
	assert.Equal(t, uint64(DefaultThreshold), NewProfiler(0).Threshold())
}
