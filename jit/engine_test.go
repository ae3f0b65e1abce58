package jit

import (
	"context"
	"testing"

	"github.com/colorfulnotion/bpvm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConcatNeverCompiles(t *testing.T) {
	m := concatModule(t)
	e := NewEngine(Config{Enabled: true, Threshold: 2})
	defer e.Close()

	for i := 0; i < 5; i++ {
		_, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], nil, 0, 64)
		require.NoError(t, err)
		assert.False(t, handled)
	}
	pr := e.Profiler().Profile(0)
	assert.Equal(t, Failed, pr.State)
	assert.Equal(t, []State{Cold, Warm, Hot, Compiling, Failed}, pr.History)
	assert.Zero(t, pr.Native)

	st := e.Stats()
	assert.Equal(t, uint64(1), st.FailedCompilations)
	assert.Zero(t, st.TotalCompilations)
	assert.Equal(t, uint64(5), st.InterpExecutions)
	assert.Zero(t, st.NativeExecutions)
	_, ok := e.Body(0)
	assert.False(t, ok)
	_, err := e.Disassemble(0)
	assert.Error(t, err)
}

func TestEngineDisabled(t *testing.T) {
	m := fibModule(t)
	e := NewEngine(Config{Enabled: false, Threshold: 1})
	defer e.Close()
	assert.False(t, e.Native())

	_, handled, err := e.OnCall(context.Background(), 0, m.Functions[0], []value.Value{value.Int(3)}, 0, 64)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, e.Stats().TotalExecutions)
}
