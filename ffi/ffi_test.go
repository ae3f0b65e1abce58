package ffi

import (
	"testing"

	"github.com/colorfulnotion/bpvm/gc"
	"github.com/colorfulnotion/bpvm/value"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry()
	r.Register(9, "sum", func(args []value.Value) (value.Value, error) {
		var s int64
		for _, a := range args {
			s += a.I
		}
		return value.Int(s), nil
	})
	v, err := r.Invoke(9, []value.Value{value.Int(2), value.Int(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.I)

	_, err = r.Invoke(10, nil)
	assert.ErrorIs(t, err, vmerrors.ErrEBadExtern)
}

func TestHostRegistry(t *testing.T) {
	h := gc.NewHeap(0)
	r := NewHostRegistry(h, []string{"a", "b"})
	assert.Equal(t, []string{"1:pid", "2:num_cpu", "3:hostname", "4:args"}, r.Names())

	v, err := r.Invoke(HOST_ARGS, nil)
	require.NoError(t, err)
	assert.Equal(t, "[a, b]", v.String())

	v, err = r.Invoke(HOST_NUM_CPU, nil)
	require.NoError(t, err)
	assert.Greater(t, v.I, int64(0))
}
