//go:build linux && amd64
// +build linux,amd64

package jit

import (
	"testing"

	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeCacheAlloc(t *testing.T) {
	cc, err := NewCodeCache(4096)
	require.NoError(t, err)
	defer cc.Close()

	p1, g1, err := cc.Alloc([]byte{0xC3})
	require.NoError(t, err)
	p2, g2, err := cc.Alloc([]byte{0x90, 0xC3})
	require.NoError(t, err)
	assert.Equal(t, uintptr(16), p2-p1)
	assert.Equal(t, g1, g2)
	assert.Equal(t, 32, cc.Used())
	assert.Equal(t, []byte{0x90, 0xC3}, cc.Code(p2, 2))
	assert.Nil(t, cc.Code(p1+8192, 1))

	cc.Release(g1)
	assert.True(t, cc.Valid(g1))
	cc.Release(g2)
	assert.False(t, cc.Valid(g1))
	assert.Zero(t, cc.Used())

	// stale releases do not disturb the new generation
	p3, g3, err := cc.Alloc([]byte{0xC3})
	require.NoError(t, err)
	assert.Equal(t, p1, p3)
	cc.Release(g1)
	assert.True(t, cc.Valid(g3))
	assert.Equal(t, 16, cc.Used())
}

func TestCodeCacheFull(t *testing.T) {
	cc, err := NewCodeCache(4096)
	require.NoError(t, err)
	defer cc.Close()

	_, _, err = cc.Alloc(make([]byte, 4000))
	require.NoError(t, err)
	_, _, err = cc.Alloc(make([]byte, 200))
	assert.ErrorIs(t, err, vmerrors.ErrJCodeCacheFull)
	assert.NoError(t, cc.Close())
	assert.NoError(t, cc.Close())
}
