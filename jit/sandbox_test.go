//go:build unicorn
// +build unicorn

package jit

import (
	"testing"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmulateFib(t *testing.T) {
	body, err := Compile(fibModule(t).Functions[0], 0)
	require.NoError(t, err)
	rax, status, err := Emulate(body, []int64{10}, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(StatusOK), status)
	assert.Equal(t, int64(55), rax)

	_, status, err = Emulate(body, []int64{10}, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(StatusStackOverflow), status)
}

func TestEmulateDivide(t *testing.T) {
	body, err := Compile(arithModule(t, bytecode.DIV_I64).Functions[0], 0)
	require.NoError(t, err)
	rax, status, err := Emulate(body, []int64{-9, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(StatusOK), status)
	assert.Equal(t, int64(-4), rax)

	_, status, err = Emulate(body, []int64{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(StatusDivByZero), status)
}
