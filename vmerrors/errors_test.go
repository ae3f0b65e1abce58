package vmerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorParts(t *testing.T) {
	wrapped := fmt.Errorf("ARRAY_GET at 0x0012: %w", ErrEIndexOutOfBounds)

	assert.Equal(t, "E7", GetErrorCode(ErrEIndexOutOfBounds))
	assert.Equal(t, "IndexOutOfBounds", GetErrorName(ErrEIndexOutOfBounds))
	assert.Equal(t, "E7_IndexOutOfBounds", GetErrorCodeWithName(ErrEIndexOutOfBounds))
	assert.Equal(t, "Array index out of bounds.", GetErrorDesc(ErrEIndexOutOfBounds))
	assert.Equal(t, ErrEIndexOutOfBounds, Sentinel(wrapped))

	assert.Equal(t, "", GetErrorCode(nil))
	assert.Nil(t, Sentinel(fmt.Errorf("plain")))
	assert.Equal(t, []string{"Rel8Overflow", "CodeCacheFull"},
		GetErrorNames([]error{ErrJRel8Overflow, ErrJCodeCacheFull}))
}
