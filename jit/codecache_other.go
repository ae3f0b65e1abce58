//go:build !linux || !amd64
// +build !linux !amd64

package jit

import (
	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

func mapExec(size int) ([]byte, error) {
	log.Error(log.JITModule, "native code cache is not supported on this platform")
	return nil, vmerrors.ErrJUnsupported
}

func unmapExec(mem []byte) error {
	return nil
}
