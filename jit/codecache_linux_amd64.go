//go:build linux && amd64
// +build linux,amd64

package jit

import (
	"fmt"
	"syscall"
)

func mapExec(size int) ([]byte, error) {
	mem, err := syscall.Mmap(
		-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC,
		syscall.MAP_ANON|syscall.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap code cache: %w", err)
	}
	return mem, nil
}

func unmapExec(mem []byte) error {
	return syscall.Munmap(mem)
}
