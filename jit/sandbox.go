//go:build unicorn
// +build unicorn

package jit

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

const (
	sandboxPage      = 0x1000
	sandboxCodeBase  = 0x100000
	sandboxStackTop  = 0x400000
	sandboxStackSize = 0x100000
	sandboxWindow    = 0x500000
)

// Emulate runs a compiled body under unicorn instead of the code cache. It
// returns rax and the status slot. budget is the self-call depth budget.
func Emulate(body *CompiledBody, args []int64, budget int64) (int64, int64, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return 0, 0, fmt.Errorf("create unicorn: %w", err)
	}
	defer mu.Close()

	codeSize := uint64(len(body.Code)+1+sandboxPage-1) &^ (sandboxPage - 1)
	stop := uint64(sandboxCodeBase + len(body.Code))
	slots := WindowSlots(body.RegCount)
	winSize := uint64(8*slots+sandboxPage-1) &^ (sandboxPage - 1)

	regions := []struct{ addr, size uint64 }{
		{sandboxCodeBase, codeSize},
		{sandboxStackTop - sandboxStackSize, sandboxStackSize},
		{sandboxWindow, winSize},
	}
	for _, r := range regions {
		if err := mu.MemMap(r.addr, r.size); err != nil {
			return 0, 0, fmt.Errorf("map 0x%x: %w", r.addr, err)
		}
	}
	if err := mu.MemWrite(sandboxCodeBase, body.Code); err != nil {
		return 0, 0, fmt.Errorf("write code: %w", err)
	}

	window := make([]byte, 8*slots)
	for i, a := range args {
		binary.LittleEndian.PutUint64(window[8*i:], uint64(a))
	}
	binary.LittleEndian.PutUint64(window[8*(body.RegCount+1):], uint64(budget))
	if err := mu.MemWrite(sandboxWindow, window); err != nil {
		return 0, 0, fmt.Errorf("write window: %w", err)
	}

	// The body returns to stop, where emulation ends.
	rsp := uint64(sandboxStackTop - 16 - 8)
	if err := mu.MemWrite(rsp, binary.LittleEndian.AppendUint64(nil, stop)); err != nil {
		return 0, 0, fmt.Errorf("write return address: %w", err)
	}
	if err := mu.RegWrite(uc.X86_REG_RSP, rsp); err != nil {
		return 0, 0, fmt.Errorf("set RSP: %w", err)
	}
	if err := mu.RegWrite(uc.X86_REG_RDI, sandboxWindow); err != nil {
		return 0, 0, fmt.Errorf("set RDI: %w", err)
	}
	if err := mu.Start(sandboxCodeBase, stop); err != nil {
		return 0, 0, fmt.Errorf("emulation failed: %w", err)
	}

	rax, err := mu.RegRead(uc.X86_REG_RAX)
	if err != nil {
		return 0, 0, err
	}
	out, err := mu.MemRead(sandboxWindow, uint64(8*slots))
	if err != nil {
		return 0, 0, err
	}
	status := int64(binary.LittleEndian.Uint64(out[8*body.RegCount:]))
	return int64(rax), status, nil
}
