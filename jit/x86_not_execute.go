//go:build !linux || !amd64 || !cgo
// +build !linux !amd64 !cgo

package jit

import "github.com/colorfulnotion/bpvm/log"

const nativeSupported = false

func callNative(entry uintptr, window []int64) int64 {
	log.Error(log.JITModule, "native execution is not supported on this platform")
	return 0
}
