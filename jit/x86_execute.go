//go:build linux && amd64 && cgo
// +build linux,amd64,cgo

package jit

/*
#cgo CFLAGS: -Wall
#include <stdint.h>

typedef int64_t (*bpvm_native_fn)(int64_t *window);

static int64_t bpvm_call_native(uintptr_t fn, int64_t *window) {
	return ((bpvm_native_fn)fn)(window);
}
*/
import "C"
import (
	"runtime"
	"unsafe"
)

const nativeSupported = true

// callNative runs the body at entry against window and returns rax.
func callNative(entry uintptr, window []int64) int64 {
	runtime.LockOSThread()
	r := C.bpvm_call_native(C.uintptr_t(entry), (*C.int64_t)(unsafe.Pointer(&window[0])))
	runtime.UnlockOSThread()
	return int64(r)
}
