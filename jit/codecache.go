package jit

import (
	"fmt"
	"unsafe"

	"github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/vmerrors"
)

const DefaultCodeCacheBytes = 4 << 20

// CodeCache is a bump allocator over one executable region. Bodies are tagged
// with the generation they were allocated in; once every body of the current
// generation has been released the cursor rewinds and the generation
// advances, so a pointer from an older generation is never executed.
type CodeCache struct {
	mem    []byte
	cursor int
	gen    uint64
	live   int
}

// NewCodeCache maps a region of size bytes. It fails with ErrJUnsupported on
// platforms without native execution.
func NewCodeCache(size int) (*CodeCache, error) {
	if size <= 0 {
		size = DefaultCodeCacheBytes
	}
	mem, err := mapExec(size)
	if err != nil {
		return nil, err
	}
	log.Debug(log.JITModule, "code cache mapped", "bytes", size)
	return &CodeCache{mem: mem}, nil
}

// Alloc copies code into the region and returns its entry address.
func (cc *CodeCache) Alloc(code []byte) (uintptr, uint64, error) {
	size := (len(code) + 15) &^ 15
	if size == 0 || cc.cursor+size > len(cc.mem) {
		return 0, 0, fmt.Errorf("need %d bytes, %d of %d used: %w", size, cc.cursor, len(cc.mem), vmerrors.ErrJCodeCacheFull)
	}
	off := cc.cursor
	copy(cc.mem[off:], code)
	cc.cursor += size
	cc.live++
	return uintptr(unsafe.Pointer(&cc.mem[off])), cc.gen, nil
}

// Release marks one body of generation gen dead.
func (cc *CodeCache) Release(gen uint64) {
	if gen != cc.gen || cc.live == 0 {
		return
	}
	cc.live--
	if cc.live == 0 {
		log.Debug(log.JITModule, "code cache rewound", "generation", cc.gen, "reclaimed", cc.cursor)
		cc.cursor = 0
		cc.gen++
	}
}

// Valid reports whether a body from generation gen may still run.
func (cc *CodeCache) Valid(gen uint64) bool { return gen == cc.gen }

// Code returns the bytes of a body previously returned by Alloc.
func (cc *CodeCache) Code(ptr uintptr, size int) []byte {
	if len(cc.mem) == 0 {
		return nil
	}
	base := uintptr(unsafe.Pointer(&cc.mem[0]))
	if ptr < base || ptr+uintptr(size) > base+uintptr(len(cc.mem)) {
		return nil
	}
	off := int(ptr - base)
	return cc.mem[off : off+size]
}

func (cc *CodeCache) Used() int          { return cc.cursor }
func (cc *CodeCache) Size() int          { return len(cc.mem) }
func (cc *CodeCache) Generation() uint64 { return cc.gen }

func (cc *CodeCache) Close() error {
	if cc.mem == nil {
		return nil
	}
	err := unmapExec(cc.mem)
	cc.mem = nil
	if err != nil {
		return fmt.Errorf("code cache: %w", err)
	}
	return nil
}
