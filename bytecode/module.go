package bytecode

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/vmerrors"
	"golang.org/x/crypto/blake2b"
)

// Format tags the encoding of a function body.
type Format uint8

const (
	FormatStack    Format = 0 // legacy stack bytecode, not executable here
	FormatRegister Format = 1
)

func (f Format) String() string {
	switch f {
	case FormatStack:
		return "stack"
	case FormatRegister:
		return "register"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Function is one compiled unit of register bytecode.
type Function struct {
	Name     string
	Arity    uint16
	RegCount uint16
	// StrConstIDs maps a function-local string-constant id to an index in the
	// module string pool.
	StrConstIDs []uint32
	Code        []byte
	Format      Format
}

// ClassType describes a class: its field count, its optional parent and the
// function index implementing each method id.
type ClassType struct {
	Name       string
	FieldCount uint16
	Parent     int32 // -1 when the class has no parent
	Methods    []uint32
}

// Module is a loaded program: string pool, function table, entry index and
// optional class table.
type Module struct {
	Legacy    bool // loaded from a BPC0 container
	Strings   []string
	Functions []*Function
	Entry     uint32
	Classes   []*ClassType
}

// EntryFunction returns the function execution starts in.
func (m *Module) EntryFunction() (*Function, error) {
	if int(m.Entry) >= len(m.Functions) {
		return nil, fmt.Errorf("entry %d of %d: %w", m.Entry, len(m.Functions), vmerrors.ErrLBadEntry)
	}
	return m.Functions[m.Entry], nil
}

// String resolves a function-local string-constant id.
func (m *Module) String(fn *Function, id uint32) (string, error) {
	if int(id) >= len(fn.StrConstIDs) {
		return "", fmt.Errorf("%s: local string %d: %w", fn.Name, id, vmerrors.ErrEBadStringConst)
	}
	idx := fn.StrConstIDs[id]
	if int(idx) >= len(m.Strings) {
		return "", fmt.Errorf("%s: pool string %d: %w", fn.Name, idx, vmerrors.ErrEBadStringConst)
	}
	return m.Strings[idx], nil
}

// FunctionIndex returns the index of the named function or -1.
func (m *Module) FunctionIndex(name string) int {
	for i, fn := range m.Functions {
		if fn.Name == name {
			return i
		}
	}
	return -1
}

// Fingerprint is the blake2b-256 digest of the encoded module. Persisted
// profiles are keyed by it so an edited module never inherits stale counts.
func (m *Module) Fingerprint() [32]byte {
	return blake2b.Sum256(Encode(m))
}
