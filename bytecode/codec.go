package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/colorfulnotion/bpvm/vmerrors"
)

const (
	MagicRegister = "BPR1"
	MagicLegacy   = "BPC0"
	Version       = 1
)

type reader struct {
	buf []byte
	off int
}

func (r *reader) need(n int, what string) error {
	if n < 0 || r.off+n > len(r.buf) {
		return fmt.Errorf("%s at offset %d needs %d bytes, have %d: %w", what, r.off, n, len(r.buf)-r.off, vmerrors.ErrLTruncated)
	}
	return nil
}

func (r *reader) u8(what string) (uint8, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n uint32, what string) ([]byte, error) {
	if err := r.need(int(n), what); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:])
	r.off += int(n)
	return out, nil
}

func (r *reader) str(what string) (string, error) {
	n, err := r.u32(what + " length")
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n, what)
	return string(b), err
}

// Decode parses a module image. Both BPR1 and legacy BPC0 containers are
// accepted; legacy functions load but are refused by the interpreter.
func Decode(data []byte) (*Module, error) {
	r := &reader{buf: data}
	magic, err := r.bytes(4, "magic")
	if err != nil {
		return nil, err
	}
	m := &Module{}
	switch string(magic) {
	case MagicRegister:
	case MagicLegacy:
		m.Legacy = true
	default:
		return nil, fmt.Errorf("magic %q: %w", magic, vmerrors.ErrLBadMagic)
	}
	version, err := r.u32("version")
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("version %d: %w", version, vmerrors.ErrLUnsupportedVersion)
	}
	if m.Entry, err = r.u32("entry"); err != nil {
		return nil, err
	}

	nstr, err := r.u32("string count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nstr; i++ {
		s, err := r.str(fmt.Sprintf("string %d", i))
		if err != nil {
			return nil, err
		}
		m.Strings = append(m.Strings, s)
	}

	nfn, err := r.u32("function count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nfn; i++ {
		fn, err := decodeFunction(r, i)
		if err != nil {
			return nil, err
		}
		m.Functions = append(m.Functions, fn)
	}
	if int(m.Entry) >= len(m.Functions) {
		return nil, fmt.Errorf("entry %d of %d functions: %w", m.Entry, len(m.Functions), vmerrors.ErrLBadEntry)
	}

	// Optional class table.
	if r.off < len(r.buf) {
		ncls, err := r.u32("class count")
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < ncls; i++ {
			ct := &ClassType{}
			if ct.Name, err = r.str("class name"); err != nil {
				return nil, err
			}
			if ct.FieldCount, err = r.u16("field count"); err != nil {
				return nil, err
			}
			parent, err := r.u32("class parent")
			if err != nil {
				return nil, err
			}
			ct.Parent = int32(parent)
			nm, err := r.u32("method count")
			if err != nil {
				return nil, err
			}
			for j := uint32(0); j < nm; j++ {
				idx, err := r.u32("method")
				if err != nil {
					return nil, err
				}
				ct.Methods = append(ct.Methods, idx)
			}
			m.Classes = append(m.Classes, ct)
		}
	}
	return m, nil
}

func decodeFunction(r *reader, i uint32) (*Function, error) {
	fn := &Function{}
	var err error
	if fn.Name, err = r.str(fmt.Sprintf("function %d name", i)); err != nil {
		return nil, err
	}
	if fn.Arity, err = r.u16(fn.Name + " arity"); err != nil {
		return nil, err
	}
	if fn.RegCount, err = r.u16(fn.Name + " reg_count"); err != nil {
		return nil, err
	}
	nconst, err := r.u32(fn.Name + " string constants")
	if err != nil {
		return nil, err
	}
	if err := r.need(int(nconst)*4, fn.Name+" string constants"); err != nil {
		return nil, err
	}
	fn.StrConstIDs = make([]uint32, nconst)
	for j := range fn.StrConstIDs {
		fn.StrConstIDs[j], _ = r.u32("")
	}
	ncode, err := r.u32(fn.Name + " code length")
	if err != nil {
		return nil, err
	}
	if fn.Code, err = r.bytes(ncode, fn.Name+" code"); err != nil {
		return nil, err
	}
	tag, err := r.u8(fn.Name + " format")
	if err != nil {
		return nil, err
	}
	switch Format(tag) {
	case FormatStack, FormatRegister:
		fn.Format = Format(tag)
	default:
		return nil, fmt.Errorf("%s format %d: %w", fn.Name, tag, vmerrors.ErrLBadFormat)
	}
	return fn, nil
}

// Encode serialises m. The class table is written only when m has classes.
func Encode(m *Module) []byte {
	var b bytes.Buffer
	if m.Legacy {
		b.WriteString(MagicLegacy)
	} else {
		b.WriteString(MagicRegister)
	}
	putU32(&b, Version)
	putU32(&b, m.Entry)
	putU32(&b, uint32(len(m.Strings)))
	for _, s := range m.Strings {
		putStr(&b, s)
	}
	putU32(&b, uint32(len(m.Functions)))
	for _, fn := range m.Functions {
		putStr(&b, fn.Name)
		putU16(&b, fn.Arity)
		putU16(&b, fn.RegCount)
		putU32(&b, uint32(len(fn.StrConstIDs)))
		for _, id := range fn.StrConstIDs {
			putU32(&b, id)
		}
		putU32(&b, uint32(len(fn.Code)))
		b.Write(fn.Code)
		b.WriteByte(byte(fn.Format))
	}
	if len(m.Classes) > 0 {
		putU32(&b, uint32(len(m.Classes)))
		for _, ct := range m.Classes {
			putStr(&b, ct.Name)
			putU16(&b, ct.FieldCount)
			putU32(&b, uint32(ct.Parent))
			putU32(&b, uint32(len(ct.Methods)))
			for _, idx := range ct.Methods {
				putU32(&b, idx)
			}
		}
	}
	return b.Bytes()
}

func putU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func putU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func putStr(b *bytes.Buffer, s string) {
	putU32(b, uint32(len(s)))
	b.WriteString(s)
}

// ReadFile loads and decodes a module from path.
func ReadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteFile encodes m to path.
func WriteFile(path string, m *Module) error {
	return os.WriteFile(path, Encode(m), 0o644)
}
