package value

import (
	"math"
	"unsafe"
)

// Header is carried by every heap object. Size is the accounted byte size
// the collector adds to its live total.
type Header struct {
	Marked bool
	Size   int
}

// Object is a heap-allocated payload.
type Object interface {
	Hdr() *Header
	// Trace calls visit for every value the object references.
	Trace(visit func(Value))
	// Resize recomputes the accounted size and returns it.
	Resize() int
}

var valueSize = int(unsafe.Sizeof(Value{}))

const headerSize = int(unsafe.Sizeof(Header{}))

type Str struct {
	Header
	S string
}

func (s *Str) Hdr() *Header { return &s.Header }
func (s *Str) Trace(func(Value)) {}
func (s *Str) Resize() int { s.Size = headerSize + 16 + len(s.S); return s.Size }

type Array struct {
	Header
	Elems []Value
}

func (a *Array) Hdr() *Header { return &a.Header }
func (a *Array) Trace(visit func(Value)) {
	for _, e := range a.Elems {
		visit(e)
	}
}
func (a *Array) Resize() int { a.Size = headerSize + 24 + cap(a.Elems)*valueSize; return a.Size }

func (a *Array) Len() int { return len(a.Elems) }

// Index normalises a negative index against the length and reports whether
// the result is in bounds.
func (a *Array) Index(i int64) (int, bool) {
	n := int64(len(a.Elems))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return int(i), true
}

func (a *Array) Get(i int64) (Value, bool) {
	idx, ok := a.Index(i)
	if !ok {
		return Value{}, false
	}
	return a.Elems[idx], true
}

func (a *Array) Set(i int64, v Value) bool {
	idx, ok := a.Index(i)
	if !ok {
		return false
	}
	a.Elems[idx] = v
	return true
}

func (a *Array) Push(v Value) {
	a.Elems = append(a.Elems, v)
	a.Resize()
}

type Struct struct {
	Header
	TypeID uint16
	Fields []Value
}

func (s *Struct) Hdr() *Header { return &s.Header }
func (s *Struct) Trace(visit func(Value)) {
	for _, f := range s.Fields {
		visit(f)
	}
}
func (s *Struct) Resize() int { s.Size = headerSize + 32 + len(s.Fields)*valueSize; return s.Size }

type Class struct {
	Header
	ClassID uint16
	Fields  []Value
}

func (c *Class) Hdr() *Header { return &c.Header }
func (c *Class) Trace(visit func(Value)) {
	for _, f := range c.Fields {
		visit(f)
	}
}
func (c *Class) Resize() int { c.Size = headerSize + 32 + len(c.Fields)*valueSize; return c.Size }

// mapKey is the comparable projection of a Value used to index a Map. Strings
// compare by content, containers by identity.
type mapKey struct {
	kind Kind
	bits uint64
	s    string
	ref  Object
}

func keyOf(v Value) mapKey {
	k := mapKey{kind: v.Kind}
	switch v.Kind {
	case KindInt, KindBool:
		k.bits = uint64(v.I)
	case KindFloat:
		f := v.F
		if f == 0 {
			f = 0 // fold -0 into +0
		}
		k.bits = math.Float64bits(f)
	case KindStr:
		k.s = v.Str()
	case KindPtr:
		k.bits = uint64(v.P)
	case KindNull:
	default:
		k.ref = v.Ref
	}
	return k
}

type MapEntry struct {
	Key Value
	Val Value
}

// Map keeps entries in insertion order.
type Map struct {
	Header
	entries []MapEntry
	index   map[mapKey]int
}

func NewMapObject() *Map {
	return &Map{index: make(map[mapKey]int)}
}

func (m *Map) Hdr() *Header { return &m.Header }
func (m *Map) Trace(visit func(Value)) {
	for _, e := range m.entries {
		visit(e.Key)
		visit(e.Val)
	}
}
func (m *Map) Resize() int {
	m.Size = headerSize + 64 + cap(m.entries)*2*valueSize + len(m.index)*48
	return m.Size
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Get(k Value) (Value, bool) {
	i, ok := m.index[keyOf(k)]
	if !ok {
		return Value{}, false
	}
	return m.entries[i].Val, true
}

func (m *Map) Has(k Value) bool {
	_, ok := m.index[keyOf(k)]
	return ok
}

// Set overwrites an existing key in place or appends a new entry.
func (m *Map) Set(k, v Value) {
	key := keyOf(k)
	if i, ok := m.index[key]; ok {
		m.entries[i].Val = v
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, MapEntry{Key: k, Val: v})
	m.Resize()
}

func (m *Map) Delete(k Value) bool {
	key := keyOf(k)
	i, ok := m.index[key]
	if !ok {
		return false
	}
	delete(m.index, key)
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	for j := i; j < len(m.entries); j++ {
		m.index[keyOf(m.entries[j].Key)] = j
	}
	return true
}

func (m *Map) Keys() []Value {
	out := make([]Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Key
	}
	return out
}

func (m *Map) Values() []Value {
	out := make([]Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Val
	}
	return out
}

func (m *Map) Entries() []MapEntry { return m.entries }
