package value

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindArray
	KindMap
	KindStruct
	KindClass
	KindPtr
)

var kindNames = [...]string{"null", "int", "float", "bool", "str", "array", "map", "struct", "class", "ptr"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsHeap reports whether values of kind k reference a heap object.
func (k Kind) IsHeap() bool {
	return k >= KindStr && k <= KindClass
}

// Value is the tagged register cell. Bool payloads are stored in I as 0 or 1.
// Heap kinds keep their object in Ref.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	P    uintptr
	Ref  Object
}

func Int(i int64) Value     { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func Null() Value           { return Value{} }
func Ptr(p uintptr) Value   { return Value{Kind: KindPtr, P: p} }

func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, I: 1}
	}
	return Value{Kind: KindBool}
}

// FromObject wraps a heap object in a value of the matching kind.
func FromObject(o Object) Value {
	switch o.(type) {
	case *Str:
		return Value{Kind: KindStr, Ref: o}
	case *Array:
		return Value{Kind: KindArray, Ref: o}
	case *Map:
		return Value{Kind: KindMap, Ref: o}
	case *Struct:
		return Value{Kind: KindStruct, Ref: o}
	case *Class:
		return Value{Kind: KindClass, Ref: o}
	}
	panic(fmt.Sprintf("value: unknown object %T", o))
}

func (v Value) AsBool() bool { return v.I != 0 }

// Str returns the string payload of a KindStr value.
func (v Value) Str() string { return v.Ref.(*Str).S }

func (v Value) Array() *Array   { return v.Ref.(*Array) }
func (v Value) Map() *Map       { return v.Ref.(*Map) }
func (v Value) Struct() *Struct { return v.Ref.(*Struct) }
func (v Value) Class() *Class   { return v.Ref.(*Class) }

// Truthy: null is false, numbers are true when non-zero, strings when
// non-empty, and every other kind is true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool, KindInt:
		return v.I != 0
	case KindNull:
		return false
	case KindFloat:
		return v.F != 0
	case KindStr:
		return len(v.Str()) > 0
	case KindPtr:
		return v.P != 0
	}
	return true
}

// Equal compares scalars and strings structurally and containers by identity.
// Values of different kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt, KindBool:
		return v.I == o.I
	case KindFloat:
		return v.F == o.F
	case KindStr:
		return v.Str() == o.Str()
	case KindPtr:
		return v.P == o.P
	}
	return v.Ref == o.Ref
}

func FormatFloat(f float64) string {
	return fmt.Sprintf("%.6g", f)
}

func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb, 0)
	return sb.String()
}

const maxPrintDepth = 8

func (v Value) write(sb *strings.Builder, depth int) {
	switch v.Kind {
	case KindNull:
		sb.WriteString("null")
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.I, 10))
	case KindFloat:
		sb.WriteString(FormatFloat(v.F))
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.I != 0))
	case KindStr:
		sb.WriteString(v.Str())
	case KindPtr:
		fmt.Fprintf(sb, "<ptr 0x%x>", v.P)
	case KindArray:
		if depth >= maxPrintDepth {
			sb.WriteString("[...]")
			return
		}
		sb.WriteByte('[')
		for i, e := range v.Array().Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb, depth+1)
		}
		sb.WriteByte(']')
	case KindMap:
		if depth >= maxPrintDepth {
			sb.WriteString("{...}")
			return
		}
		sb.WriteByte('{')
		for i, e := range v.Map().entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.Key.write(sb, depth+1)
			sb.WriteString(": ")
			e.Val.write(sb, depth+1)
		}
		sb.WriteByte('}')
	case KindStruct:
		fmt.Fprintf(sb, "<struct %d>", v.Struct().TypeID)
	case KindClass:
		fmt.Fprintf(sb, "<object %d>", v.Class().ClassID)
	}
}
