// Package kir models the already-scheduled kernel IR consumed by the
// hardware lowering: typed scalar expressions, indexed stencil buffers,
// serial loops and the stream intrinsics that connect loop nests.
package kir

import "fmt"

// TypeCode is the numeric class of a Type.
type TypeCode int

const (
	IntCode TypeCode = iota
	UIntCode
	FloatCode
	HandleCode
)

// Type is a scalar element type.
type Type struct {
	Code TypeCode
	Bits int
}

func Int(bits int) Type   { return Type{Code: IntCode, Bits: bits} }
func UInt(bits int) Type  { return Type{Code: UIntCode, Bits: bits} }
func Float(bits int) Type { return Type{Code: FloatCode, Bits: bits} }
func Bool() Type          { return UInt(1) }
func Handle() Type        { return Type{Code: HandleCode, Bits: 64} }

func (t Type) IsInt() bool   { return t.Code == IntCode }
func (t Type) IsUInt() bool  { return t.Code == UIntCode }
func (t Type) IsFloat() bool { return t.Code == FloatCode }

// Signed reports whether arithmetic on t is two's complement signed.
func (t Type) Signed() bool { return t.Code == IntCode }

func (t Type) String() string {
	switch t.Code {
	case IntCode:
		return fmt.Sprintf("int%d", t.Bits)
	case UIntCode:
		if t.Bits == 1 {
			return "bool"
		}
		return fmt.Sprintf("uint%d", t.Bits)
	case FloatCode:
		return fmt.Sprintf("float%d", t.Bits)
	case HandleCode:
		return "handle"
	default:
		return fmt.Sprintf("type(%d,%d)", t.Code, t.Bits)
	}
}

// ParseType decodes names such as int16, uint8, bool and float32.
func ParseType(name string) (Type, error) {
	if name == "bool" {
		return Bool(), nil
	}
	var bits int
	switch {
	case scanBits(name, "uint", &bits):
		return UInt(bits), nil
	case scanBits(name, "int", &bits):
		return Int(bits), nil
	case scanBits(name, "float", &bits):
		return Float(bits), nil
	}
	return Type{}, fmt.Errorf("unknown type %q", name)
}

func scanBits(name, prefix string, bits *int) bool {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	n := 0
	for _, r := range name[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 || n > 64 {
		return false
	}
	*bits = n
	return true
}
