package ir

import (
	"fmt"
	"strings"
)

// Design is the lowered accelerator: the top container with every component
// it instantiates, plus the shared window-buffer cores.
type Design struct {
	Target      string
	Top         *Top
	SlaveIf     *SlaveIf
	LineBuffers *LineBufferLibrary
}

// SignalType records width/sign metadata for a scalar element.
type SignalType struct {
	Width  int
	Signed bool
}

// UInt and SInt build scalar element types.
func UInt(width int) SignalType { return SignalType{Width: width} }
func SInt(width int) SignalType { return SignalType{Width: width, Signed: true} }

// String renders the FIRRTL ground type, e.g. UInt<8>.
func (t SignalType) String() string {
	if t.Signed {
		return fmt.Sprintf("SInt<%d>", t.Width)
	}
	return fmt.Sprintf("UInt<%d>", t.Width)
}

// Base returns "SInt" or "UInt".
func (t SignalType) Base() string {
	if t.Signed {
		return "SInt"
	}
	return "UInt"
}

// Literal renders a constant of this type.
func (t SignalType) Literal(v int64) string {
	return fmt.Sprintf("%s(%d)", t, v)
}

// Kind is the container kind of a Type.
type Kind int

const (
	Scalar Kind = iota
	Stencil
	Stream
	AxiStream
	MemRead
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Stencil:
		return "stencil"
	case Stream:
		return "stream"
	case AxiStream:
		return "axi_stream"
	case MemRead:
		return "mem_read"
	default:
		panic(fmt.Sprintf("ir: unhandled type kind %d", int(k)))
	}
}

// MemReadLanes is the number of address lanes of a MemRead port.
const MemReadLanes = 4

// Type describes the value carried by a port, register or wire.
type Type struct {
	Kind Kind
	Elem SignalType
	// Bounds holds the per-dimension extents of a stencil value.
	Bounds []int
	// Depth is a multiplicity hint for streams.
	Depth int
	// StoreExtents is the full image a stream covers.
	StoreExtents []int
}

// ScalarOf returns a scalar type.
func ScalarOf(elem SignalType) Type {
	return Type{Kind: Scalar, Elem: elem}
}

// StencilOf returns a stencil type with the given extents.
func StencilOf(elem SignalType, bounds ...int) Type {
	return Type{Kind: Stencil, Elem: elem, Bounds: append([]int(nil), bounds...)}
}

// StreamOf returns an internal ready/valid stream of stencils.
func StreamOf(elem SignalType, bounds, store []int) Type {
	return Type{
		Kind:         Stream,
		Elem:         elem,
		Bounds:       append([]int(nil), bounds...),
		StoreExtents: append([]int(nil), store...),
	}
}

// MemReadOf returns a memory read port producing elem.
func MemReadOf(elem SignalType) Type {
	return Type{Kind: MemRead, Elem: elem}
}

// WithKind returns a copy of t with a different container kind.
func (t Type) WithKind(k Kind) Type {
	out := t
	out.Kind = k
	out.Bounds = append([]int(nil), t.Bounds...)
	out.StoreExtents = append([]int(nil), t.StoreExtents...)
	return out
}

// IsStream reports whether t is a handshaked stream of either flavour.
func (t Type) IsStream() bool {
	switch t.Kind {
	case Stream, AxiStream:
		return true
	case Scalar, Stencil, MemRead:
		return false
	default:
		panic(fmt.Sprintf("ir: unhandled type kind %d", int(t.Kind)))
	}
}

// Elements returns the number of scalars in one value of t.
func (t Type) Elements() int {
	n := 1
	for _, b := range t.Bounds {
		n *= b
	}
	return n
}

// Validate checks that the bounds agree with the kind.
func (t Type) Validate() error {
	if t.Elem.Width <= 0 {
		return fmt.Errorf("element width must be positive (got %d)", t.Elem.Width)
	}
	for _, b := range t.Bounds {
		if b <= 0 {
			return fmt.Errorf("extents must be positive (got %v)", t.Bounds)
		}
	}
	switch t.Kind {
	case Scalar, MemRead:
		if len(t.Bounds) != 0 {
			return fmt.Errorf("%s type carries no bounds (got %v)", t.Kind, t.Bounds)
		}
	case Stencil:
		if len(t.Bounds) == 0 || len(t.Bounds) > 4 {
			return fmt.Errorf("stencil needs 1 to 4 dimensions (got %d)", len(t.Bounds))
		}
	case Stream, AxiStream:
		if len(t.Bounds) == 0 || len(t.Bounds) > 4 {
			return fmt.Errorf("stream needs 1 to 4 dimensions (got %d)", len(t.Bounds))
		}
		if len(t.StoreExtents) != 0 && len(t.StoreExtents) != len(t.Bounds) {
			return fmt.Errorf("stream store extents %v do not match bounds %v", t.StoreExtents, t.Bounds)
		}
	default:
		panic(fmt.Sprintf("ir: unhandled type kind %d", int(t.Kind)))
	}
	return nil
}

// String renders t as a FIRRTL type.
func (t Type) String() string {
	switch t.Kind {
	case Scalar:
		return t.Elem.String()
	case Stencil:
		return stencilString(t.Elem, t.Bounds)
	case Stream:
		return fmt.Sprintf("{value : %s, valid : UInt<1>, flip ready : UInt<1>}", stencilString(t.Elem, t.Bounds))
	case AxiStream:
		return fmt.Sprintf("{TDATA : %s, TVALID : UInt<1>, flip TREADY : UInt<1>, TLAST : UInt<1>}", stencilString(t.Elem, t.Bounds))
	case MemRead:
		return fmt.Sprintf("{value : %s, flip addr : UInt<32>[%d]}", t.Elem, MemReadLanes)
	default:
		panic(fmt.Sprintf("ir: unhandled type kind %d", int(t.Kind)))
	}
}

func stencilString(elem SignalType, bounds []int) string {
	var b strings.Builder
	b.WriteString(elem.String())
	for _, e := range bounds {
		fmt.Fprintf(&b, "[%d]", e)
	}
	return b.String()
}

// Pad4 extends extents to four dimensions with ones.
func Pad4(extents []int) [4]int {
	out := [4]int{1, 1, 1, 1}
	copy(out[:], extents)
	return out
}

// PrintName turns an IR name into a FIRRTL identifier.
func PrintName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// RootName returns the part of name before the first dot.
func RootName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// BitsFor returns max(ceil(log2(n)), 1): the width of a counter holding
// values in [0, n).
func BitsFor(n int) int {
	bits := 0
	for (1 << bits) < n {
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	return bits
}
