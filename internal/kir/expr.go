package kir

import (
	"fmt"
	"strings"

	"stencilrtl/internal/diag"
)

// Expr is a typed, side-effect free value.
type Expr interface {
	Type() Type
	isExpr()
}

// IntImm is a signed integer literal.
type IntImm struct {
	T     Type
	Value int64
}

// UIntImm is an unsigned integer literal.
type UIntImm struct {
	T     Type
	Value uint64
}

// FloatImm is a floating-point literal. It can be represented but not
// lowered to hardware.
type FloatImm struct {
	T     Type
	Value float64
}

// StringImm carries a name through a call argument list.
type StringImm struct {
	Value string
}

// Variable references a loop variable, a let binding, a kernel scalar or a
// whole buffer (stencil or stream) by name.
type Variable struct {
	T    Type
	Name string
}

// Cast converts Value to T.
type Cast struct {
	T     Type
	Value Expr
}

// BinaryOp enumerates the two-operand operators.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Min
	Max
	EQ
	NE
	LT
	LE
	GT
	GE
	And
	Or
)

var binaryOpNames = [...]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod",
	Min: "min", Max: "max",
	EQ: "eq", NE: "ne", LT: "lt", LE: "le", GT: "gt", GE: "ge",
	And: "and", Or: "or",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", int(op))
}

// IsComparison reports whether op yields a boolean.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case EQ, NE, LT, LE, GT, GE, And, Or:
		return true
	}
	return false
}

// LookupBinaryOp maps an operator name back to its BinaryOp.
func LookupBinaryOp(name string) (BinaryOp, bool) {
	for i, n := range binaryOpNames {
		if n == name {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// Binary applies Op to A and B. Both operands share a type except for the
// boolean operators.
type Binary struct {
	Op   BinaryOp
	A, B Expr
}

// Not is logical negation of a boolean.
type Not struct {
	A Expr
}

// Select picks True when Cond holds, else False.
type Select struct {
	Cond, True, False Expr
}

// Load reads element Index of a flat allocation.
type Load struct {
	T     Type
	Name  string
	Index Expr
}

// CallKind distinguishes intrinsics, stream externs and stencil accesses.
type CallKind int

const (
	Intrinsic CallKind = iota
	Extern
	BufferAccess
)

// Call is an intrinsic, an extern stream operation or a multi-dimensional
// stencil access (Kind == BufferAccess, Name ends in ".stencil").
type Call struct {
	T    Type
	Name string
	Args []Expr
	Kind CallKind
	Pos  diag.Pos
}

// Let binds Name to Value inside Body.
type Let struct {
	Name  string
	Value Expr
	Body  Expr
}

// Names of the intrinsics the lowering understands.
const (
	BitwiseAnd     = "bitwise_and"
	BitwiseOr      = "bitwise_or"
	BitwiseXor     = "bitwise_xor"
	BitwiseNot     = "bitwise_not"
	ShiftLeft      = "shift_left"
	ShiftRight     = "shift_right"
	Reinterpret    = "reinterpret"
	AbsDiff        = "absd"
	Abs            = "abs"
	DivRoundToZero = "div_round_to_zero"
	ModRoundToZero = "mod_round_to_zero"
	ReadStream     = "read_stream"
	WriteStream    = "write_stream"
	LineBuffer     = "linebuffer"
	DispatchStream = "dispatch_stream"
)

const (
	stencilSuffix       = ".stencil"
	stencilUpdateSuffix = ".stencil_update"
	streamSuffix        = ".stream"
	tapSuffix           = "tap.stencil"
)

func (e *IntImm) Type() Type    { return e.T }
func (e *UIntImm) Type() Type   { return e.T }
func (e *FloatImm) Type() Type  { return e.T }
func (e *StringImm) Type() Type { return Handle() }
func (e *Variable) Type() Type  { return e.T }
func (e *Cast) Type() Type      { return e.T }
func (e *Binary) Type() Type {
	if e.Op.IsComparison() {
		return Bool()
	}
	return e.A.Type()
}
func (e *Not) Type() Type    { return Bool() }
func (e *Select) Type() Type { return e.True.Type() }
func (e *Load) Type() Type   { return e.T }
func (e *Call) Type() Type   { return e.T }
func (e *Let) Type() Type    { return e.Body.Type() }

func (*IntImm) isExpr()    {}
func (*UIntImm) isExpr()   {}
func (*FloatImm) isExpr()  {}
func (*StringImm) isExpr() {}
func (*Variable) isExpr()  {}
func (*Cast) isExpr()      {}
func (*Binary) isExpr()    {}
func (*Not) isExpr()       {}
func (*Select) isExpr()    {}
func (*Load) isExpr()      {}
func (*Call) isExpr()      {}
func (*Let) isExpr()       {}

// ConstInt returns the value of an integer literal.
func ConstInt(e Expr) (int64, bool) {
	switch v := e.(type) {
	case *IntImm:
		return v.Value, true
	case *UIntImm:
		return int64(v.Value), true
	}
	return 0, false
}

// IsConst reports whether e is a literal of any kind.
func IsConst(e Expr) bool {
	switch e.(type) {
	case *IntImm, *UIntImm, *FloatImm, *StringImm:
		return true
	}
	return false
}

// IsPowerOfTwo reports whether e is a positive power-of-two literal and
// returns its log2.
func IsPowerOfTwo(e Expr) (int, bool) {
	v, ok := ConstInt(e)
	if !ok || v <= 0 || v&(v-1) != 0 {
		return 0, false
	}
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n, true
}

// IsStencilName reports whether name refers to a stencil buffer.
func IsStencilName(name string) bool {
	return strings.HasSuffix(name, stencilSuffix) || strings.HasSuffix(name, stencilUpdateSuffix)
}

// IsStreamName reports whether name refers to a stream.
func IsStreamName(name string) bool {
	return strings.HasSuffix(name, streamSuffix)
}

// IsTapName reports whether name refers to a bus-mapped tap table.
func IsTapName(name string) bool {
	return strings.HasSuffix(name, tapSuffix)
}

// Convenience constructors used by rewrites and tests.

func I32(v int64) *IntImm                { return &IntImm{T: Int(32), Value: v} }
func Var(t Type, name string) *Variable  { return &Variable{T: t, Name: name} }
func Bin(op BinaryOp, a, b Expr) *Binary { return &Binary{Op: op, A: a, B: b} }

func Imm(t Type, v int64) Expr {
	if t.IsUInt() {
		return &UIntImm{T: t, Value: uint64(v)}
	}
	return &IntImm{T: t, Value: v}
}

func Intr(t Type, name string, args ...Expr) *Call {
	return &Call{T: t, Name: name, Args: args, Kind: Intrinsic}
}
