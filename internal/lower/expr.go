package lower

import (
	"fmt"
	"strings"

	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
)

// expr lowers e and returns the name (or literal reference) holding its
// value. Calls that only have side effects return "".
func (b *builder) expr(sc *scope, e kir.Expr) (string, error) {
	switch n := e.(type) {
	case *kir.IntImm:
		t, err := b.hw(n.T)
		if err != nil {
			return "", err
		}
		return b.assign(sc, t, t.Literal(n.Value)), nil
	case *kir.UIntImm:
		t, err := b.hw(n.T)
		if err != nil {
			return "", err
		}
		return b.assign(sc, t, fmt.Sprintf("%s(%d)", t, n.Value)), nil
	case *kir.FloatImm:
		return "", b.errorf(b.pos, "floating-point constant %g cannot be lowered to hardware", n.Value)
	case *kir.StringImm:
		return ir.PrintName(n.Value), nil
	case *kir.Variable:
		name := ir.PrintName(n.Name)
		if _, ok := b.wireType(name); ok && sc.fb == nil {
			return "wire_" + name, nil
		}
		return name, nil
	case *kir.Cast:
		return b.cast(sc, n.T, n.Value)
	case *kir.Binary:
		return b.binary(sc, n)
	case *kir.Not:
		a, err := b.expr(sc, n.A)
		if err != nil {
			return "", err
		}
		return b.assign(sc, ir.UInt(1), "not("+a+")"), nil
	case *kir.Select:
		return b.selectExpr(sc, n)
	case *kir.Load:
		t, err := b.hw(n.T)
		if err != nil {
			return "", err
		}
		idx, err := b.expr(sc, n.Index)
		if err != nil {
			return "", err
		}
		return b.assign(sc, t, fmt.Sprintf("%s[asUInt(%s)]", ir.PrintName(n.Name), idx)), nil
	case *kir.Call:
		return b.call(sc, n)
	case *kir.Let:
		id, err := b.expr(sc, n.Value)
		if err != nil {
			return "", err
		}
		return b.expr(sc, kir.SubstituteExpr(n.Name, kir.Var(n.Value.Type(), id), n.Body))
	case nil:
		return "", b.errorf(b.pos, "missing expression")
	default:
		panic(fmt.Sprintf("lower: unhandled expression %T", e))
	}
}

// hw converts t and reports unsupported types at the current statement.
func (b *builder) hw(t kir.Type) (ir.SignalType, error) {
	st, err := signalType(t)
	if err != nil {
		return st, b.errorf(b.pos, "%v", err)
	}
	return st, nil
}

// resign wraps an unsigned-producing primitive back into the signedness of
// t.
func resign(t ir.SignalType, rhs string) string {
	if t.Signed {
		return "asSInt(" + rhs + ")"
	}
	return rhs
}

func reinterpret(t ir.SignalType, rhs string) string {
	return "as" + t.Base() + "(" + rhs + ")"
}

func (b *builder) cast(sc *scope, to kir.Type, v kir.Expr) (string, error) {
	dst, err := b.hw(to)
	if err != nil {
		return "", err
	}
	src, err := b.hw(v.Type())
	if err != nil {
		return "", err
	}
	x, err := b.expr(sc, v)
	if err != nil {
		return "", err
	}
	var rhs string
	switch {
	case dst.Width == src.Width:
		rhs = reinterpret(dst, x)
	case dst.Width > src.Width:
		// pad extends according to the source sign.
		rhs = fmt.Sprintf("pad(%s, %d)", x, dst.Width)
		if dst.Signed != src.Signed {
			rhs = reinterpret(dst, rhs)
		}
	default:
		rhs = resign(dst, fmt.Sprintf("bits(%s, %d, 0)", x, dst.Width-1))
	}
	return b.assign(sc, dst, rhs), nil
}

var comparisonPrims = map[kir.BinaryOp]string{
	kir.EQ: "eq", kir.NE: "neq",
	kir.LT: "lt", kir.LE: "leq",
	kir.GT: "gt", kir.GE: "geq",
	kir.And: "and", kir.Or: "or",
}

func (b *builder) binary(sc *scope, n *kir.Binary) (string, error) {
	switch n.Op {
	case kir.Min:
		return b.expr(sc, &kir.Select{Cond: kir.Bin(kir.LT, n.A, n.B), True: n.A, False: n.B})
	case kir.Max:
		return b.expr(sc, &kir.Select{Cond: kir.Bin(kir.GT, n.A, n.B), True: n.A, False: n.B})
	case kir.Div:
		if k, ok := kir.IsPowerOfTwo(n.B); ok {
			return b.unary(sc, n.A.Type(), n.A, func(t ir.SignalType, a string) string {
				return fmt.Sprintf("shr(%s, %d)", a, k)
			})
		}
		if n.A.Type().Signed() {
			return b.expr(sc, kir.EuclideanDiv(n.A, n.B))
		}
		return b.prim(sc, n.A.Type(), "div", n.A, n.B, false)
	case kir.Mod:
		if k, ok := kir.IsPowerOfTwo(n.B); ok {
			return b.unary(sc, n.A.Type(), n.A, func(t ir.SignalType, a string) string {
				if t.Signed {
					a = "asUInt(" + a + ")"
				}
				return resign(t, fmt.Sprintf("and(%s, %s)", a, ir.UInt(t.Width).Literal(int64(1)<<k-1)))
			})
		}
		if n.A.Type().Signed() {
			return b.expr(sc, kir.EuclideanMod(n.A, n.B))
		}
		return b.prim(sc, n.A.Type(), "rem", n.A, n.B, false)
	}

	if prim, ok := comparisonPrims[n.Op]; ok {
		if _, err := b.hw(n.A.Type()); err != nil {
			return "", err
		}
		return b.prim(sc, kir.Bool(), prim, n.A, n.B, false)
	}

	t, err := b.hw(n.A.Type())
	if err != nil {
		return "", err
	}
	a, err := b.expr(sc, n.A)
	if err != nil {
		return "", err
	}
	c, err := b.expr(sc, n.B)
	if err != nil {
		return "", err
	}
	var rhs string
	switch n.Op {
	case kir.Add:
		rhs = fmt.Sprintf("tail(add(%s, %s), 1)", a, c)
	case kir.Sub:
		rhs = fmt.Sprintf("tail(sub(%s, %s), 1)", a, c)
	case kir.Mul:
		rhs = fmt.Sprintf("bits(mul(%s, %s), %d, 0)", a, c, t.Width-1)
	default:
		panic(fmt.Sprintf("lower: unhandled binary operator %s", n.Op))
	}
	return b.assign(sc, t, resign(t, rhs)), nil
}

// prim lowers op(a, c) of result type t, optionally re-signed.
func (b *builder) prim(sc *scope, t kir.Type, op string, a, c kir.Expr, signed bool) (string, error) {
	ht, err := b.hw(t)
	if err != nil {
		return "", err
	}
	x, err := b.expr(sc, a)
	if err != nil {
		return "", err
	}
	y, err := b.expr(sc, c)
	if err != nil {
		return "", err
	}
	rhs := fmt.Sprintf("%s(%s, %s)", op, x, y)
	if signed {
		rhs = resign(ht, rhs)
	}
	return b.assign(sc, ht, rhs), nil
}

// unary lowers a and names format(a).
func (b *builder) unary(sc *scope, t kir.Type, a kir.Expr, format func(ir.SignalType, string) string) (string, error) {
	ht, err := b.hw(t)
	if err != nil {
		return "", err
	}
	x, err := b.expr(sc, a)
	if err != nil {
		return "", err
	}
	return b.assign(sc, ht, format(ht, x)), nil
}

func (b *builder) selectExpr(sc *scope, n *kir.Select) (string, error) {
	t, err := b.hw(n.Type())
	if err != nil {
		return "", err
	}
	tv, err := b.expr(sc, n.True)
	if err != nil {
		return "", err
	}
	fv, err := b.expr(sc, n.False)
	if err != nil {
		return "", err
	}
	cond, err := b.expr(sc, n.Cond)
	if err != nil {
		return "", err
	}
	rhs := reinterpret(t, fmt.Sprintf("mux(%s, %s, %s)", cond, reinterpret(t, tv), reinterpret(t, fv)))
	return b.assign(sc, t, rhs), nil
}

func (b *builder) call(sc *scope, c *kir.Call) (string, error) {
	if c.Pos.IsValid() {
		b.pos = c.Pos
	}
	switch c.Name {
	case kir.ReadStream:
		return "", b.readStream(sc, c)
	case kir.WriteStream:
		return "", b.writeStream(sc, c)
	case kir.LineBuffer:
		return "", b.lineBuffer(c)
	case kir.DispatchStream:
		return "", b.dispatchStream(c)
	}
	if c.Kind == kir.BufferAccess {
		if kir.IsTapName(c.Name) || b.isStencilArg(c.Name) {
			return b.tapAccess(sc, c)
		}
		return b.stencilAccess(sc, c)
	}
	if c.Kind != kir.Intrinsic {
		return "", b.errorf(b.pos, "unsupported extern call %q", c.Name)
	}
	return b.intrinsic(sc, c)
}

func (b *builder) isStencilArg(name string) bool {
	a, ok := b.args[name]
	return ok && a.Kind == kir.StencilArg
}

func (b *builder) wantArgs(c *kir.Call, n int) error {
	if len(c.Args) != n {
		return b.errorf(b.pos, "%s expects %d argument(s), got %d", c.Name, n, len(c.Args))
	}
	return nil
}

func (b *builder) intrinsic(sc *scope, c *kir.Call) (string, error) {
	switch c.Name {
	case kir.BitwiseAnd, kir.BitwiseOr, kir.BitwiseXor:
		if err := b.wantArgs(c, 2); err != nil {
			return "", err
		}
		op := strings.TrimPrefix(c.Name, "bitwise_")
		return b.prim(sc, c.T, op, c.Args[0], c.Args[1], true)
	case kir.BitwiseNot:
		if err := b.wantArgs(c, 1); err != nil {
			return "", err
		}
		return b.unary(sc, c.T, c.Args[0], func(t ir.SignalType, a string) string {
			return resign(t, "not("+a+")")
		})
	case kir.ShiftLeft, kir.ShiftRight:
		if err := b.wantArgs(c, 2); err != nil {
			return "", err
		}
		return b.shift(sc, c)
	case kir.Reinterpret:
		if err := b.wantArgs(c, 1); err != nil {
			return "", err
		}
		return b.cast(sc, c.T, c.Args[0])
	case kir.AbsDiff:
		if err := b.wantArgs(c, 2); err != nil {
			return "", err
		}
		a, d := c.Args[0], c.Args[1]
		sel := &kir.Select{Cond: kir.Bin(kir.LT, a, d), True: kir.Bin(kir.Sub, d, a), False: kir.Bin(kir.Sub, a, d)}
		return b.cast(sc, c.T, sel)
	case kir.Abs:
		if err := b.wantArgs(c, 1); err != nil {
			return "", err
		}
		a := c.Args[0]
		zero := kir.Imm(a.Type(), 0)
		sel := &kir.Select{Cond: kir.Bin(kir.GT, a, zero), True: a, False: kir.Bin(kir.Sub, zero, a)}
		return b.cast(sc, c.T, sel)
	case kir.DivRoundToZero:
		if err := b.wantArgs(c, 2); err != nil {
			return "", err
		}
		if !c.T.Signed() {
			return b.prim(sc, c.T, "div", c.Args[0], c.Args[1], false)
		}
		// Signed division grows by one bit.
		return b.binaryFormat(sc, c.T, c.Args[0], c.Args[1], func(t ir.SignalType, x, y string) string {
			return fmt.Sprintf("asSInt(bits(div(%s, %s), %d, 0))", x, y, t.Width-1)
		})
	case kir.ModRoundToZero:
		if err := b.wantArgs(c, 2); err != nil {
			return "", err
		}
		return b.prim(sc, c.T, "rem", c.Args[0], c.Args[1], false)
	default:
		return "", b.errorf(b.pos, "unsupported intrinsic %q", c.Name)
	}
}

func (b *builder) binaryFormat(sc *scope, t kir.Type, a, c kir.Expr, format func(ir.SignalType, string, string) string) (string, error) {
	ht, err := b.hw(t)
	if err != nil {
		return "", err
	}
	x, err := b.expr(sc, a)
	if err != nil {
		return "", err
	}
	y, err := b.expr(sc, c)
	if err != nil {
		return "", err
	}
	return b.assign(sc, ht, format(ht, x, y)), nil
}

// shift lowers shift_left and shift_right. Constant amounts use the static
// primitives, restored to the declared width; dynamic amounts are narrowed
// to the bits that can matter.
func (b *builder) shift(sc *scope, c *kir.Call) (string, error) {
	left := c.Name == kir.ShiftLeft
	a, amount := c.Args[0], c.Args[1]
	if k, ok := kir.ConstInt(amount); ok {
		if k < 0 {
			return "", b.errorf(b.pos, "%s by negative amount %d", c.Name, k)
		}
		return b.unary(sc, c.T, a, func(t ir.SignalType, x string) string {
			if left {
				return resign(t, fmt.Sprintf("bits(shl(%s, %d), %d, 0)", x, k, t.Width-1))
			}
			return fmt.Sprintf("pad(shr(%s, %d), %d)", x, k, t.Width)
		})
	}
	return b.binaryFormat(sc, c.T, a, amount, func(t ir.SignalType, x, y string) string {
		amt := fmt.Sprintf("bits(%s, %d, 0)", y, ir.BitsFor(t.Width)-1)
		if left {
			return resign(t, fmt.Sprintf("bits(dshl(%s, %s), %d, 0)", x, amt, t.Width-1))
		}
		return fmt.Sprintf("dshr(%s, %s)", x, amt)
	})
}

// index lowers one buffer coordinate: literals print as themselves.
func (b *builder) index(sc *scope, e kir.Expr) (string, error) {
	if v, ok := kir.ConstInt(e); ok {
		if v < 0 {
			return "", b.errorf(b.pos, "negative buffer index %d", v)
		}
		return fmt.Sprint(v), nil
	}
	x, err := b.expr(sc, e)
	if err != nil {
		return "", err
	}
	return "asUInt(" + x + ")", nil
}

// element renders name[i_last]...[i0]; stencil types list dimension 0
// innermost.
func (b *builder) element(sc *scope, name string, args []kir.Expr) (string, error) {
	idx := make([]string, len(args))
	for i, a := range args {
		s, err := b.index(sc, a)
		if err != nil {
			return "", err
		}
		idx[i] = s
	}
	var sb strings.Builder
	sb.WriteString(ir.PrintName(name))
	for i := len(idx) - 1; i >= 0; i-- {
		sb.WriteString("[" + idx[i] + "]")
	}
	return sb.String(), nil
}

func (b *builder) stencilAccess(sc *scope, c *kir.Call) (string, error) {
	t, err := b.hw(c.T)
	if err != nil {
		return "", err
	}
	ref, err := b.element(sc, c.Name, c.Args)
	if err != nil {
		return "", err
	}
	return b.assign(sc, t, ref), nil
}

// tapAccess reads one element of a bus-mapped tap table. Every access site
// gets its own read port on the control interface.
func (b *builder) tapAccess(sc *scope, c *kir.Call) (string, error) {
	if sc.fb == nil {
		return "", b.errorf(b.pos, "tap table %q read outside a loop", c.Name)
	}
	if len(c.Args) == 0 || len(c.Args) > ir.MemReadLanes {
		return "", b.errorf(b.pos, "tap table %q accessed with %d indices", c.Name, len(c.Args))
	}
	reg := ir.PrintName(c.Name)
	r, ok := b.sif.Register(reg)
	if !ok || !r.Memory {
		return "", b.errorf(b.pos, "tap table %q is not a kernel argument", c.Name)
	}
	fb := sc.fb
	n := b.nextTap[fb]
	b.nextTap[fb] = n + 1
	port := fmt.Sprintf("%s_rd%d", reg, n)
	wire := port + "_" + fb.Name

	idx := make([]string, len(c.Args))
	for i, a := range c.Args {
		x, err := b.expr(sc, a)
		if err != nil {
			return "", err
		}
		idx[i] = x
	}

	if err := b.sif.AddReadPort(reg, wire); err != nil {
		return "", b.errorf(b.pos, "%v", err)
	}
	b.top.AddWire("wire_"+wire, ir.MemReadOf(r.Elem))
	b.top.Connect("wire_"+wire, b.sif.Name+"."+wire)
	b.top.Connect(fb.Name+"."+port, "wire_"+wire)
	fb.AddTapPort(port, r.Elem)
	for i, x := range idx {
		fb.Print(fmt.Sprintf("%s.addr[%d] <= asUInt(%s)", port, i, x))
	}
	return b.assign(sc, r.Elem, port+".value"), nil
}
