// Package validate rejects kernels that use constructs the hardware
// lowering cannot express. Every problem is reported, not just the first.
package validate

import (
	"fmt"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/kir"
)

// maxDims is the number of dimensions a stencil or tap table may have.
const maxDims = 4

// busWidth is the width of a control-bus word.
const busWidth = 32

// intrinsicArity lists the intrinsics the lowering understands.
var intrinsicArity = map[string]int{
	kir.BitwiseAnd:     2,
	kir.BitwiseOr:      2,
	kir.BitwiseXor:     2,
	kir.BitwiseNot:     1,
	kir.ShiftLeft:      2,
	kir.ShiftRight:     2,
	kir.Reinterpret:    1,
	kir.AbsDiff:        2,
	kir.Abs:            1,
	kir.DivRoundToZero: 2,
	kir.ModRoundToZero: 2,
}

// CheckKernel validates that k only uses the supported subset: serial
// loops with constant bounds, constant-size buffers, conditionals that
// guard a stream access, integer arithmetic and well-formed stream calls.
func CheckKernel(k *kir.Kernel, reporter *diag.Reporter) error {
	if k == nil {
		return fmt.Errorf("no kernel provided for validation")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}
	c := &checker{reporter: reporter}
	c.checkArgs(k.Args)
	c.stmt(k.Body, 0)
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
}

func (c *checker) checkArgs(args []kir.Arg) {
	seen := make(map[string]bool)
	for _, a := range args {
		if seen[a.Name] {
			c.error(a.Pos, "argument %q declared twice", a.Name)
		}
		seen[a.Name] = true
		if a.Elem.IsFloat() {
			c.error(a.Pos, "argument %q has floating-point type %s", a.Name, a.Elem)
			continue
		}
		switch a.Kind {
		case kir.ScalarArg:
			if a.Elem.Bits > busWidth {
				c.error(a.Pos, "scalar argument %q is %d bits wide; bus registers hold at most %d", a.Name, a.Elem.Bits, busWidth)
			}
		case kir.StencilArg:
			if a.Elem.Bits > busWidth {
				c.error(a.Pos, "tap table %q has %d-bit elements; bus words hold at most %d", a.Name, a.Elem.Bits, busWidth)
			}
			c.extents(a, a.Bounds)
		case kir.StreamArg:
			c.extents(a, a.Bounds)
			if len(a.StoreExtents) == 0 {
				break
			}
			if len(a.StoreExtents) != len(a.Bounds) {
				c.error(a.Pos, "stream %q has %d-dimensional elements over a %d-dimensional image", a.Name, len(a.Bounds), len(a.StoreExtents))
				break
			}
			for i, e := range a.StoreExtents {
				if e < a.Bounds[i] {
					c.error(a.Pos, "stream %q: image extent %d is smaller than element extent %d in dimension %d", a.Name, e, a.Bounds[i], i)
				}
			}
		default:
			c.error(a.Pos, "argument %q has unknown kind %s", a.Name, a.Kind)
		}
	}
}

func (c *checker) extents(a kir.Arg, ext []int) {
	if len(ext) == 0 || len(ext) > maxDims {
		c.error(a.Pos, "argument %q needs 1 to %d dimensions, has %d", a.Name, maxDims, len(ext))
		return
	}
	for _, e := range ext {
		if e < 1 {
			c.error(a.Pos, "argument %q has non-positive extent %d", a.Name, e)
		}
	}
}

// stmt checks s; loops is the number of enclosing loops.
func (c *checker) stmt(s kir.Stmt, loops int) {
	switch n := s.(type) {
	case nil:
	case *kir.For:
		if n.Kind != kir.Serial {
			c.error(n.Pos, "loop %q is %s; only serial loops can be lowered", n.Name, n.Kind)
		}
		if _, ok := kir.ConstInt(n.Min); !ok {
			c.error(n.Pos, "loop %q has a non-constant minimum", n.Name)
		}
		if e, ok := kir.ConstInt(n.Extent); !ok {
			c.error(n.Pos, "loop %q has a non-constant extent", n.Name)
		} else if e < 1 {
			c.error(n.Pos, "loop %q has extent %d", n.Name, e)
		}
		c.stmt(n.Body, loops+1)
	case *kir.Realize:
		if len(n.Types) != 1 {
			c.error(n.Pos, "buffer %q has %d element types; exactly one is supported", n.Name, len(n.Types))
		}
		for _, t := range n.Types {
			if t.IsFloat() {
				c.error(n.Pos, "buffer %q has floating-point type %s", n.Name, t)
			}
		}
		if !kir.IsStreamName(n.Name) && !kir.IsStencilName(n.Name) {
			c.error(n.Pos, "cannot realize %q: only streams and stencils map to hardware", n.Name)
		}
		for _, r := range n.Bounds {
			if e, ok := kir.ConstInt(r.Extent); !ok || e < 1 {
				c.error(n.Pos, "buffer %q needs constant positive extents", n.Name)
				break
			}
		}
		c.stmt(n.Body, loops)
	case *kir.ProducerConsumer:
		c.stmt(n.Body, loops)
	case *kir.Provide:
		if loops == 0 {
			c.error(n.Pos, "stencil %q written outside a loop", n.Name)
		}
		c.exprs(n.Pos, loops, n.Values...)
		c.exprs(n.Pos, loops, n.Args...)
	case *kir.Store:
		if loops == 0 {
			c.error(n.Pos, "store to %q outside a loop", n.Name)
		}
		c.exprs(n.Pos, loops, n.Value, n.Index)
	case *kir.Allocate:
		for _, e := range n.Extents {
			if !kir.IsConst(e) {
				c.error(n.Pos, "size of allocation %q is not a constant", n.Name)
				break
			}
		}
		c.stmt(n.Body, loops)
	case *kir.Free:
	case *kir.IfThenElse:
		c.ifThenElse(n, loops)
	case *kir.Block:
		for _, st := range n.Stmts {
			c.stmt(st, loops)
		}
	case *kir.Evaluate:
		c.exprs(n.Pos, loops, n.Value)
	case *kir.LetStmt:
		c.exprs(n.Pos, loops, n.Value)
		c.stmt(n.Body, loops)
	case *kir.AssertStmt:
		c.error(n.Pos, "assertions cannot be lowered to hardware")
	default:
		c.error(s.Position(), "unsupported statement %T", s)
	}
}

// ifThenElse accepts a conditional whose then-branch reads or writes a
// stream and which has no else branch.
func (c *checker) ifThenElse(n *kir.IfThenElse, loops int) {
	if loops == 0 {
		c.error(n.Pos, "conditional outside a loop is not supported")
	}
	if !kir.ContainsCall(n.Then, kir.ReadStream) && !kir.ContainsCall(n.Then, kir.WriteStream) {
		c.error(n.Pos, "general if-then-else is not supported; a conditional may only guard a stream read or write")
	} else if n.Else != nil {
		c.error(n.Pos, "a stream conditional cannot have an else branch")
	}
	c.exprs(n.Pos, loops, n.Cond)
	c.stmt(n.Then, loops)
	c.stmt(n.Else, loops)
}

// exprs checks every expression below es. pos locates problems in
// expressions that carry no position of their own.
func (c *checker) exprs(pos diag.Pos, loops int, es ...kir.Expr) {
	for _, e := range es {
		kir.Inspect(e, func(node any) bool {
			switch x := node.(type) {
			case *kir.FloatImm:
				c.error(pos, "floating-point constant %g cannot be lowered to hardware", x.Value)
			case *kir.Cast:
				if x.T.IsFloat() {
					c.error(pos, "cast to floating-point type %s cannot be lowered to hardware", x.T)
				}
			case *kir.Call:
				at := pos
				if x.Pos.IsValid() {
					at = x.Pos
				}
				c.call(at, loops, x)
			}
			return true
		})
	}
}

func (c *checker) call(pos diag.Pos, loops int, call *kir.Call) {
	switch call.Kind {
	case kir.Intrinsic:
		n, ok := intrinsicArity[call.Name]
		if !ok {
			c.error(pos, "unsupported intrinsic %q", call.Name)
		} else if len(call.Args) != n {
			c.error(pos, "%s expects %d argument(s), got %d", call.Name, n, len(call.Args))
		}
	case kir.BufferAccess:
		if len(call.Args) == 0 || len(call.Args) > maxDims {
			c.error(pos, "%q accessed with %d indices", call.Name, len(call.Args))
		}
	case kir.Extern:
		c.extern(pos, loops, call)
	default:
		c.error(pos, "call %q has unknown kind %d", call.Name, int(call.Kind))
	}
}

func (c *checker) extern(pos diag.Pos, loops int, call *kir.Call) {
	args := call.Args
	switch call.Name {
	case kir.ReadStream:
		if loops == 0 {
			c.error(pos, "read_stream outside a loop")
		}
		if len(args) != 2 && len(args) != 3 {
			c.error(pos, "read_stream expects 2 or 3 arguments, got %d", len(args))
		}
	case kir.WriteStream:
		if loops == 0 {
			c.error(pos, "write_stream outside a loop")
		}
		if len(args) < 2 || len(args)%2 != 0 {
			c.error(pos, "write_stream expects a stream, a stencil and (var, max) pairs; got %d arguments", len(args))
		}
	case kir.LineBuffer:
		if len(args) < 3 {
			c.error(pos, "linebuffer expects an input, an output and image extents")
			return
		}
		for i, a := range args[2:] {
			if !kir.IsConst(a) {
				c.error(pos, "linebuffer: image extent %d is not a constant", i)
			}
		}
	case kir.DispatchStream:
		c.dispatch(pos, args)
	default:
		c.error(pos, "unsupported extern call %q", call.Name)
	}
}

// dispatch checks the argument count of
//
//	dispatch_stream(stream, ndims, (size, step, extent)*ndims,
//	                nconsumers, (name, depth, (offset, extent)*ndims)*nconsumers)
func (c *checker) dispatch(pos diag.Pos, args []kir.Expr) {
	if len(args) < 3 {
		c.error(pos, "dispatch_stream: too few arguments (%d)", len(args))
		return
	}
	ndims, ok := kir.ConstInt(args[1])
	if !ok || ndims < 1 || len(args) < 3+3*int(ndims) {
		c.error(pos, "dispatch_stream: bad dimension count")
		return
	}
	nconsumers, ok := kir.ConstInt(args[2+3*ndims])
	if !ok || nconsumers < 1 {
		c.error(pos, "dispatch_stream: bad consumer count")
		return
	}
	want := 3 + 3*int(ndims) + int(nconsumers)*(2+2*int(ndims))
	if len(args) != want {
		c.error(pos, "dispatch_stream: %d dimension(s) and %d consumer(s) need %d arguments, got %d", ndims, nconsumers, want, len(args))
	}
}

func (c *checker) error(pos diag.Pos, format string, args ...any) {
	c.errCount++
	c.reporter.Error(pos, fmt.Sprintf(format, args...))
}
