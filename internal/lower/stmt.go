package lower

import (
	"fmt"
	"log/slog"
	"strings"

	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
)

func (b *builder) stmt(sc *scope, s kir.Stmt) error {
	if s == nil {
		return nil
	}
	if p := s.Position(); p.IsValid() {
		b.pos = p
	}
	switch n := s.(type) {
	case *kir.Block:
		for _, st := range n.Stmts {
			if err := b.stmt(sc, st); err != nil {
				return err
			}
		}
		return nil
	case *kir.ProducerConsumer:
		if kir.IsStreamName(n.Name) {
			b.producer = n.Name
		}
		return b.stmt(sc, n.Body)
	case *kir.For:
		return b.loop(sc, n)
	case *kir.Realize:
		return b.realize(sc, n)
	case *kir.Provide:
		return b.provide(sc, n)
	case *kir.Store:
		return b.store(sc, n)
	case *kir.Allocate:
		return b.allocate(sc, n)
	case *kir.Free:
		return nil
	case *kir.IfThenElse:
		return b.ifThenElse(sc, n)
	case *kir.Evaluate:
		if kir.IsConst(n.Value) {
			return nil
		}
		_, err := b.expr(sc, n.Value)
		return err
	case *kir.LetStmt:
		id, err := b.expr(sc, n.Value)
		if err != nil {
			return err
		}
		return b.stmt(sc, kir.SubstituteStmt(n.Name, kir.Var(n.Value.Type(), id), n.Body))
	case *kir.AssertStmt:
		return b.errorf(n.Pos, "assertions cannot be lowered to hardware")
	default:
		panic(fmt.Sprintf("lower: unhandled statement %T", s))
	}
}

// bounds returns the constant min and extent of a loop.
func (b *builder) bounds(n *kir.For) (lo, extent int, err error) {
	m, ok := kir.ConstInt(n.Min)
	if !ok {
		return 0, 0, b.errorf(n.Pos, "loop %q has a non-constant minimum", n.Name)
	}
	e, ok := kir.ConstInt(n.Extent)
	if !ok {
		return 0, 0, b.errorf(n.Pos, "loop %q has a non-constant extent", n.Name)
	}
	if e < 1 {
		return 0, 0, b.errorf(n.Pos, "loop %q has extent %d", n.Name, e)
	}
	return int(m), int(e), nil
}

// loop lowers a serial loop. The outermost loop of a nest creates the loop
// block; inner loops add counters to it. A loop whose body realizes no
// buffer walks the positions of one window.
func (b *builder) loop(sc *scope, n *kir.For) error {
	if n.Kind != kir.Serial {
		return b.errorf(n.Pos, "loop %q is %s; only serial loops can be lowered", n.Name, n.Kind)
	}
	lo, extent, err := b.bounds(n)
	if err != nil {
		return err
	}
	v := ir.LoopVar{Name: ir.PrintName(n.Name), Min: lo, Max: lo + extent - 1}

	inner := *sc
	root := sc.fb == nil
	if root {
		fb, err := b.newForBlock(n)
		if err != nil {
			return err
		}
		fb.ScanVars = append(fb.ScanVars, v)
		inner = scope{fb: fb}
		b.clearCache()
	} else if !kir.ContainsRealize(n.Body) {
		sc.fb.StencilVars = append(sc.fb.StencilVars, v)
		inner.inStencil = true
	} else {
		sc.fb.ScanVars = append(sc.fb.ScanVars, v)
	}

	if !kir.ContainsFor(n.Body) {
		b.clearCache()
	}
	if err := b.stmt(&inner, n.Body); err != nil {
		return err
	}
	if root {
		b.clearCache()
		slog.Debug("loop block done", "block", inner.fb.Name,
			"scan", len(inner.fb.ScanVars), "stencil", len(inner.fb.StencilVars),
			"statements", len(inner.fb.Body()))
	}
	return nil
}

// newForBlock creates the loop block for the nest rooted at n and brings
// every value the body uses from outside in through a port.
func (b *builder) newForBlock(n *kir.For) (*ir.ForBlock, error) {
	owner := b.producer
	if owner == "" {
		owner = n.Name
	}
	fb := ir.NewForBlock("FB_"+ir.PrintName(owner), b.opts.PipelineDepth)
	if err := b.addChild(n.Pos, fb); err != nil {
		return nil, err
	}
	b.startDone(fb.Name)

	for _, name := range kir.FreeNames(n.Body, n.Name) {
		if kir.IsTapName(name) || kir.IsStreamName(name) || b.isStencilArg(name) {
			continue
		}
		a := ir.PrintName(name)
		if t, ok := b.wireType(a); ok {
			fb.AddInPort(a, t)
			b.top.Connect(fb.Name+"."+a, "wire_"+a)
			continue
		}
		// A value named outside every loop lives in a top-level wire of
		// its own.
		if s, ok := b.top.Wires.Lookup(a); ok {
			fb.AddInPort(a, s.Type)
			b.top.Connect(fb.Name+"."+a, a)
			continue
		}
		return nil, b.errorf(n.Pos, "loop %q uses %q, which is neither a kernel argument nor a buffer realized in the loop", n.Name, name)
	}
	return fb, nil
}

// realizeBounds returns the constant extents of a realization.
func (b *builder) realizeBounds(n *kir.Realize) ([]int, error) {
	out := make([]int, len(n.Bounds))
	for i, r := range n.Bounds {
		e, ok := kir.ConstInt(r.Extent)
		if !ok || e < 1 {
			return nil, b.errorf(n.Pos, "buffer %q needs constant positive extents", n.Name)
		}
		out[i] = int(e)
	}
	return out, nil
}

func (b *builder) realize(sc *scope, n *kir.Realize) error {
	if len(n.Types) != 1 {
		return b.errorf(n.Pos, "buffer %q has %d element types; exactly one is supported", n.Name, len(n.Types))
	}
	elem, err := b.hw(n.Types[0])
	if err != nil {
		return err
	}
	extents, err := b.realizeBounds(n)
	if err != nil {
		return err
	}
	name := ir.PrintName(n.Name)

	switch {
	case kir.IsStreamName(n.Name):
		store := make([]int, len(extents))
		for i := range store {
			store[i] = 1
		}
		b.top.AddWire("wire_"+name, ir.StreamOf(elem, extents, store))
	case kir.IsStencilName(n.Name):
		if sc.fb == nil {
			return b.errorf(n.Pos, "stencil %q realized outside a loop", n.Name)
		}
		t := ir.StencilOf(elem, extents...)
		if strings.HasPrefix(b.producer, n.Name) {
			// The produced stencil must hold its value across steps.
			sc.fb.AddReg(name, t)
		} else {
			sc.fb.AddWire(name, t)
		}
	default:
		return b.errorf(n.Pos, "cannot realize %q: only streams and stencils map to hardware", n.Name)
	}
	return b.stmt(sc, n.Body)
}

func (b *builder) provide(sc *scope, n *kir.Provide) error {
	if !kir.IsStencilName(n.Name) {
		return b.errorf(n.Pos, "cannot write %q: only stencils can be provided", n.Name)
	}
	if sc.fb == nil {
		return b.errorf(n.Pos, "stencil %q written outside a loop", n.Name)
	}
	if len(n.Values) != 1 {
		return b.errorf(n.Pos, "stencil %q written with %d values", n.Name, len(n.Values))
	}
	v, err := b.expr(sc, n.Values[0])
	if err != nil {
		return err
	}
	dst, err := b.element(sc, n.Name, n.Args)
	if err != nil {
		return err
	}
	sc.fb.Print(dst + " <= " + v)
	b.clearCache()
	return nil
}

func (b *builder) store(sc *scope, n *kir.Store) error {
	if sc.fb == nil {
		return b.errorf(n.Pos, "store to %q outside a loop", n.Name)
	}
	v, err := b.expr(sc, n.Value)
	if err != nil {
		return err
	}
	idx, err := b.expr(sc, n.Index)
	if err != nil {
		return err
	}
	sc.fb.Print(fmt.Sprintf("%s[asUInt(%s)] <= %s", ir.PrintName(n.Name), idx, v))
	b.clearCache()
	return nil
}

// allocate turns a scratch buffer into a block register. The buffer is
// renamed so that unrolled copies do not collide.
func (b *builder) allocate(sc *scope, n *kir.Allocate) error {
	if sc.fb == nil {
		return b.errorf(n.Pos, "allocation %q outside a loop", n.Name)
	}
	size := 1
	for _, e := range n.Extents {
		v, ok := kir.ConstInt(e)
		if !ok || v < 1 {
			return b.errorf(n.Pos, "size of allocation %q is not a constant", n.Name)
		}
		size *= int(v)
	}
	elem, err := b.hw(n.T)
	if err != nil {
		return err
	}
	renamed := fmt.Sprintf("%s_a%d", n.Name, b.nextMem)
	b.nextMem++
	sc.fb.AddReg(ir.PrintName(renamed), ir.StencilOf(elem, size))
	return b.stmt(sc, kir.RenameBuffer(n.Name, renamed, n.Body))
}

// ifThenElse accepts the two conditional forms a loop block supports: a
// guarded stream read, which reads unconditionally, and a guarded stream
// write, which gates the output valid.
func (b *builder) ifThenElse(sc *scope, n *kir.IfThenElse) error {
	if sc.fb == nil {
		return b.errorf(n.Pos, "conditional outside a loop is not supported")
	}
	reads := kir.ContainsCall(n.Then, kir.ReadStream)
	writes := kir.ContainsCall(n.Then, kir.WriteStream)
	if !reads && !writes {
		return b.errorf(n.Pos, "general if-then-else is not supported")
	}
	if n.Else != nil {
		return b.errorf(n.Pos, "a stream conditional cannot have an else branch")
	}
	if reads {
		inner := *sc
		inner.readGuard = true
		return b.stmt(&inner, n.Then)
	}

	cond, err := b.expr(sc, n.Cond)
	if err != nil {
		return err
	}
	sc.fb.OpenScope("when " + cond + " :")
	b.clearCache()
	inner := *sc
	inner.writeGuard = true
	if err := b.stmt(&inner, n.Then); err != nil {
		return err
	}
	sc.fb.CloseScope()
	b.clearCache()
	return nil
}
