package frontend

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"stencilrtl/internal/kir"
)

// fields indexes a mapping node by key.
func (d *decoder) fields(n *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = n.Content[i+1]
	}
	return out
}

func (d *decoder) require(parent *yaml.Node, f map[string]*yaml.Node, key string) *yaml.Node {
	if v, ok := f[key]; ok {
		return v
	}
	d.errorf(parent, "missing field %q", key)
	return nil
}

func (d *decoder) typeField(parent *yaml.Node, f map[string]*yaml.Node, def kir.Type) kir.Type {
	v, ok := f["type"]
	if !ok {
		return def
	}
	t, err := kir.ParseType(v.Value)
	if err != nil {
		d.errorf(v, "%v", err)
		return def
	}
	return t
}

var stmtKinds = []string{
	"for", "realize", "producer", "consumer", "provide", "store", "allocate",
	"free", "if", "block", "eval", "call", "let", "assert",
}

func (d *decoder) stmt(n *yaml.Node) kir.Stmt {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.SequenceNode:
		return d.block(n)
	case yaml.MappingNode:
	default:
		d.errorf(n, "statement must be a mapping or a list")
		return nil
	}

	f := d.fields(n)
	kind := ""
	for _, k := range stmtKinds {
		if _, ok := f[k]; ok {
			kind = k
			break
		}
	}
	v := f[kind]
	p := pos(n)
	switch kind {
	case "for":
		lf := d.mapping(v)
		if lf == nil {
			return nil
		}
		loop := &kir.For{
			Name:   d.scalar(d.require(v, lf, "var")),
			Min:    d.expr(d.require(v, lf, "min")),
			Extent: d.expr(d.require(v, lf, "extent")),
			Body:   d.stmt(d.require(v, lf, "body")),
			Pos:    p,
		}
		if k, ok := lf["kind"]; ok {
			switch k.Value {
			case "serial":
				loop.Kind = kir.Serial
			case "parallel":
				loop.Kind = kir.Parallel
			case "vectorized":
				loop.Kind = kir.Vectorized
			case "unrolled":
				loop.Kind = kir.Unrolled
			default:
				d.errorf(k, "unknown loop kind %q", k.Value)
			}
		}
		return loop
	case "realize":
		rf := d.mapping(v)
		if rf == nil {
			return nil
		}
		return &kir.Realize{
			Name:   d.scalar(d.require(v, rf, "name")),
			Types:  []kir.Type{d.typeField(v, rf, kir.Int(32))},
			Bounds: d.ranges(d.require(v, rf, "bounds")),
			Body:   d.stmt(d.require(v, rf, "body")),
			Pos:    p,
		}
	case "producer", "consumer":
		pf := d.mapping(v)
		if pf == nil {
			return nil
		}
		return &kir.ProducerConsumer{
			Name:       d.scalar(d.require(v, pf, "name")),
			IsProducer: kind == "producer",
			Body:       d.stmt(d.require(v, pf, "body")),
			Pos:        p,
		}
	case "provide":
		pf := d.mapping(v)
		if pf == nil {
			return nil
		}
		var values []kir.Expr
		if vs, ok := pf["values"]; ok {
			values = d.exprList(vs)
		} else {
			values = []kir.Expr{d.expr(d.require(v, pf, "value"))}
		}
		return &kir.Provide{
			Name:   d.scalar(d.require(v, pf, "name")),
			Values: values,
			Args:   d.exprList(d.require(v, pf, "args")),
			Pos:    p,
		}
	case "store":
		sf := d.mapping(v)
		if sf == nil {
			return nil
		}
		return &kir.Store{
			Name:  d.scalar(d.require(v, sf, "name")),
			Value: d.expr(d.require(v, sf, "value")),
			Index: d.expr(d.require(v, sf, "index")),
			Pos:   p,
		}
	case "allocate":
		af := d.mapping(v)
		if af == nil {
			return nil
		}
		return &kir.Allocate{
			Name:    d.scalar(d.require(v, af, "name")),
			T:       d.typeField(v, af, kir.Int(32)),
			Extents: d.exprList(d.require(v, af, "extents")),
			Body:    d.stmt(d.require(v, af, "body")),
			Pos:     p,
		}
	case "free":
		return &kir.Free{Name: d.scalar(v), Pos: p}
	case "if":
		ff := d.mapping(v)
		if ff == nil {
			return nil
		}
		s := &kir.IfThenElse{
			Cond: d.expr(d.require(v, ff, "cond")),
			Then: d.stmt(d.require(v, ff, "then")),
			Pos:  p,
		}
		if e, ok := ff["else"]; ok {
			s.Else = d.stmt(e)
		}
		return s
	case "block":
		return d.block(v)
	case "eval":
		return &kir.Evaluate{Value: d.expr(v), Pos: p}
	case "call":
		return &kir.Evaluate{Value: d.expr(n), Pos: p}
	case "let":
		lf := d.mapping(v)
		if lf == nil {
			return nil
		}
		return &kir.LetStmt{
			Name:  d.scalar(d.require(v, lf, "name")),
			Value: d.expr(d.require(v, lf, "value")),
			Body:  d.stmt(d.require(v, lf, "body")),
			Pos:   p,
		}
	case "assert":
		af := d.mapping(v)
		if af == nil {
			return nil
		}
		s := &kir.AssertStmt{Cond: d.expr(d.require(v, af, "cond")), Pos: p}
		if m, ok := af["message"]; ok {
			s.Message = m.Value
		}
		return s
	default:
		d.errorf(n, "unknown statement")
		return nil
	}
}

func (d *decoder) block(n *yaml.Node) kir.Stmt {
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "block must be a list of statements")
		return nil
	}
	b := &kir.Block{Pos: pos(n)}
	for _, item := range n.Content {
		if s := d.stmt(item); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	return b
}

func (d *decoder) mapping(n *yaml.Node) map[string]*yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		d.errorf(n, "expected a mapping")
		return nil
	}
	return d.fields(n)
}

func (d *decoder) scalar(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind != yaml.ScalarNode {
		d.errorf(n, "expected a scalar")
		return ""
	}
	return n.Value
}

// ranges accepts either plain extents ([3, 3]) or [min, extent] pairs.
func (d *decoder) ranges(n *yaml.Node) []kir.Range {
	if n == nil {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "bounds must be a list")
		return nil
	}
	out := make([]kir.Range, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind == yaml.SequenceNode {
			if len(item.Content) != 2 {
				d.errorf(item, "a bound is [min, extent]")
				continue
			}
			out = append(out, kir.Range{Min: d.expr(item.Content[0]), Extent: d.expr(item.Content[1])})
			continue
		}
		out = append(out, kir.Range{Min: kir.I32(0), Extent: d.expr(item)})
	}
	return out
}

func (d *decoder) exprList(n *yaml.Node) []kir.Expr {
	if n == nil {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "expected a list of expressions")
		return nil
	}
	out := make([]kir.Expr, 0, len(n.Content))
	for _, item := range n.Content {
		out = append(out, d.expr(item))
	}
	return out
}

var exprKinds = []string{
	"int", "uint", "float", "str", "var", "cast", "not", "select", "load", "call", "let",
}

func (d *decoder) expr(n *yaml.Node) kir.Expr {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalarExpr(n)
	case yaml.MappingNode:
	default:
		d.errorf(n, "expression must be a scalar or a mapping")
		return nil
	}

	f := d.fields(n)
	for key, v := range f {
		if op, ok := kir.LookupBinaryOp(key); ok {
			ops := d.exprList(v)
			if len(ops) != 2 {
				d.errorf(v, "%s takes two operands", key)
				return nil
			}
			return kir.Bin(op, ops[0], ops[1])
		}
	}
	kind := ""
	for _, k := range exprKinds {
		if _, ok := f[k]; ok {
			kind = k
			break
		}
	}
	v := f[kind]
	switch kind {
	case "int", "uint":
		def := kir.Int(32)
		if kind == "uint" {
			def = kir.UInt(32)
		}
		t := d.typeField(n, f, def)
		val, err := strconv.ParseInt(v.Value, 0, 64)
		if err != nil {
			d.errorf(v, "bad integer %q", v.Value)
			return nil
		}
		return kir.Imm(t, val)
	case "float":
		val, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			d.errorf(v, "bad float %q", v.Value)
			return nil
		}
		return &kir.FloatImm{T: d.typeField(n, f, kir.Float(32)), Value: val}
	case "str":
		return &kir.StringImm{Value: v.Value}
	case "var":
		return kir.Var(d.typeField(n, f, kir.Int(32)), d.scalar(v))
	case "cast":
		if _, ok := f["type"]; !ok {
			d.errorf(n, "cast needs a type")
			return nil
		}
		return &kir.Cast{T: d.typeField(n, f, kir.Int(32)), Value: d.expr(v)}
	case "not":
		return &kir.Not{A: d.expr(v)}
	case "select":
		ops := d.exprList(v)
		if len(ops) != 3 {
			d.errorf(v, "select takes condition, true and false values")
			return nil
		}
		return &kir.Select{Cond: ops[0], True: ops[1], False: ops[2]}
	case "load":
		lf := d.mapping(v)
		if lf == nil {
			return nil
		}
		return &kir.Load{
			T:     d.typeField(n, f, kir.Int(32)),
			Name:  d.scalar(d.require(v, lf, "name")),
			Index: d.expr(d.require(v, lf, "index")),
		}
	case "call":
		name := d.scalar(v)
		c := &kir.Call{
			T:    d.typeField(n, f, kir.Int(32)),
			Name: name,
			Kind: callKind(name),
			Pos:  pos(n),
		}
		if args, ok := f["args"]; ok {
			c.Args = d.exprList(args)
		}
		return c
	case "let":
		lf := d.mapping(v)
		if lf == nil {
			return nil
		}
		return &kir.Let{
			Name:  d.scalar(d.require(v, lf, "name")),
			Value: d.expr(d.require(v, lf, "value")),
			Body:  d.expr(d.require(v, lf, "body")),
		}
	default:
		d.errorf(n, "unknown expression")
		return nil
	}
}

func (d *decoder) scalarExpr(n *yaml.Node) kir.Expr {
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		return &kir.StringImm{Value: n.Value}
	}
	switch n.ShortTag() {
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			d.errorf(n, "bad integer %q", n.Value)
			return nil
		}
		return kir.I32(v)
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			d.errorf(n, "bad float %q", n.Value)
			return nil
		}
		return &kir.FloatImm{T: kir.Float(32), Value: v}
	case "!!bool":
		if n.Value == "true" {
			return kir.Imm(kir.Bool(), 1)
		}
		return kir.Imm(kir.Bool(), 0)
	default:
		return kir.Var(kir.Int(32), n.Value)
	}
}

func callKind(name string) kir.CallKind {
	switch name {
	case kir.ReadStream, kir.WriteStream, kir.LineBuffer, kir.DispatchStream:
		return kir.Extern
	}
	if kir.IsStencilName(name) {
		return kir.BufferAccess
	}
	return kir.Intrinsic
}
