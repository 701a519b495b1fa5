package kir

// SubstituteExpr replaces free occurrences of the variable name in e.
func SubstituteExpr(name string, repl Expr, e Expr) Expr {
	r := &rewriter{vars: map[string]Expr{name: repl}}
	return r.expr(e)
}

// SubstituteStmt replaces free occurrences of the variable name in s.
func SubstituteStmt(name string, repl Expr, s Stmt) Stmt {
	r := &rewriter{vars: map[string]Expr{name: repl}}
	return r.stmt(s)
}

// RenameBuffer renames every load, store, provide and access of buffer from
// to to.
func RenameBuffer(from, to string, s Stmt) Stmt {
	r := &rewriter{buffers: map[string]string{from: to}}
	return r.stmt(s)
}

type rewriter struct {
	vars    map[string]Expr
	buffers map[string]string
}

// shadow returns a rewriter that no longer substitutes name.
func (r *rewriter) shadow(name string) *rewriter {
	if _, ok := r.vars[name]; !ok {
		return r
	}
	vars := make(map[string]Expr, len(r.vars))
	for k, v := range r.vars {
		if k != name {
			vars[k] = v
		}
	}
	return &rewriter{vars: vars, buffers: r.buffers}
}

func (r *rewriter) buffer(name string) string {
	if to, ok := r.buffers[name]; ok {
		return to
	}
	return name
}

func (r *rewriter) exprs(in []Expr) []Expr {
	if in == nil {
		return nil
	}
	out := make([]Expr, len(in))
	for i, e := range in {
		out[i] = r.expr(e)
	}
	return out
}

func (r *rewriter) expr(e Expr) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Variable:
		if repl, ok := r.vars[n.Name]; ok {
			return repl
		}
		if to, ok := r.buffers[n.Name]; ok {
			return &Variable{T: n.T, Name: to}
		}
		return n
	case *Cast:
		return &Cast{T: n.T, Value: r.expr(n.Value)}
	case *Binary:
		return &Binary{Op: n.Op, A: r.expr(n.A), B: r.expr(n.B)}
	case *Not:
		return &Not{A: r.expr(n.A)}
	case *Select:
		return &Select{Cond: r.expr(n.Cond), True: r.expr(n.True), False: r.expr(n.False)}
	case *Load:
		return &Load{T: n.T, Name: r.buffer(n.Name), Index: r.expr(n.Index)}
	case *Call:
		name := n.Name
		if n.Kind == BufferAccess {
			name = r.buffer(name)
		}
		return &Call{T: n.T, Name: name, Args: r.exprs(n.Args), Kind: n.Kind, Pos: n.Pos}
	case *Let:
		return &Let{Name: n.Name, Value: r.expr(n.Value), Body: r.shadow(n.Name).expr(n.Body)}
	default:
		return e
	}
}

func (r *rewriter) stmt(s Stmt) Stmt {
	switch n := s.(type) {
	case nil:
		return nil
	case *For:
		return &For{Name: n.Name, Min: r.expr(n.Min), Extent: r.expr(n.Extent), Kind: n.Kind,
			Body: r.shadow(n.Name).stmt(n.Body), Pos: n.Pos}
	case *Realize:
		bounds := make([]Range, len(n.Bounds))
		for i, b := range n.Bounds {
			bounds[i] = Range{Min: r.expr(b.Min), Extent: r.expr(b.Extent)}
		}
		return &Realize{Name: r.buffer(n.Name), Types: n.Types, Bounds: bounds, Body: r.stmt(n.Body), Pos: n.Pos}
	case *ProducerConsumer:
		return &ProducerConsumer{Name: n.Name, IsProducer: n.IsProducer, Body: r.stmt(n.Body), Pos: n.Pos}
	case *Provide:
		return &Provide{Name: r.buffer(n.Name), Values: r.exprs(n.Values), Args: r.exprs(n.Args), Pos: n.Pos}
	case *Store:
		return &Store{Name: r.buffer(n.Name), Value: r.expr(n.Value), Index: r.expr(n.Index), Pos: n.Pos}
	case *Allocate:
		return &Allocate{Name: r.buffer(n.Name), T: n.T, Extents: r.exprs(n.Extents), Body: r.stmt(n.Body), Pos: n.Pos}
	case *Free:
		return &Free{Name: r.buffer(n.Name), Pos: n.Pos}
	case *IfThenElse:
		return &IfThenElse{Cond: r.expr(n.Cond), Then: r.stmt(n.Then), Else: r.stmt(n.Else), Pos: n.Pos}
	case *Block:
		stmts := make([]Stmt, len(n.Stmts))
		for i, st := range n.Stmts {
			stmts[i] = r.stmt(st)
		}
		return &Block{Stmts: stmts, Pos: n.Pos}
	case *Evaluate:
		return &Evaluate{Value: r.expr(n.Value), Pos: n.Pos}
	case *LetStmt:
		return &LetStmt{Name: n.Name, Value: r.expr(n.Value), Body: r.shadow(n.Name).stmt(n.Body), Pos: n.Pos}
	case *AssertStmt:
		return &AssertStmt{Cond: r.expr(n.Cond), Message: n.Message, Pos: n.Pos}
	default:
		return s
	}
}

// EuclideanDiv rewrites a / b for signed operands so the remainder is never
// negative: q = a/b rounded to zero, then corrected by the signs of the
// remainder and divisor.
func EuclideanDiv(a, b Expr) Expr {
	t := a.Type()
	if !t.Signed() {
		return Intr(t, DivRoundToZero, a, b)
	}
	shift := Imm(t, int64(t.Bits-1))
	q := Intr(t, DivRoundToZero, a, b)
	r := Bin(Sub, a, Bin(Mul, q, b))
	bs := Intr(t, ShiftRight, b, shift)
	rs := Intr(t, ShiftRight, r, shift)
	down := Intr(t, BitwiseAnd, rs, bs)
	up := Intr(t, BitwiseAnd, rs, Intr(t, BitwiseNot, bs))
	return Bin(Add, Bin(Sub, q, down), up)
}

// EuclideanMod rewrites a % b for signed operands so the result lies in
// [0, |b|).
func EuclideanMod(a, b Expr) Expr {
	t := a.Type()
	if !t.Signed() {
		return Intr(t, ModRoundToZero, a, b)
	}
	shift := Imm(t, int64(t.Bits-1))
	r := Intr(t, ModRoundToZero, a, b)
	sign := Intr(t, ShiftRight, r, shift)
	absB := &Select{Cond: Bin(LT, b, Imm(t, 0)), True: Bin(Sub, Imm(t, 0), b), False: b}
	return Bin(Add, r, Intr(t, BitwiseAnd, sign, absB))
}
