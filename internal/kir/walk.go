package kir

// Inspect traverses the tree rooted at node (a Stmt or an Expr) in
// depth-first order. fn is called for every Stmt and Expr; returning false
// prunes that subtree.
func Inspect(node any, fn func(any) bool) {
	switch n := node.(type) {
	case nil:
		return
	case Stmt:
		inspectStmt(n, fn)
	case Expr:
		inspectExpr(n, fn)
	}
}

func inspectStmt(s Stmt, fn func(any) bool) {
	if s == nil || !fn(s) {
		return
	}
	switch n := s.(type) {
	case *For:
		inspectExpr(n.Min, fn)
		inspectExpr(n.Extent, fn)
		inspectStmt(n.Body, fn)
	case *Realize:
		for _, r := range n.Bounds {
			inspectExpr(r.Min, fn)
			inspectExpr(r.Extent, fn)
		}
		inspectStmt(n.Body, fn)
	case *ProducerConsumer:
		inspectStmt(n.Body, fn)
	case *Provide:
		for _, v := range n.Values {
			inspectExpr(v, fn)
		}
		for _, a := range n.Args {
			inspectExpr(a, fn)
		}
	case *Store:
		inspectExpr(n.Value, fn)
		inspectExpr(n.Index, fn)
	case *Allocate:
		for _, e := range n.Extents {
			inspectExpr(e, fn)
		}
		inspectStmt(n.Body, fn)
	case *IfThenElse:
		inspectExpr(n.Cond, fn)
		inspectStmt(n.Then, fn)
		inspectStmt(n.Else, fn)
	case *Block:
		for _, st := range n.Stmts {
			inspectStmt(st, fn)
		}
	case *Evaluate:
		inspectExpr(n.Value, fn)
	case *LetStmt:
		inspectExpr(n.Value, fn)
		inspectStmt(n.Body, fn)
	case *AssertStmt:
		inspectExpr(n.Cond, fn)
	}
}

func inspectExpr(e Expr, fn func(any) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Cast:
		inspectExpr(n.Value, fn)
	case *Binary:
		inspectExpr(n.A, fn)
		inspectExpr(n.B, fn)
	case *Not:
		inspectExpr(n.A, fn)
	case *Select:
		inspectExpr(n.Cond, fn)
		inspectExpr(n.True, fn)
		inspectExpr(n.False, fn)
	case *Load:
		inspectExpr(n.Index, fn)
	case *Call:
		for _, a := range n.Args {
			inspectExpr(a, fn)
		}
	case *Let:
		inspectExpr(n.Value, fn)
		inspectExpr(n.Body, fn)
	}
}

// ContainsFor reports whether s has a loop anywhere below it.
func ContainsFor(s Stmt) bool {
	found := false
	Inspect(s, func(n any) bool {
		if _, ok := n.(*For); ok {
			found = true
		}
		return !found
	})
	return found
}

// ContainsRealize reports whether s realizes any buffer.
func ContainsRealize(s Stmt) bool {
	found := false
	Inspect(s, func(n any) bool {
		if _, ok := n.(*Realize); ok {
			found = true
		}
		return !found
	})
	return found
}

// ContainsCall reports whether s calls the named extern or intrinsic.
func ContainsCall(s Stmt, name string) bool {
	found := false
	Inspect(s, func(n any) bool {
		if c, ok := n.(*Call); ok && c.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// FreeNames lists, in first-use order, the variables and buffers s refers to
// that are not bound inside s. Names in bound are treated as already bound.
// Arguments of stream intrinsics are skipped since they are wired by the
// intrinsic itself.
func FreeNames(s Stmt, bound ...string) []string {
	f := &freeNames{seen: make(map[string]bool)}
	scope := make(map[string]int)
	for _, b := range bound {
		scope[b]++
	}
	f.scope = scope
	f.stmt(s)
	return f.out
}

type freeNames struct {
	scope map[string]int
	seen  map[string]bool
	out   []string
}

func (f *freeNames) use(name string) {
	if f.scope[name] > 0 || f.seen[name] {
		return
	}
	f.seen[name] = true
	f.out = append(f.out, name)
}

func (f *freeNames) bind(name string)   { f.scope[name]++ }
func (f *freeNames) unbind(name string) { f.scope[name]-- }

func (f *freeNames) stmt(s Stmt) {
	switch n := s.(type) {
	case nil:
	case *For:
		f.expr(n.Min)
		f.expr(n.Extent)
		f.bind(n.Name)
		f.stmt(n.Body)
		f.unbind(n.Name)
	case *Realize:
		for _, r := range n.Bounds {
			f.expr(r.Min)
			f.expr(r.Extent)
		}
		f.bind(n.Name)
		f.stmt(n.Body)
		f.unbind(n.Name)
	case *ProducerConsumer:
		f.stmt(n.Body)
	case *Provide:
		for _, v := range n.Values {
			f.expr(v)
		}
		for _, a := range n.Args {
			f.expr(a)
		}
		f.use(n.Name)
	case *Store:
		f.expr(n.Value)
		f.expr(n.Index)
		f.use(n.Name)
	case *Allocate:
		for _, e := range n.Extents {
			f.expr(e)
		}
		f.bind(n.Name)
		f.stmt(n.Body)
		f.unbind(n.Name)
	case *IfThenElse:
		f.expr(n.Cond)
		f.stmt(n.Then)
		f.stmt(n.Else)
	case *Block:
		for _, st := range n.Stmts {
			f.stmt(st)
		}
	case *Evaluate:
		f.expr(n.Value)
	case *LetStmt:
		f.expr(n.Value)
		f.bind(n.Name)
		f.stmt(n.Body)
		f.unbind(n.Name)
	case *AssertStmt:
		f.expr(n.Cond)
	}
}

func (f *freeNames) expr(e Expr) {
	switch n := e.(type) {
	case nil:
	case *Variable:
		f.use(n.Name)
	case *Cast:
		f.expr(n.Value)
	case *Binary:
		f.expr(n.A)
		f.expr(n.B)
	case *Not:
		f.expr(n.A)
	case *Select:
		f.expr(n.Cond)
		f.expr(n.True)
		f.expr(n.False)
	case *Load:
		f.expr(n.Index)
		f.use(n.Name)
	case *Call:
		switch n.Name {
		case ReadStream, WriteStream, LineBuffer, DispatchStream:
			return
		}
		for _, a := range n.Args {
			f.expr(a)
		}
		if n.Kind == BufferAccess {
			f.use(n.Name)
		}
	case *Let:
		f.expr(n.Value)
		f.bind(n.Name)
		f.expr(n.Body)
		f.unbind(n.Name)
	}
}
