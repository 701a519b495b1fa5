package netsim

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a Type.
type Kind int

const (
	Ground Kind = iota
	Clock
	Vector
	Bundle
)

// Type is a FIRRTL type: a ground integer, a clock, a vector or a bundle.
type Type struct {
	Kind   Kind
	Width  int
	Signed bool
	Elem   *Type
	Len    int
	Fields []Field
}

// Field is one bundle member.
type Field struct {
	Name string
	Flip bool
	Type *Type
}

func (t *Type) field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// line is one source line with its indentation level.
type line struct {
	indent int
	text   string
	num    int
}

// stripComment removes a trailing ';' comment outside string literals.
func stripComment(s string) string {
	quoted := false
	for i, r := range s {
		switch r {
		case '"':
			quoted = !quoted
		case ';':
			if !quoted {
				return s[:i]
			}
		}
	}
	return s
}

// splitLines drops blank and comment-only lines and measures indentation
// in two-space steps.
func splitLines(src string) ([]line, error) {
	var out []line
	for n, raw := range strings.Split(src, "\n") {
		text := strings.TrimRight(stripComment(raw), " \t\r")
		body := strings.TrimLeft(text, " ")
		if body == "" {
			continue
		}
		spaces := len(text) - len(body)
		if spaces%2 != 0 {
			return nil, fmt.Errorf("line %d: odd indentation", n+1)
		}
		out = append(out, line{indent: spaces / 2, text: body, num: n + 1})
	}
	return out, nil
}

type stmt interface{ isStmt() }

type (
	portDecl struct {
		name   string
		output bool
		typ    *Type
	}
	wireDecl struct {
		name string
		typ  *Type
	}
	regDecl struct {
		name string
		typ  *Type
		init expr
	}
	memDecl struct {
		name string
		typ  *Type
	}
	instDecl struct{ name, module string }
	nodeStmt struct {
		name string
		e    expr
	}
	mportStmt struct {
		name, mem string
		idx       expr
	}
	connectStmt struct {
		dst *ref
		src expr
	}
	invalidStmt struct{ x *ref }
	whenStmt    struct {
		cond      expr
		then, els []stmt
	}
	skipStmt struct{}
)

func (portDecl) isStmt()    {}
func (wireDecl) isStmt()    {}
func (regDecl) isStmt()     {}
func (memDecl) isStmt()     {}
func (instDecl) isStmt()    {}
func (nodeStmt) isStmt()    {}
func (mportStmt) isStmt()   {}
func (connectStmt) isStmt() {}
func (invalidStmt) isStmt() {}
func (whenStmt) isStmt()    {}
func (skipStmt) isStmt()    {}

// block parses the statements at indentation level from lines[i:], and
// returns them with the index of the first line it did not consume.
func block(lines []line, i, level int) ([]stmt, int, error) {
	var out []stmt
	for i < len(lines) && lines[i].indent >= level {
		l := lines[i]
		if l.indent > level {
			return nil, i, fmt.Errorf("line %d: unexpected indentation", l.num)
		}
		if strings.HasPrefix(l.text, "when ") {
			w, next, err := when(lines, i, level, strings.TrimPrefix(l.text, "when "))
			if err != nil {
				return nil, next, err
			}
			out = append(out, w)
			i = next
			continue
		}
		if strings.HasPrefix(l.text, "else") {
			return nil, i, fmt.Errorf("line %d: else without when", l.num)
		}
		s, err := statement(l.text)
		if err != nil {
			return nil, i, fmt.Errorf("line %d: %w", l.num, err)
		}
		out = append(out, s)
		i++
	}
	return out, i, nil
}

// when parses a when statement with its else chain. header is the text
// after "when".
func when(lines []line, i, level int, header string) (*whenStmt, int, error) {
	cond, err := scopeCondition(header)
	if err != nil {
		return nil, i, fmt.Errorf("line %d: %w", lines[i].num, err)
	}
	w := &whenStmt{cond: cond}
	if w.then, i, err = block(lines, i+1, level+1); err != nil {
		return nil, i, err
	}
	if i >= len(lines) || lines[i].indent != level {
		return w, i, nil
	}
	switch text := lines[i].text; {
	case strings.HasPrefix(text, "else when "):
		inner, next, err := when(lines, i, level, strings.TrimPrefix(text, "else when "))
		if err != nil {
			return nil, next, err
		}
		w.els = []stmt{inner}
		i = next
	case text == "else :":
		if w.els, i, err = block(lines, i+1, level+1); err != nil {
			return nil, i, err
		}
	}
	return w, i, nil
}

func scopeCondition(header string) (expr, error) {
	text, ok := strings.CutSuffix(header, " :")
	if !ok {
		return nil, fmt.Errorf("scope header %q lacks ':'", header)
	}
	return parseExpr(text)
}

// statement parses one simple statement.
func statement(text string) (stmt, error) {
	word, rest, _ := strings.Cut(text, " ")
	switch word {
	case "skip":
		return skipStmt{}, nil
	case "input", "output":
		name, t, err := declaration(rest)
		if err != nil {
			return nil, err
		}
		return &portDecl{name: name, output: word == "output", typ: t}, nil
	case "wire":
		name, t, err := declaration(rest)
		if err != nil {
			return nil, err
		}
		return &wireDecl{name: name, typ: t}, nil
	case "cmem":
		name, t, err := declaration(rest)
		if err != nil {
			return nil, err
		}
		if t.Kind != Vector {
			return nil, fmt.Errorf("memory %s is not a vector", name)
		}
		return &memDecl{name: name, typ: t}, nil
	case "reg":
		return register(rest)
	case "inst":
		name, module, ok := strings.Cut(rest, " of ")
		if !ok {
			return nil, fmt.Errorf("malformed instance %q", text)
		}
		return &instDecl{name: name, module: module}, nil
	case "node":
		name, e, ok := strings.Cut(rest, " = ")
		if !ok {
			return nil, fmt.Errorf("malformed node %q", text)
		}
		x, err := parseExpr(e)
		if err != nil {
			return nil, err
		}
		return &nodeStmt{name: name, e: x}, nil
	case "infer":
		return mport(rest)
	}
	if x, ok := strings.CutSuffix(text, " is invalid"); ok {
		r, err := parseRef(x)
		if err != nil {
			return nil, err
		}
		return &invalidStmt{x: r}, nil
	}
	if dst, src, ok := strings.Cut(text, " <= "); ok {
		r, err := parseRef(dst)
		if err != nil {
			return nil, err
		}
		e, err := parseExpr(src)
		if err != nil {
			return nil, err
		}
		return &connectStmt{dst: r, src: e}, nil
	}
	return nil, fmt.Errorf("unsupported statement %q", text)
}

func declaration(rest string) (string, *Type, error) {
	name, ts, ok := strings.Cut(rest, " : ")
	if !ok {
		return "", nil, fmt.Errorf("malformed declaration %q", rest)
	}
	t, err := parseType(ts)
	return name, t, err
}

func register(rest string) (stmt, error) {
	at := strings.LastIndex(rest, ", clock")
	if at < 0 {
		return nil, fmt.Errorf("register %q has no clock", rest)
	}
	name, t, err := declaration(rest[:at])
	if err != nil {
		return nil, err
	}
	r := &regDecl{name: name, typ: t}
	tail := rest[at+len(", clock"):]
	if tail == "" {
		return r, nil
	}
	init, ok := strings.CutPrefix(tail, " with : (reset => (reset, ")
	if !ok {
		return nil, fmt.Errorf("register %s: malformed reset %q", name, tail)
	}
	init, ok = strings.CutSuffix(init, "))")
	if !ok {
		return nil, fmt.Errorf("register %s: malformed reset %q", name, tail)
	}
	if r.init, err = parseExpr(init); err != nil {
		return nil, err
	}
	return r, nil
}

func mport(rest string) (stmt, error) {
	rest, ok := strings.CutPrefix(rest, "mport ")
	if !ok {
		return nil, fmt.Errorf("unsupported statement %q", "infer "+rest)
	}
	name, rhs, ok := strings.Cut(rest, " = ")
	if !ok {
		return nil, fmt.Errorf("malformed port %q", rest)
	}
	rhs, ok = strings.CutSuffix(rhs, ", clock")
	if !ok {
		return nil, fmt.Errorf("port %s has no clock", name)
	}
	r, err := parseRef(rhs)
	if err != nil {
		return nil, err
	}
	if len(r.path) != 1 || r.path[0].field != "" {
		return nil, fmt.Errorf("port %s does not address one memory word", name)
	}
	idx := r.path[0].dyn
	if idx == nil {
		idx = &lit{v: value{bits: uint64(r.path[0].index), width: widthOf(uint64(r.path[0].index))}}
	}
	return &mportStmt{name: name, mem: r.root, idx: idx}, nil
}

// expr is a parsed expression: a literal, a reference or a primitive
// operation.
type expr interface{ isExpr() }

type (
	lit struct{ v value }
	ref struct {
		root string
		path []access
	}
	prim struct {
		op     string
		args   []expr
		consts []int
	}
)

// access selects a field or an element; dyn is set for a computed index.
type access struct {
	field string
	index int
	dyn   expr
}

func (*lit) isExpr()  {}
func (*ref) isExpr()  {}
func (*prim) isExpr() {}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) errorf(format string, args ...any) error {
	return fmt.Errorf("%q at %d: %s", sc.s, sc.pos, fmt.Sprintf(format, args...))
}

func (sc *scanner) space() {
	for sc.pos < len(sc.s) && sc.s[sc.pos] == ' ' {
		sc.pos++
	}
}

func (sc *scanner) peek() byte {
	sc.space()
	if sc.pos < len(sc.s) {
		return sc.s[sc.pos]
	}
	return 0
}

func (sc *scanner) accept(tok string) bool {
	sc.space()
	if strings.HasPrefix(sc.s[sc.pos:], tok) {
		sc.pos += len(tok)
		return true
	}
	return false
}

func (sc *scanner) expect(tok string) error {
	if !sc.accept(tok) {
		return sc.errorf("want %q", tok)
	}
	return nil
}

func isIdent(c byte, first bool) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (!first && c >= '0' && c <= '9')
}

func (sc *scanner) ident() (string, error) {
	sc.space()
	start := sc.pos
	for sc.pos < len(sc.s) && isIdent(sc.s[sc.pos], sc.pos == start) {
		sc.pos++
	}
	if sc.pos == start {
		return "", sc.errorf("want an identifier")
	}
	return sc.s[start:sc.pos], nil
}

func (sc *scanner) number() (int, error) {
	sc.space()
	start := sc.pos
	if sc.pos < len(sc.s) && sc.s[sc.pos] == '-' {
		sc.pos++
	}
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	n, err := strconv.Atoi(sc.s[start:sc.pos])
	if err != nil {
		return 0, sc.errorf("want a number")
	}
	return n, nil
}

func (sc *scanner) digitNext() bool {
	c := sc.peek()
	if c == '-' && sc.pos+1 < len(sc.s) {
		c = sc.s[sc.pos+1]
	}
	return c >= '0' && c <= '9'
}

func (sc *scanner) done() error {
	if sc.peek() != 0 {
		return sc.errorf("trailing text")
	}
	return nil
}

// parseType parses a type such as {flip ready : UInt<1>, value : UInt<8>[3]}.
func parseType(s string) (*Type, error) {
	sc := &scanner{s: s}
	t, err := sc.typ()
	if err != nil {
		return nil, err
	}
	return t, sc.done()
}

func (sc *scanner) typ() (*Type, error) {
	var t *Type
	switch {
	case sc.accept("Clock"):
		t = &Type{Kind: Clock, Width: 1}
	case sc.accept("UInt<"), sc.accept("SInt<"):
		signed := sc.s[sc.pos-5] == 'S'
		w, err := sc.number()
		if err != nil {
			return nil, err
		}
		if err := sc.expect(">"); err != nil {
			return nil, err
		}
		t = &Type{Kind: Ground, Width: w, Signed: signed}
	case sc.accept("{"):
		t = &Type{Kind: Bundle}
		for !sc.accept("}") {
			if len(t.Fields) > 0 {
				if err := sc.expect(","); err != nil {
					return nil, err
				}
			}
			var f Field
			if sc.accept("flip ") {
				f.Flip = true
			}
			name, err := sc.ident()
			if err != nil {
				return nil, err
			}
			if err := sc.expect(":"); err != nil {
				return nil, err
			}
			if f.Type, err = sc.typ(); err != nil {
				return nil, err
			}
			f.Name = name
			t.Fields = append(t.Fields, f)
		}
	default:
		return nil, sc.errorf("want a type")
	}
	for sc.accept("[") {
		n, err := sc.number()
		if err != nil {
			return nil, err
		}
		if err := sc.expect("]"); err != nil {
			return nil, err
		}
		t = &Type{Kind: Vector, Elem: t, Len: n}
	}
	return t, nil
}

func parseExpr(s string) (expr, error) {
	sc := &scanner{s: s}
	e, err := sc.expr()
	if err != nil {
		return nil, err
	}
	return e, sc.done()
}

func parseRef(s string) (*ref, error) {
	e, err := parseExpr(s)
	if err != nil {
		return nil, err
	}
	r, ok := e.(*ref)
	if !ok {
		return nil, fmt.Errorf("%q is not a reference", s)
	}
	return r, nil
}

func (sc *scanner) expr() (expr, error) {
	sc.space()
	if rest := sc.s[sc.pos:]; strings.HasPrefix(rest, "UInt<") || strings.HasPrefix(rest, "SInt<") {
		return sc.literal()
	}
	name, err := sc.ident()
	if err != nil {
		return nil, err
	}
	if sc.pos < len(sc.s) && sc.s[sc.pos] == '(' {
		if _, ok := arity[name]; !ok {
			return nil, sc.errorf("unsupported primitive %s", name)
		}
		sc.pos++
		p := &prim{op: name}
		for !sc.accept(")") {
			if len(p.args)+len(p.consts) > 0 {
				if err := sc.expect(","); err != nil {
					return nil, err
				}
			}
			if sc.digitNext() {
				n, err := sc.number()
				if err != nil {
					return nil, err
				}
				p.consts = append(p.consts, n)
				continue
			}
			arg, err := sc.expr()
			if err != nil {
				return nil, err
			}
			p.args = append(p.args, arg)
		}
		return p, nil
	}
	r := &ref{root: name}
	for {
		switch {
		case sc.accept("."):
			f, err := sc.ident()
			if err != nil {
				return nil, err
			}
			r.path = append(r.path, access{field: f})
		case sc.accept("["):
			var a access
			if sc.digitNext() {
				if a.index, err = sc.number(); err != nil {
					return nil, err
				}
			} else if a.dyn, err = sc.expr(); err != nil {
				return nil, err
			}
			if err := sc.expect("]"); err != nil {
				return nil, err
			}
			r.path = append(r.path, a)
		default:
			return r, nil
		}
	}
}

// literal parses UInt<w>(n), SInt<w>(-n) and the quoted radix forms such
// as UInt<32>("h40").
func (sc *scanner) literal() (expr, error) {
	signed := sc.s[sc.pos] == 'S'
	sc.pos += len("UInt<")
	w, err := sc.number()
	if err != nil {
		return nil, err
	}
	if err := sc.expect(">"); err != nil {
		return nil, err
	}
	if err := sc.expect("("); err != nil {
		return nil, err
	}
	var x int64
	if sc.accept(`"`) {
		end := strings.IndexByte(sc.s[sc.pos:], '"')
		if end < 2 {
			return nil, sc.errorf("malformed literal")
		}
		digits := sc.s[sc.pos : sc.pos+end]
		sc.pos += end + 1
		base := map[byte]int{'h': 16, 'o': 8, 'b': 2}[digits[0]]
		if base == 0 {
			return nil, sc.errorf("unknown radix %q", digits[0])
		}
		u, err := strconv.ParseUint(digits[1:], base, 64)
		if err != nil {
			return nil, sc.errorf("%v", err)
		}
		x = int64(u)
	} else {
		n, err := sc.integer()
		if err != nil {
			return nil, err
		}
		x = n
	}
	if err := sc.expect(")"); err != nil {
		return nil, err
	}
	return &lit{v: mk(x, w, signed)}, nil
}

func (sc *scanner) integer() (int64, error) {
	sc.space()
	start := sc.pos
	if sc.pos < len(sc.s) && sc.s[sc.pos] == '-' {
		sc.pos++
	}
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	n, err := strconv.ParseInt(sc.s[start:sc.pos], 10, 64)
	if err != nil {
		return 0, sc.errorf("want an integer")
	}
	return n, nil
}
