// Package netsim runs FIRRTL modules cycle by cycle. It understands the
// subset the emitter prints: ground, vector and bundle types, wires,
// registers with or without reset, combinational memories with inferred
// ports, instances, nodes, last-connect semantics and when/else scopes.
//
// Instances are flattened into one netlist. Every clock, the
// combinational values are recomputed until they settle; registers and
// memories then take the values connected to them.
package netsim

import (
	"fmt"
	"strings"
)

// Circuit holds the module bodies of one FIRRTL circuit. Bodies are parsed
// when a module is first instantiated.
type Circuit struct {
	Name    string
	src     map[string][]line
	modules map[string][]stmt
}

// Parse splits a circuit into its modules.
func Parse(text string) (*Circuit, error) {
	lines, err := splitLines(text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[0].indent != 0 || !strings.HasPrefix(lines[0].text, "circuit ") {
		return nil, fmt.Errorf("netsim: no circuit header")
	}
	c := &Circuit{
		Name:    strings.TrimSuffix(strings.TrimPrefix(lines[0].text, "circuit "), " :"),
		src:     make(map[string][]line),
		modules: make(map[string][]stmt),
	}
	var cur string
	for _, l := range lines[1:] {
		switch {
		case l.indent == 1:
			name, ok := strings.CutPrefix(l.text, "module ")
			if !ok {
				return nil, fmt.Errorf("netsim: line %d: want a module", l.num)
			}
			cur = strings.TrimSuffix(name, " :")
			if _, dup := c.src[cur]; dup {
				return nil, fmt.Errorf("netsim: module %s defined twice", cur)
			}
			c.src[cur] = nil
		case l.indent >= 2 && cur != "":
			l.indent -= 2
			c.src[cur] = append(c.src[cur], l)
		default:
			return nil, fmt.Errorf("netsim: line %d: statement outside a module", l.num)
		}
	}
	return c, nil
}

// Modules returns the number of modules in the circuit.
func (c *Circuit) Modules() int { return len(c.src) }

func (c *Circuit) body(name string) ([]stmt, error) {
	if b, ok := c.modules[name]; ok {
		return b, nil
	}
	lines, ok := c.src[name]
	if !ok {
		return nil, fmt.Errorf("netsim: no module %s", name)
	}
	b, _, err := block(lines, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("netsim: module %s: %w", name, err)
	}
	c.modules[name] = b
	return b, nil
}

type role int

const (
	roleIn role = iota
	roleOut
	roleWire
	roleReg
	roleMem
	roleMport
	roleNode
	roleInst
)

type symbol struct {
	role role
	typ  *Type
	// root marks the ports of the instantiated module, which the caller
	// drives.
	root bool
	// mem names the memory an inferred port addresses.
	mem string
}

// scope resolves the names of one module instance. Every name it declares
// is stored in the netlist under prefix+name.
type scope struct {
	module string
	prefix string
	syms   map[string]*symbol
}

type program struct {
	sc    *scope
	stmts []stmt
}

type memWrite struct {
	name string
	v    value
}

// Sim is an elaborated module.
type Sim struct {
	name     string
	programs []program
	inputs   map[string]value
	inTypes  map[string]*Type
	leaves   map[string]*Type
	state    map[string]value
	prev     map[string]value
	cur      map[string]value
	regNext  map[string]value
	writes   []memWrite
	alias    map[string]string
	settled  bool
}

// maxPasses bounds the settling of combinational values in one cycle.
const maxPasses = 1000

// Instantiate elaborates module name and its instances, reset.
func (c *Circuit) Instantiate(name string) (*Sim, error) {
	s := &Sim{
		name:    name,
		inputs:  make(map[string]value),
		inTypes: make(map[string]*Type),
		leaves:  make(map[string]*Type),
		state:   make(map[string]value),
		prev:    make(map[string]value),
	}
	if _, err := s.elaborate(c, name, "", true, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// elaborate declares the names of module in a fresh scope, elaborates its
// instances and queues its statements. It returns the port bundle the
// parent sees.
func (s *Sim) elaborate(c *Circuit, module, prefix string, root bool, parents []string) (*Type, error) {
	for _, p := range parents {
		if p == module {
			return nil, fmt.Errorf("netsim: module %s instantiates itself", module)
		}
	}
	body, err := c.body(module)
	if err != nil {
		return nil, err
	}
	sc := &scope{module: module, prefix: prefix, syms: make(map[string]*symbol)}
	ports := &Type{Kind: Bundle}
	if err := s.declare(c, sc, body, root, append(parents, module), ports); err != nil {
		return nil, fmt.Errorf("netsim: module %s: %w", module, err)
	}
	s.programs = append(s.programs, program{sc: sc, stmts: body})
	return ports, nil
}

func (s *Sim) declare(c *Circuit, sc *scope, stmts []stmt, root bool, parents []string, ports *Type) error {
	add := func(name string, sym *symbol) error {
		if _, dup := sc.syms[name]; dup {
			return fmt.Errorf("%s declared twice", name)
		}
		sc.syms[name] = sym
		return nil
	}
	for _, st := range stmts {
		switch st := st.(type) {
		case *portDecl:
			sym := &symbol{role: roleIn, typ: st.typ, root: root}
			if st.output {
				sym.role = roleOut
			}
			if err := add(st.name, sym); err != nil {
				return err
			}
			// The parent sees the outputs of an instance flipped.
			ports.Fields = append(ports.Fields, Field{Name: st.name, Flip: st.output, Type: st.typ})
			s.collect(sc.prefix+st.name, st.typ, sym)
		case *wireDecl:
			sym := &symbol{role: roleWire, typ: st.typ}
			if err := add(st.name, sym); err != nil {
				return err
			}
			s.collect(sc.prefix+st.name, st.typ, sym)
		case *regDecl:
			sym := &symbol{role: roleReg, typ: st.typ}
			if err := add(st.name, sym); err != nil {
				return err
			}
			var init value
			if st.init != nil {
				l, ok := st.init.(*lit)
				if !ok {
					return fmt.Errorf("register %s resets to a non-literal", st.name)
				}
				init = l.v
			}
			eachLeaf(sc.prefix+st.name, st.typ, 0, func(name string, g *Type, _ int) {
				s.leaves[name] = g
				s.state[name] = fit(init, g)
			})
		case *memDecl:
			sym := &symbol{role: roleMem, typ: st.typ}
			if err := add(st.name, sym); err != nil {
				return err
			}
			eachLeaf(sc.prefix+st.name, st.typ, 0, func(name string, g *Type, _ int) {
				s.leaves[name] = g
				s.state[name] = fit(value{}, g)
			})
		case *mportStmt:
			mem, ok := sc.syms[st.mem]
			if !ok || mem.role != roleMem {
				return fmt.Errorf("port %s addresses %s, which is not a memory", st.name, st.mem)
			}
			if err := add(st.name, &symbol{role: roleMport, typ: mem.typ.Elem, mem: st.mem}); err != nil {
				return err
			}
		case *nodeStmt:
			if err := add(st.name, &symbol{role: roleNode}); err != nil {
				return err
			}
		case *instDecl:
			t, err := s.elaborate(c, st.module, sc.prefix+st.name+".", false, parents)
			if err != nil {
				return err
			}
			if err := add(st.name, &symbol{role: roleInst, typ: t}); err != nil {
				return err
			}
		case *whenStmt:
			if err := s.declare(c, sc, st.then, root, parents, ports); err != nil {
				return err
			}
			if err := s.declare(c, sc, st.els, root, parents, ports); err != nil {
				return err
			}
		}
	}
	return nil
}

// collect records the leaves of a port or wire; the caller drives the
// leaves of a root port that the module reads.
func (s *Sim) collect(name string, t *Type, sym *symbol) {
	eachLeaf(name, t, 0, func(leaf string, g *Type, parity int) {
		s.leaves[leaf] = g
		if kindOf(sym, parity) == leafInput {
			s.inTypes[leaf] = g
			s.inputs[leaf] = fit(value{}, g)
		}
	})
}

// eachLeaf visits the ground leaves of t below name. parity counts the
// flipped fields on the way down from name.
func eachLeaf(name string, t *Type, parity int, fn func(name string, g *Type, parity int)) {
	switch t.Kind {
	case Vector:
		for i := 0; i < t.Len; i++ {
			eachLeaf(fmt.Sprintf("%s[%d]", name, i), t.Elem, parity, fn)
		}
	case Bundle:
		for _, f := range t.Fields {
			p := parity
			if f.Flip {
				p++
			}
			eachLeaf(name+"."+f.Name, f.Type, p, fn)
		}
	default:
		fn(name, t, parity)
	}
}

type leafKind int

const (
	leafComb leafKind = iota
	leafInput
	leafState
	leafNode
)

// kindOf classifies a leaf of sym reached through parity flips.
func kindOf(sym *symbol, parity int) leafKind {
	switch sym.role {
	case roleReg, roleMem, roleMport:
		return leafState
	case roleNode:
		return leafNode
	case roleIn:
		if sym.root && parity%2 == 0 {
			return leafInput
		}
	case roleOut:
		if sym.root && parity%2 == 1 {
			return leafInput
		}
	}
	return leafComb
}

// sink reports whether the module may drive a leaf of sym reached through
// parity flips.
func sink(sym *symbol, parity int) bool {
	switch sym.role {
	case roleIn:
		return parity%2 == 1
	case roleOut, roleWire, roleInst:
		return parity%2 == 0
	}
	return false
}

// Poke sets an input leaf of the instantiated module, such as
// "data_in.valid" or "io.in.bits.value[0][0][0][0]".
func (s *Sim) Poke(name string, v int64) error {
	t, ok := s.inTypes[name]
	if !ok {
		return fmt.Errorf("netsim: %s has no input %s", s.name, name)
	}
	s.inputs[name] = mk(v, t.Width, t.Signed)
	s.settled = false
	return nil
}

// Peek returns a settled value: a port, wire, node, register or memory
// leaf. Registers and memories show the value of the current cycle.
func (s *Sim) Peek(name string) (int64, error) {
	if !s.settled {
		if err := s.Eval(); err != nil {
			return 0, err
		}
	}
	if v, ok := s.inputs[name]; ok {
		return v.int(), nil
	}
	if v, ok := s.state[name]; ok {
		return v.int(), nil
	}
	if v, ok := s.prev[name]; ok {
		return v.int(), nil
	}
	if _, ok := s.leaves[name]; ok {
		return 0, nil
	}
	return 0, fmt.Errorf("netsim: %s has no signal %s", s.name, name)
}

// Eval settles the combinational values for the current inputs and
// register state.
func (s *Sim) Eval() error {
	for pass := 0; pass < maxPasses; pass++ {
		s.cur = make(map[string]value, len(s.prev))
		s.regNext = make(map[string]value)
		s.writes = s.writes[:0]
		s.alias = make(map[string]string)
		for _, p := range s.programs {
			if err := s.exec(p.sc, p.stmts); err != nil {
				return fmt.Errorf("netsim: %s: %w", p.sc.module, err)
			}
		}
		same := sameValues(s.cur, s.prev)
		s.prev = s.cur
		if same {
			s.settled = true
			return nil
		}
	}
	return fmt.Errorf("netsim: %s does not settle in %d passes", s.name, maxPasses)
}

// Tick advances one clock: registers and memories take the values
// connected to them in the settled cycle.
func (s *Sim) Tick() error {
	if !s.settled {
		if err := s.Eval(); err != nil {
			return err
		}
	}
	for name, v := range s.regNext {
		s.state[name] = v
	}
	for _, w := range s.writes {
		s.state[w.name] = w.v
	}
	s.settled = false
	return nil
}

func sameValues(a, b map[string]value) bool {
	for k, v := range a {
		if b[k].bits != v.bits {
			return false
		}
	}
	for k, v := range b {
		if a[k].bits != v.bits {
			return false
		}
	}
	return true
}

func (s *Sim) exec(sc *scope, stmts []stmt) error {
	for _, st := range stmts {
		switch st := st.(type) {
		case *whenStmt:
			c, err := s.eval(sc, st.cond)
			if err != nil {
				return err
			}
			branch := st.els
			if c.truth() {
				branch = st.then
			}
			if err := s.exec(sc, branch); err != nil {
				return err
			}
		case *nodeStmt:
			v, err := s.eval(sc, st.e)
			if err != nil {
				return fmt.Errorf("node %s: %w", st.name, err)
			}
			s.cur[sc.prefix+st.name] = v
		case *mportStmt:
			idx, err := s.eval(sc, st.idx)
			if err != nil {
				return fmt.Errorf("port %s: %w", st.name, err)
			}
			name := sc.prefix + st.name
			if mem := sc.syms[st.mem]; idx.bits < uint64(mem.typ.Len) {
				s.alias[name] = fmt.Sprintf("%s%s[%d]", sc.prefix, st.mem, idx.bits)
			} else {
				delete(s.alias, name)
			}
		case *connectStmt:
			if err := s.connect(sc, st); err != nil {
				return err
			}
		case *invalidStmt:
			p, err := s.resolve(sc, st.x)
			if err != nil {
				return err
			}
			for _, leaf := range p.leaves() {
				if sink(leaf.sym, leaf.parity) {
					if err := s.write(leaf, value{}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// place is a resolved reference. An empty name marks an element outside
// its vector or an unbound memory port: it reads as zero and ignores
// writes.
type place struct {
	name   string
	typ    *Type
	sym    *symbol
	parity int
}

func (p place) leaves() []place {
	if p.name == "" {
		return nil
	}
	var out []place
	eachLeaf(p.name, p.typ, p.parity, func(name string, g *Type, parity int) {
		out = append(out, place{name: name, typ: g, sym: p.sym, parity: parity})
	})
	return out
}

func (s *Sim) resolve(sc *scope, r *ref) (place, error) {
	sym, ok := sc.syms[r.root]
	if !ok {
		return place{}, fmt.Errorf("undeclared %s", r.root)
	}
	p := place{name: sc.prefix + r.root, typ: sym.typ, sym: sym}
	if sym.role == roleNode {
		if len(r.path) > 0 {
			return place{}, fmt.Errorf("node %s is not an aggregate", r.root)
		}
		return p, nil
	}
	unbound := false
	if sym.role == roleMport {
		if p.name = s.alias[p.name]; p.name == "" {
			unbound = true
		}
	}
	for _, a := range r.path {
		switch {
		case a.field != "":
			if p.typ.Kind != Bundle {
				return place{}, fmt.Errorf("%s%s has no field %s", sc.prefix, r.root, a.field)
			}
			f, ok := p.typ.field(a.field)
			if !ok {
				return place{}, fmt.Errorf("%s%s has no field %s", sc.prefix, r.root, a.field)
			}
			if f.Flip {
				p.parity++
			}
			p.name += "." + a.field
			p.typ = f.Type
		default:
			if p.typ.Kind != Vector {
				return place{}, fmt.Errorf("%s%s is not a vector", sc.prefix, r.root)
			}
			i := a.index
			if a.dyn != nil {
				v, err := s.eval(sc, a.dyn)
				if err != nil {
					return place{}, err
				}
				if v.bits >= uint64(p.typ.Len) {
					unbound = true
				}
				i = int(v.bits)
			} else if i >= p.typ.Len {
				return place{}, fmt.Errorf("%s%s[%d] is outside %d elements", sc.prefix, r.root, i, p.typ.Len)
			}
			p.name += fmt.Sprintf("[%d]", i)
			p.typ = p.typ.Elem
		}
	}
	if unbound {
		p.name = ""
	}
	return p, nil
}

func (s *Sim) read(p place) value {
	if p.name == "" {
		return fit(value{}, p.typ)
	}
	var v value
	var ok bool
	switch kindOf(p.sym, p.parity) {
	case leafState:
		v, ok = s.state[p.name]
	case leafInput:
		v, ok = s.inputs[p.name]
	case leafNode:
		if v, ok = s.cur[p.name]; !ok {
			v, ok = s.prev[p.name]
		}
	default:
		v, ok = s.prev[p.name]
	}
	if !ok {
		return fit(value{}, p.typ)
	}
	return v
}

func (s *Sim) write(p place, v value) error {
	if p.name == "" {
		return nil
	}
	v = fit(v, p.typ)
	switch p.sym.role {
	case roleReg:
		s.regNext[p.name] = v
		return nil
	case roleMport:
		s.writes = append(s.writes, memWrite{name: p.name, v: v})
		return nil
	case roleMem:
		return fmt.Errorf("%s is written without a port", p.name)
	case roleNode:
		return fmt.Errorf("node %s is connected", p.name)
	}
	if kindOf(p.sym, p.parity) == leafInput {
		return fmt.Errorf("%s is an input", p.name)
	}
	s.cur[p.name] = v
	return nil
}

func (s *Sim) connect(sc *scope, st *connectStmt) error {
	dst, err := s.resolve(sc, st.dst)
	if err != nil {
		return err
	}
	if dst.typ == nil || dst.typ.Kind == Ground || dst.typ.Kind == Clock {
		v, err := s.eval(sc, st.src)
		if err != nil {
			return err
		}
		return s.write(dst, v)
	}
	r, ok := st.src.(*ref)
	if !ok {
		return fmt.Errorf("aggregate %s connected from an expression", dst.name)
	}
	src, err := s.resolve(sc, r)
	if err != nil {
		return err
	}
	ds, ss := dst.leaves(), src.leaves()
	if src.name == "" {
		// An unbound source reads as zero.
		for _, d := range ds {
			if (d.parity-dst.parity)%2 == 0 {
				if err := s.write(d, value{}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if dst.name != "" && len(ds) != len(ss) {
		return fmt.Errorf("%s and %s differ in shape", dst.name, src.name)
	}
	for i := range ds {
		d, from := ds[i], ss[i]
		if (d.parity-dst.parity)%2 != 0 {
			d, from = from, d
		}
		if err := s.write(d, s.read(from)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) eval(sc *scope, e expr) (value, error) {
	switch e := e.(type) {
	case *lit:
		return e.v, nil
	case *ref:
		p, err := s.resolve(sc, e)
		if err != nil {
			return value{}, err
		}
		if p.typ != nil && p.typ.Kind != Ground && p.typ.Kind != Clock {
			return value{}, fmt.Errorf("aggregate %s used as a value", p.name)
		}
		return s.read(p), nil
	case *prim:
		args := make([]value, len(e.args))
		for i, a := range e.args {
			v, err := s.eval(sc, a)
			if err != nil {
				return value{}, err
			}
			args[i] = v
		}
		return apply(e.op, args, e.consts)
	}
	return value{}, fmt.Errorf("unsupported expression %T", e)
}
