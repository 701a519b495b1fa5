package kir

import "stencilrtl/internal/diag"

// Stmt is a statement of the kernel body.
type Stmt interface {
	Position() diag.Pos
	isStmt()
}

// ForKind is the scheduling of a loop. Only Serial loops map to hardware.
type ForKind int

const (
	Serial ForKind = iota
	Parallel
	Vectorized
	Unrolled
)

func (k ForKind) String() string {
	switch k {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	case Vectorized:
		return "vectorized"
	case Unrolled:
		return "unrolled"
	default:
		return "unknown"
	}
}

// For iterates Name over [Min, Min+Extent).
type For struct {
	Name   string
	Min    Expr
	Extent Expr
	Kind   ForKind
	Body   Stmt
	Pos    diag.Pos
}

// Range is one dimension of a realization.
type Range struct {
	Min    Expr
	Extent Expr
}

// Realize declares a stream or stencil buffer for the duration of Body.
type Realize struct {
	Name   string
	Types  []Type
	Bounds []Range
	Body   Stmt
	Pos    diag.Pos
}

// ProducerConsumer marks the region producing (or consuming) Name.
type ProducerConsumer struct {
	Name       string
	IsProducer bool
	Body       Stmt
	Pos        diag.Pos
}

// Provide writes Values into a multi-dimensional buffer at Args.
type Provide struct {
	Name   string
	Values []Expr
	Args   []Expr
	Pos    diag.Pos
}

// Store writes Value into a flat allocation at Index.
type Store struct {
	Name  string
	Value Expr
	Index Expr
	Pos   diag.Pos
}

// Allocate declares a flat scratch buffer.
type Allocate struct {
	Name    string
	T       Type
	Extents []Expr
	Body    Stmt
	Pos     diag.Pos
}

// Free ends the lifetime of an allocation.
type Free struct {
	Name string
	Pos  diag.Pos
}

// IfThenElse is conditional execution. Else may be nil.
type IfThenElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
	Pos  diag.Pos
}

// Block runs statements in order.
type Block struct {
	Stmts []Stmt
	Pos   diag.Pos
}

// Evaluate evaluates an expression for its side effects (stream calls).
type Evaluate struct {
	Value Expr
	Pos   diag.Pos
}

// LetStmt binds Name to Value inside Body.
type LetStmt struct {
	Name  string
	Value Expr
	Body  Stmt
	Pos   diag.Pos
}

// AssertStmt is a runtime check. Hardware cannot honour it.
type AssertStmt struct {
	Cond    Expr
	Message string
	Pos     diag.Pos
}

func (s *For) Position() diag.Pos              { return s.Pos }
func (s *Realize) Position() diag.Pos          { return s.Pos }
func (s *ProducerConsumer) Position() diag.Pos { return s.Pos }
func (s *Provide) Position() diag.Pos          { return s.Pos }
func (s *Store) Position() diag.Pos            { return s.Pos }
func (s *Allocate) Position() diag.Pos         { return s.Pos }
func (s *Free) Position() diag.Pos             { return s.Pos }
func (s *IfThenElse) Position() diag.Pos       { return s.Pos }
func (s *Block) Position() diag.Pos            { return s.Pos }
func (s *Evaluate) Position() diag.Pos         { return s.Pos }
func (s *LetStmt) Position() diag.Pos          { return s.Pos }
func (s *AssertStmt) Position() diag.Pos       { return s.Pos }

func (*For) isStmt()              {}
func (*Realize) isStmt()          {}
func (*ProducerConsumer) isStmt() {}
func (*Provide) isStmt()          {}
func (*Store) isStmt()            {}
func (*Allocate) isStmt()         {}
func (*Free) isStmt()             {}
func (*IfThenElse) isStmt()       {}
func (*Block) isStmt()            {}
func (*Evaluate) isStmt()         {}
func (*LetStmt) isStmt()          {}
func (*AssertStmt) isStmt()       {}

// ArgKind classifies a kernel argument.
type ArgKind int

const (
	ScalarArg ArgKind = iota
	StencilArg
	StreamArg
)

func (k ArgKind) String() string {
	switch k {
	case ScalarArg:
		return "scalar"
	case StencilArg:
		return "stencil"
	case StreamArg:
		return "stream"
	default:
		return "unknown"
	}
}

// Arg is one kernel argument. Streams carry the per-element stencil Bounds
// and the StoreExtents of the whole image they cover.
type Arg struct {
	Name         string
	Kind         ArgKind
	Elem         Type
	Bounds       []int
	StoreExtents []int
	IsOutput     bool
	Pos          diag.Pos
}

// Kernel is one lowered accelerator: its argument list and body.
type Kernel struct {
	Name string
	Args []Arg
	Body Stmt
}
