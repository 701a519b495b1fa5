// Package firrtl serializes a lowered design as a FIRRTL circuit: the top
// container first, then one module per component in a fixed kind order.
package firrtl

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"stencilrtl/internal/ir"
)

// Options control emission.
type Options struct {
	// RegisterBase is the bus offset of the first user register.
	RegisterBase int
}

// DefaultOptions returns the emission defaults.
func DefaultOptions() Options {
	return Options{RegisterBase: ir.DefaultRegisterBase}
}

// Emit writes the FIRRTL text of design to w. The circuit is rendered in
// memory first, so nothing reaches w when rendering fails.
func Emit(design *ir.Design, w io.Writer, opts Options) error {
	if design == nil || design.Top == nil || design.SlaveIf == nil {
		return fmt.Errorf("firrtl: incomplete design")
	}
	if err := ir.CheckRegisterBase(opts.RegisterBase); err != nil {
		return fmt.Errorf("firrtl: %w", err)
	}
	pr := &printer{opts: opts}
	if err := pr.circuit(design); err != nil {
		return err
	}
	if _, err := w.Write(pr.buf.Bytes()); err != nil {
		return fmt.Errorf("firrtl: write: %w", err)
	}
	return nil
}

// EmitFile writes the circuit to outputPath. When outputPath is empty or
// "-", the result is written to stdout.
func EmitFile(design *ir.Design, outputPath string, opts Options) error {
	if outputPath == "" || outputPath == "-" {
		return Emit(design, os.Stdout, opts)
	}
	var buf bytes.Buffer
	if err := Emit(design, &buf, opts); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("firrtl: %w", err)
	}
	return nil
}

type printer struct {
	buf    bytes.Buffer
	indent int
	opts   Options
}

func (p *printer) circuit(design *ir.Design) error {
	target := design.Target
	if target == "" {
		target = design.Top.Name
	}
	p.line(";Generated FIRRTL")
	p.line(";Target name: %s", target)
	p.open("circuit %s :", target)

	if err := p.module(design.Top); err != nil {
		return err
	}
	for _, kind := range ir.EmissionOrder {
		for _, m := range design.Top.OfKind(kind) {
			if err := p.module(m); err != nil {
				return err
			}
		}
		if kind == ir.KindLineBuffer && design.LineBuffers != nil {
			for _, core := range design.LineBuffers.Cores() {
				slog.Debug("emit line buffer core", "core", core.Name, "shape", core.Shape.String())
				p.lineBufferCore(core)
			}
		}
	}
	p.indent--
	return nil
}

// module prints one component with the printer of its kind.
func (p *printer) module(m ir.Module) error {
	c := m.Base()
	slog.Debug("emit module", "kind", c.Kind.String(), "name", c.Name)
	switch c := m.(type) {
	case *ir.Top:
		p.generic(&c.Component)
	case *ir.SlaveIf:
		return p.slaveIf(c)
	case *ir.Adapter:
		p.adapter(c)
	case *ir.FIFO:
		p.fifo(c)
	case *ir.LineBuffer:
		p.lineBuffer(c)
	case *ir.Dispatch:
		p.dispatch(c)
	case *ir.ForBlock:
		p.forBlock(c)
	default:
		panic(fmt.Sprintf("firrtl: unhandled component %T", m))
	}
	return nil
}

// generic prints a component from its declared sections alone.
func (p *printer) generic(c *ir.Component) {
	p.header(c)

	p.line("; Instances")
	for _, inst := range c.Instances {
		p.line("inst %s of %s", inst.Name, inst.Module)
	}
	p.blank()

	p.line("; Regs")
	p.regs(c.Regs.Items())
	p.blank()

	p.line("; Wires")
	for _, s := range c.Wires.Items() {
		p.line("wire %s : %s", s.Name, s.Type)
	}
	p.blank()
	for _, s := range c.Wires.Items() {
		p.line("%s is invalid", s.Name)
	}
	p.blank()

	p.line("; Connections")
	for _, conn := range c.Connects.Items() {
		p.line("%s <= %s", conn.Dst, conn.Src)
	}
	p.end(c.Name)
}

// header opens a module and declares its ports.
func (p *printer) header(c *ir.Component) {
	p.line("; %s instance %s", c.Kind, c.Name)
	p.open("module %s :", c.Name)
	p.line("input clock : Clock")
	p.line("input reset : UInt<1>")
	for _, s := range c.In.Items() {
		p.line("input %s : %s", s.Name, s.Type)
	}
	for _, s := range c.Out.Items() {
		p.line("output %s : %s", s.Name, s.Type)
	}
	p.blank()
}

// end closes the module opened by header.
func (p *printer) end(name string) {
	p.line("skip ;  end of %s", name)
	p.indent--
	p.blank()
}

func (p *printer) regs(sigs []ir.Signal) {
	for _, s := range sigs {
		if s.Init == "" {
			p.line("reg %s : %s, clock", s.Name, s.Type)
		} else {
			p.line("reg %s : %s, clock with : (reset => (reset, %s))", s.Name, s.Type, s.Init)
		}
	}
}

// resetReg declares a register with a reset value.
func (p *printer) resetReg(name string, t fmt.Stringer, init string) {
	p.line("reg %s : %s, clock with : (reset => (reset, %s))", name, t, init)
}

func (p *printer) line(format string, args ...any) {
	p.buf.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *printer) blank() { p.buf.WriteByte('\n') }

// open prints a scope header and nests what follows.
func (p *printer) open(format string, args ...any) {
	p.line(format, args...)
	p.indent++
}

// close ends the innermost when scope.
func (p *printer) close() {
	p.line("skip")
	p.indent--
}

// lit renders v as the narrowest unsigned literal that holds it.
func lit(v int) string {
	return fmt.Sprintf("UInt<%d>(%d)", ir.BitsFor(v+1), v)
}

// sized renders v as an unsigned literal of the given width.
func sized(width, v int) string {
	return fmt.Sprintf("UInt<%d>(%d)", width, v)
}

// hex renders a 32-bit bus address literal.
func hex(addr int) string {
	return fmt.Sprintf("UInt<32>(\"h%x\")", addr)
}

const (
	one  = "UInt<1>(1)"
	zero = "UInt<1>(0)"
)

// and folds terms into nested and() calls; no terms is true.
func and(terms ...string) string {
	switch len(terms) {
	case 0:
		return one
	case 1:
		return terms[0]
	default:
		return fmt.Sprintf("and(%s, %s)", terms[0], and(terms[1:]...))
	}
}

// increment prints a wrapping counter update: name steps by step and
// returns to zero after last. The result is truncated to width bits. The
// caller closes the wrap scope left open.
func (p *printer) increment(name string, width, step, last int) {
	p.line("node %s_is_max = eq(%s, %s)", name, name, lit(last))
	p.line("%s <= bits(add(%s, %s), %d, 0)", name, name, lit(step), width-1)
	p.open("when %s_is_max :", name)
	p.line("%s <= %s", name, sized(width, 0))
}

// element renders the index suffix of a padded four-dimensional element,
// outermost dimension first.
func element(i [4]int) string {
	return fmt.Sprintf("[%d][%d][%d][%d]", i[3], i[2], i[1], i[0])
}

// elementN renders the index suffix of an element of an n-dimensional
// value.
func elementN(i [4]int, n int) string {
	var b strings.Builder
	for d := n - 1; d >= 0; d-- {
		fmt.Fprintf(&b, "[%d]", i[d])
	}
	return b.String()
}

// forEach visits every element of a padded window, dimension 0 fastest.
func forEach(ext [4]int, fn func(i [4]int)) {
	for i3 := 0; i3 < ext[3]; i3++ {
		for i2 := 0; i2 < ext[2]; i2++ {
			for i1 := 0; i1 < ext[1]; i1++ {
				for i0 := 0; i0 < ext[0]; i0++ {
					fn([4]int{i0, i1, i2, i3})
				}
			}
		}
	}
}

// padded returns the four-dimensional stencil type over ext.
func padded(elem ir.SignalType, ext [4]int) ir.Type {
	return ir.StencilOf(elem, ext[:]...)
}
