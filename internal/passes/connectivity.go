package passes

import (
	"fmt"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/ir"
)

// Connectivity checks the wiring of the top container: every reference
// resolves, every child is clocked, every stream input and start input is
// driven, every bus done input is driven and every loop-block output
// carries a declared stencil.
type Connectivity struct {
	reporter *diag.Reporter
	issues   int
}

// NewConnectivity constructs the pass. reporter may be nil.
func NewConnectivity(reporter *diag.Reporter) *Connectivity {
	return &Connectivity{reporter: reporter}
}

// Name implements Pass.
func (c *Connectivity) Name() string { return "connectivity" }

// Run implements Pass.
func (c *Connectivity) Run(design *ir.Design) error {
	c.issues = 0
	top := design.Top

	seen := make(map[string]bool)
	for _, inst := range top.Instances {
		if seen[inst.Name] {
			c.report("duplicate instance %q", inst.Name)
		}
		seen[inst.Name] = true
	}

	driven := make(map[string]bool)
	for _, conn := range top.Connects.Items() {
		driven[conn.Dst] = true
		if _, _, ok := resolve(top, conn.Dst); !ok {
			c.report("connect %s <= %s: unknown destination %s", conn.Dst, conn.Src, conn.Dst)
		}
		if isRef(conn.Src) {
			if _, _, ok := resolve(top, conn.Src); !ok {
				c.report("connect %s <= %s: unknown source %s", conn.Dst, conn.Src, conn.Src)
			}
		}
	}

	for _, m := range top.Children() {
		b := m.Base()
		for _, port := range []string{"clock", "reset"} {
			if !driven[b.Name+"."+port] {
				c.report("%s %s has no %s", b.Kind, b.Name, port)
			}
		}
		if b.In.Has(ir.StartIn) && !driven[b.Name+"."+ir.StartIn] {
			c.report("%s %s is never started", b.Kind, b.Name)
		}
		for _, in := range b.Inputs.Items() {
			if !driven[b.Name+"."+in.Name] {
				c.report("%s %s: stream input %s is not driven", b.Kind, b.Name, in.Name)
			}
		}
		if fb, ok := m.(*ir.ForBlock); ok {
			c.forBlock(fb)
		}
	}

	if design.SlaveIf != nil {
		for _, d := range design.SlaveIf.DonePorts() {
			if !driven[design.SlaveIf.Name+"."+d] {
				c.report("bus done input %s is not driven", d)
			}
		}
	}

	if c.issues > 0 {
		return fmt.Errorf("%d wiring issue(s)", c.issues)
	}
	return nil
}

func (c *Connectivity) forBlock(fb *ir.ForBlock) {
	written := make(map[string]bool)
	for _, w := range fb.Writes {
		written[w.Port] = true
		if !fb.Regs.Has(w.Source) && !fb.Wires.Has(w.Source) {
			c.report("%s writes %s from undeclared stencil %s", fb.Name, w.Port, w.Source)
		}
	}
	for _, out := range fb.Outputs.Items() {
		if !written[out.Name] {
			c.report("%s: output stream %s is never written", fb.Name, out.Name)
		}
	}
}

func (c *Connectivity) report(format string, args ...any) {
	c.issues++
	if c.reporter != nil {
		c.reporter.Errorf(format, args...)
	}
}
