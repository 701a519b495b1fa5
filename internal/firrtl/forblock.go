package firrtl

import (
	"fmt"

	"stencilrtl/internal/ir"
)

var (
	loopVar   = ir.SInt(32)
	stateType = ir.UInt(2)
)

// forBlock prints a loop block. A three-state machine walks the scan
// variables once per window and the stencil variables once per step:
//
//	0: start a window (the whole window when there is no stencil loop)
//	1: one stencil position per step until the window completes
//	2: drain the pipeline and report done
//
// Results travel down a delay chain of Depth stages before they reach the
// output streams. Nothing advances unless every output is ready.
func (p *printer) forBlock(f *ir.ForBlock) {
	d := f.Depth
	vars := append(append([]ir.LoopVar(nil), f.ScanVars...), f.StencilVars...)
	bit := ir.UInt(1)

	p.header(&f.Component)
	p.line("; Parameters:")
	for _, v := range f.ScanVars {
		p.line(";  Scan var=%s min=%d max=%d", v.Name, v.Min, v.Max)
	}
	for _, v := range f.StencilVars {
		p.line(";  Stencil var=%s min=%d max=%d", v.Name, v.Min, v.Max)
	}
	p.line(";  Pipeline depth=%d", d)
	p.blank()

	p.line("; Regs")
	for _, v := range vars {
		p.resetReg(v.Name, loopVar, loopVar.Literal(int64(v.Min)))
	}
	for k := 1; k <= d; k++ {
		p.resetReg(delayed("valid", k), bit, zero)
		p.resetReg(delayed("is_last_stencil", k), bit, zero)
		for _, v := range f.StencilVars {
			p.resetReg(delayed(v.Name, k), loopVar, loopVar.Literal(int64(v.Min)))
		}
	}
	p.regs(f.Regs.Items())
	for _, w := range f.Writes {
		t := sourceType(f, w.Source)
		for k := 1; k < d; k++ {
			p.line("reg %s : %s, clock", delayed(w.Source, k), t)
		}
	}
	p.resetReg("started", bit, zero)
	p.resetReg("state", stateType, stateType.Literal(0))
	p.blank()

	p.line("; Wires")
	p.line("wire run_step : %s", bit)
	p.line("wire last_step : %s", bit)
	p.line("wire %s : %s", ir.WriteEnable, bit)
	for _, s := range f.Wires.Items() {
		p.line("wire %s : %s", s.Name, s.Type)
	}
	for _, s := range f.Wires.Items() {
		p.line("%s is invalid", s.Name)
	}
	p.blank()

	p.line("; Connections")
	p.line("%s <= %s", ir.DoneOut, zero)
	p.line("run_step <= %s", zero)
	p.line("last_step <= %s", zero)
	if f.Guarded {
		p.line("%s <= %s", ir.WriteEnable, zero)
	} else {
		p.line("%s <= %s", ir.WriteEnable, one)
	}
	for _, in := range f.Inputs.Items() {
		p.line("%s.ready <= %s", in.Name, zero)
	}
	for _, tap := range f.TapPorts {
		for k := 0; k < ir.MemReadLanes; k++ {
			p.line("%s.addr[%d] <= UInt<32>(0)", tap, k)
		}
	}
	outReady := []string{"started"}
	for _, w := range f.Writes {
		src := w.Source
		if d > 1 {
			src = delayed(w.Source, d-1)
		}
		p.line("%s.value <= %s", w.Port, src)
		p.line("%s.valid <= %s", w.Port, delayed("valid", d))
		outReady = append(outReady, w.Port+".ready")
	}
	p.blank()

	p.open("when run_step :")
	for _, l := range f.Body() {
		p.line("%s", l)
	}
	p.close()
	p.blank()

	p.open("when %s :", and(outReady...))
	p.advance(f)
	p.close()
	p.blank()

	p.open("when %s :", ir.StartIn)
	p.line("started <= %s", one)
	p.line("state <= %s", stateType.Literal(0))
	for _, v := range vars {
		p.line("%s <= %s", v.Name, loopVar.Literal(int64(v.Min)))
	}
	for k := 1; k <= d; k++ {
		p.line("%s <= %s", delayed("valid", k), zero)
		p.line("%s <= %s", delayed("is_last_stencil", k), zero)
	}
	p.close()
	p.open("else when %s :", ir.DoneOut)
	p.line("started <= %s", zero)
	p.close()
	p.end(f.Name)
}

// advance prints one step of the state machine and the delay chains.
func (p *printer) advance(f *ir.ForBlock) {
	d := f.Depth
	inValid := make([]string, 0, f.Inputs.Len())
	for _, in := range f.Inputs.Items() {
		inValid = append(inValid, in.Name+".valid")
	}
	var scanMax, stencilMax, drained []string
	for _, v := range f.ScanVars {
		p.line("node %s_is_max = eq(%s, %s)", v.Name, v.Name, loopVar.Literal(int64(v.Max)))
		scanMax = append(scanMax, v.Name+"_is_max")
	}
	for _, v := range f.StencilVars {
		p.line("node %s_is_max = eq(%s, %s)", v.Name, v.Name, loopVar.Literal(int64(v.Max)))
		stencilMax = append(stencilMax, v.Name+"_is_max")
		drained = append(drained, fmt.Sprintf("eq(%s, %s)", delayed(v.Name, d), loopVar.Literal(int64(v.Max))))
	}
	p.line("node scan_last = %s", and(scanMax...))
	p.line("node stencil_last = %s", and(stencilMax...))

	for k := d; k > 1; k-- {
		p.line("%s <= %s", delayed("valid", k), delayed("valid", k-1))
		p.line("%s <= %s", delayed("is_last_stencil", k), delayed("is_last_stencil", k-1))
		for _, v := range f.StencilVars {
			p.line("%s <= %s", delayed(v.Name, k), delayed(v.Name, k-1))
		}
	}
	for _, v := range f.StencilVars {
		p.line("%s <= %s", delayed(v.Name, 1), v.Name)
	}
	for _, w := range f.Writes {
		for k := d - 1; k > 1; k-- {
			p.line("%s <= %s", delayed(w.Source, k), delayed(w.Source, k-1))
		}
		if d > 1 {
			p.line("%s <= %s", delayed(w.Source, 1), w.Source)
		}
	}
	p.line("%s <= %s", delayed("is_last_stencil", 1), zero)

	p.open("when eq(state, %s) :", stateType.Literal(0))
	p.open("when %s :", and(inValid...))
	p.line("run_step <= %s", one)
	if f.HasStencilLoop() {
		p.carry(f.StencilVars)
		p.line("state <= %s", stateType.Literal(1))
	} else {
		p.line("last_step <= %s", one)
	}
	p.close()
	p.close()
	p.open("else when eq(state, %s) :", stateType.Literal(1))
	p.open("when %s :", and(inValid...))
	p.line("run_step <= %s", one)
	p.carry(f.StencilVars)
	p.open("when stencil_last :")
	p.line("last_step <= %s", one)
	p.close()
	p.close()
	p.close()
	p.open("else when eq(state, %s) :", stateType.Literal(2))
	p.open("when %s :", and(append([]string{delayed("is_last_stencil", d)}, drained...)...))
	p.line("state <= %s", stateType.Literal(0))
	p.line("%s <= %s", ir.DoneOut, one)
	p.close()
	p.close()

	p.open("when last_step :")
	p.carry(f.ScanVars)
	p.open("when scan_last :")
	p.line("state <= %s", stateType.Literal(2))
	p.line("%s <= %s", delayed("is_last_stencil", 1), one)
	p.close()
	p.open("else :")
	p.line("state <= %s", stateType.Literal(0))
	p.close()
	p.close()

	pop := "last_step"
	if f.ReadPerStep {
		pop = "run_step"
	}
	if f.Inputs.Len() > 0 {
		p.open("when %s :", pop)
		for _, in := range f.Inputs.Items() {
			p.line("%s.ready <= %s", in.Name, one)
		}
		p.close()
	}
	produce := "last_step"
	if f.WritePerStep {
		produce = "run_step"
	}
	p.line("%s <= and(%s, %s)", delayed("valid", 1), produce, ir.WriteEnable)
}

// carry advances vars as one counter, the last variable fastest. Each
// variable returns to its minimum after its maximum and carries into the
// one before it.
func (p *printer) carry(vars []ir.LoopVar) {
	for i := len(vars) - 1; i >= 0; i-- {
		v := vars[i]
		p.line("%s <= asSInt(tail(add(%s, %s), 1))", v.Name, v.Name, loopVar.Literal(1))
		p.open("when %s_is_max :", v.Name)
		p.line("%s <= %s", v.Name, loopVar.Literal(int64(v.Min)))
	}
	for range vars {
		p.close()
	}
}

// delayed names stage k of a delay chain.
func delayed(name string, k int) string {
	return fmt.Sprintf("%s_d%d", name, k)
}

// sourceType returns the type of the stencil a stream write carries.
func sourceType(f *ir.ForBlock, name string) ir.Type {
	if s, ok := f.Regs.Lookup(name); ok {
		return s.Type
	}
	if s, ok := f.Wires.Lookup(name); ok {
		return s.Type
	}
	panic(fmt.Sprintf("firrtl: %s writes undeclared stencil %q", f.Name, name))
}
