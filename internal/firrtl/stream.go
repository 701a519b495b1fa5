package firrtl

import (
	"fmt"
	"strings"

	"stencilrtl/internal/ir"
)

// handshake names the fields of one stream flavour.
type handshake struct {
	valid, ready, data string
}

var (
	axiFields    = handshake{valid: "TVALID", ready: "TREADY", data: "TDATA"}
	streamFields = handshake{valid: "valid", ready: "ready", data: "value"}
)

func fieldsOf(t ir.Type) handshake {
	switch t.Kind {
	case ir.AxiStream:
		return axiFields
	case ir.Stream:
		return streamFields
	case ir.Scalar, ir.Stencil, ir.MemRead:
		panic(fmt.Sprintf("firrtl: %s is not a stream", t.Kind))
	default:
		panic(fmt.Sprintf("firrtl: unhandled type kind %d", int(t.Kind)))
	}
}

// dims renders extents as [e0][e1]...
func dims(ext []int) string {
	var b strings.Builder
	for _, e := range ext {
		fmt.Fprintf(&b, "[%d]", e)
	}
	return b.String()
}

// adapter prints a stream adapter. Each accepted element is held for one
// step and released when the next one arrives; the last element of the
// image is released in state 1, which also reports done. An output adapter
// raises TLAST with that element.
func (p *printer) adapter(a *ir.Adapter) {
	in, _ := a.Inputs.Lookup(a.InPort)
	out, _ := a.Outputs.Lookup(a.OutPort)
	inF, outF := fieldsOf(in.Type), fieldsOf(out.Type)
	t := in.Type
	value := a.OutPort + "_value"

	p.header(&a.Component)
	direction := "output"
	if a.IsInput() {
		direction = "input"
	}
	p.line("; Parameters:")
	p.line(";  Direction=%s", direction)
	p.line(";  Type=%s", t.Elem)
	p.line(";  Stencil=%s", dims(t.Bounds))
	p.line(";  Image Size=%s", dims(a.StoreExtents))
	p.blank()

	counters := make([]counter, len(a.StoreExtents))
	for i, extent := range a.StoreExtents {
		size := 1
		if i < len(t.Bounds) {
			size = t.Bounds[i]
		}
		counters[i] = counter{name: fmt.Sprintf("counter_%d", i), width: ir.BitsFor(extent), step: size, last: max(extent-size, 0)}
		p.resetReg(counters[i].name, ir.UInt(counters[i].width), sized(counters[i].width, 0))
	}
	bit := ir.UInt(1)
	p.resetReg("valid_d1", bit, zero)
	p.line("reg %s : %s, clock", value, ir.StencilOf(t.Elem, t.Bounds...))
	p.resetReg("started", bit, zero)
	p.resetReg("state", bit, zero)
	p.blank()

	p.line("%s.%s <= %s", a.OutPort, outF.data, value)
	p.line("%s.%s <= %s", a.OutPort, outF.valid, zero)
	if !a.IsInput() {
		p.line("%s.TLAST <= %s", a.OutPort, zero)
	}
	p.line("%s.%s <= %s", a.InPort, inF.ready, zero)
	p.line("%s <= %s", ir.DoneOut, zero)
	p.open("when %s :", ir.StartIn)
	p.line("started <= %s", one)
	for _, c := range counters {
		p.line("%s <= %s", c.name, sized(c.width, 0))
	}
	p.line("valid_d1 <= %s", zero)
	p.line("state <= %s", zero)
	p.close()
	p.open("else when %s :", ir.DoneOut)
	p.line("started <= %s", zero)
	p.close()

	p.open("when started :")
	p.open("when %s.%s :", a.OutPort, outF.ready)

	p.open("when eq(state, %s) :", zero)
	p.open("when %s.%s :", a.InPort, inF.valid)
	for _, c := range counters {
		p.increment(c.name, c.width, c.step, c.last)
	}
	p.line("state <= %s", one)
	for range counters {
		p.close()
	}
	p.line("valid_d1 <= %s", one)
	p.line("%s <= %s.%s", value, a.InPort, inF.data)
	p.line("%s.%s <= %s", a.InPort, inF.ready, one)
	p.line("%s.%s <= valid_d1", a.OutPort, outF.valid)
	p.close()
	p.close()

	p.open("else when eq(state, %s) :", one)
	p.line("%s.%s <= valid_d1", a.OutPort, outF.valid)
	if !a.IsInput() {
		p.line("%s.TLAST <= %s", a.OutPort, one)
	}
	p.line("valid_d1 <= %s", zero)
	p.line("state <= %s", zero)
	p.line("%s <= %s", ir.DoneOut, one)
	p.close()

	p.close()
	p.close()
	p.end(a.Name)
}

// counter is a wrapping position counter.
type counter struct {
	name  string
	width int
	step  int
	last  int
}

// fifo prints a circular queue with D+1 slots. A popped element sits in
// an output register until the consumer takes it.
func (p *printer) fifo(f *ir.FIFO) {
	t := f.Stream()
	d := f.Depth
	ptr := ir.BitsFor(d + 1)
	level := ir.BitsFor(d + 2)
	data := ir.StencilOf(t.Elem, t.Bounds...)

	p.header(&f.Component)
	p.line("; Parameters:")
	p.line(";  Type=%s", t.Elem)
	p.line(";  Stencil=%s", dims(t.Bounds))
	p.line(";  Depth=%d", d)
	p.blank()

	bit := ir.UInt(1)
	p.line("cmem mem : {value : %s}[%d]", data, d+1)
	p.resetReg("r_wr_ptr", ir.UInt(ptr), sized(ptr, 0))
	p.resetReg("r_rd_ptr", ir.UInt(ptr), sized(ptr, 0))
	p.resetReg("r_level", ir.UInt(level), sized(level, 0))
	p.line("wire w_push : UInt<1>")
	p.line("wire w_pop : UInt<1>")
	p.resetReg("r_empty", bit, one)
	p.resetReg("r_full", bit, zero)
	p.resetReg("r_valid_out", bit, zero)
	p.line("reg r_data_out : %s, clock", data)
	p.blank()

	in, out := ir.DataIn, ir.DataOut
	p.line("w_push <= and(%s.valid, not(r_full))", in)
	p.line("w_pop <= and(or(%s.ready, not(r_valid_out)), not(r_empty))", out)
	p.blank()

	p.open("when w_push :")
	p.increment("r_wr_ptr", ptr, 1, d)
	p.close()
	p.line("infer mport mem_wr = mem[r_wr_ptr], clock")
	p.line("mem_wr.value <= %s.value", in)
	p.close()
	p.open("when w_pop :")
	p.increment("r_rd_ptr", ptr, 1, d)
	p.close()
	p.line("infer mport mem_rd = mem[r_rd_ptr], clock")
	p.line("r_data_out <= mem_rd.value")
	p.line("r_valid_out <= %s", one)
	p.close()
	p.open("else when %s.ready :", out)
	p.line("r_valid_out <= %s", zero)
	p.close()
	p.blank()

	p.open("when and(w_push, not(w_pop)) :")
	p.line("r_level <= bits(add(r_level, %s), %d, 0)", one, level-1)
	p.line("r_empty <= %s", zero)
	p.open("when eq(r_level, %s) :", lit(d))
	p.line("r_full <= %s", one)
	p.close()
	p.close()
	p.open("else when and(not(w_push), w_pop) :")
	p.line("r_level <= bits(sub(r_level, %s), %d, 0)", one, level-1)
	p.line("r_full <= %s", zero)
	p.open("when eq(r_level, %s) :", one)
	p.line("r_empty <= %s", one)
	p.close()
	p.close()
	p.blank()

	p.line("%s.value <= r_data_out", out)
	p.line("%s.valid <= r_valid_out", out)
	p.line("%s.ready <= not(r_full)", in)
	p.end(f.Name)
}
