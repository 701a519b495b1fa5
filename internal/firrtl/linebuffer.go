package firrtl

import (
	"fmt"

	"stencilrtl/internal/ir"
)

// coreIO is the port bundle of a window-buffer core.
func coreIO(c *ir.LineBufferCore, in, out [4]int) string {
	return fmt.Sprintf("{flip in : {flip ready : UInt<1>, valid : UInt<1>, bits : {value : %s}}, out : {flip ready : UInt<1>, valid : UInt<1>, bits : {value : %s}}}",
		padded(c.Elem, in), padded(c.Elem, out))
}

// lineBuffer prints the per-instance wrapper: it pads the streams to four
// dimensions and hands them to the shared core.
func (p *printer) lineBuffer(lb *ir.LineBuffer) {
	in, _ := lb.Inputs.Lookup(lb.InPort)
	out, _ := lb.Outputs.Lookup(lb.OutPort)
	core := lb.Core

	p.header(&lb.Component)
	p.line("; Parameters:")
	p.line(";  Type=%s", core.Elem)
	p.line(";  Input Stencil=%s", dims(in.Type.Bounds))
	p.line(";  Output Stencil=%s", dims(out.Type.Bounds))
	p.line(";  Image Size=%s", dims(lb.StoreExtents))
	p.line(";  Core=%s", core.Name)
	p.blank()

	p.line("; Instances")
	for _, inst := range lb.Instances {
		p.line("inst %s of %s", inst.Name, inst.Module)
	}
	p.blank()

	p.line("; Connections")
	p.line("%s.clock <= clock", core.Name)
	p.line("%s.reset <= reset", core.Name)
	p.line("%s.io.in.valid <= %s.valid", core.Name, lb.InPort)
	forEach(core.In, func(i [4]int) {
		p.line("%s.io.in.bits.value%s <= %s.value%s", core.Name, element(i), lb.InPort, elementN(i, len(in.Type.Bounds)))
	})
	p.line("%s.ready <= %s.io.in.ready", lb.InPort, core.Name)
	forEach(core.Out, func(i [4]int) {
		p.line("%s.value%s <= %s.io.out.bits.value%s", lb.OutPort, elementN(i, len(out.Type.Bounds)), core.Name, element(i))
	})
	p.line("%s.valid <= %s.io.out.valid", lb.OutPort, core.Name)
	p.line("%s.io.out.ready <= %s.ready", core.Name, lb.OutPort)
	p.end(lb.Name)
}

// lineBufferCore prints one shared core. Nested cores are printed by the
// library in their own right.
func (p *printer) lineBufferCore(c *ir.LineBufferCore) {
	p.line("; LineBuffer core %s", c.Name)
	p.open("module %s :", c.Name)
	p.line("input clock : Clock")
	p.line("input reset : UInt<1>")
	p.line("output io : %s", coreIO(c, c.In, c.Out))
	p.blank()
	p.line("; Parameters:")
	p.line(";  Shape=%s", c.Shape)
	p.line(";  Input Stencil=%s", dims(c.In[:]))
	p.line(";  Output Stencil=%s", dims(c.Out[:]))
	p.line(";  Image Size=%s", dims(c.Image[:]))
	p.blank()
	p.line("io is invalid")

	switch c.Shape {
	case ir.ShapePass:
		p.line("io.out.bits.value <= io.in.bits.value")
		p.line("io.out.valid <= io.in.valid")
		p.line("io.in.ready <= io.out.ready")
	case ir.Shape1D:
		p.shift1D(c)
	case ir.Shape2D:
		p.rows2D(c)
	case ir.ShapeFlatten:
		p.flatten(c)
	default:
		panic(fmt.Sprintf("firrtl: unhandled line buffer shape %d", int(c.Shape)))
	}
	p.end(c.Name)
}

// shift1D keeps the last Buffered(0) input elements in a shift register
// and emits a window once a row has supplied enough of them.
func (p *printer) shift1D(c *ir.LineBufferCore) {
	slots := c.Buffered(0)
	steps := c.Steps(0)
	width := ir.BitsFor(steps)

	p.line("reg buffer : {value : %s}[%d], clock", padded(c.Elem, c.In), slots)
	p.resetReg("col", ir.UInt(width), sized(width, 0))
	p.blank()

	forEach(c.Out, func(i [4]int) {
		slot, j := i[0]/c.In[0], i
		j[0] = i[0] % c.In[0]
		if slot < slots {
			p.line("io.out.bits.value%s <= buffer[%d].value%s", element(i), slot, element(j))
		} else {
			p.line("io.out.bits.value%s <= io.in.bits.value%s", element(i), element(j))
		}
	})
	p.line("io.out.valid <= %s", zero)
	p.line("io.in.ready <= io.out.ready")
	p.open("when io.in.valid :")
	p.open("when geq(col, %s) :", lit(slots))
	p.line("io.out.valid <= %s", one)
	p.close()
	p.open("when io.out.ready :")
	for s := 0; s+1 < slots; s++ {
		p.line("buffer[%d] <= buffer[%d]", s, s+1)
	}
	p.line("buffer[%d].value <= io.in.bits.value", slots-1)
	p.increment("col", width, 1, steps-1)
	p.close()
	p.close()
	p.close()
}

// rows2D keeps Buffered(1) past rows in row memories. A row memory is
// rewritten in turn, writeIdx1 naming the one holding the oldest row; the
// rows are stacked oldest first under the current input and fed to the
// nested core.
func (p *printer) rows2D(c *ir.LineBufferCore) {
	child := c.Child
	rows := c.Buffered(1)
	cols := c.Steps(0)
	height := c.Steps(1)
	colW, rowW, idxW := ir.BitsFor(cols), ir.BitsFor(height), ir.BitsFor(rows)

	p.resetReg("col", ir.UInt(colW), sized(colW, 0))
	p.resetReg("row", ir.UInt(rowW), sized(rowW, 0))
	p.resetReg("writeIdx1", ir.UInt(idxW), sized(idxW, 0))
	for l := 0; l < rows; l++ {
		p.line("cmem buffer%d : {value : %s}[%d]", l, padded(c.Elem, c.In), cols)
	}
	p.line("wire slice : {value : %s}", padded(c.Elem, child.In))
	p.line("slice is invalid")
	p.line("inst %s of %s", child.Name, child.Name)
	p.line("%s.io is invalid", child.Name)
	p.line("%s.clock <= clock", child.Name)
	p.line("%s.reset <= reset", child.Name)
	p.line("%s.io.in.valid <= %s", child.Name, zero)
	p.line("%s.io.in.bits <= slice", child.Name)
	p.line("io.out.bits <= %s.io.out.bits", child.Name)
	p.line("io.out.valid <= %s.io.out.valid", child.Name)
	p.line("%s.io.out.ready <= io.out.ready", child.Name)
	p.line("io.in.ready <= %s.io.in.ready", child.Name)
	p.blank()

	p.open("when io.in.valid :")
	for l := 0; l < rows; l++ {
		p.line("infer mport buffer%d_rd = buffer%d[col], clock", l, l)
	}
	for w := 0; w < rows; w++ {
		p.open("when eq(writeIdx1, %s) :", lit(w))
		for l := 0; l < rows; l++ {
			pos := (l - w + rows) % rows
			forEach(c.In, func(i [4]int) {
				dst := i
				dst[1] = pos*c.In[1] + i[1]
				p.line("slice.value%s <= buffer%d_rd.value%s", element(dst), l, element(i))
			})
		}
		p.close()
	}
	forEach(c.In, func(i [4]int) {
		dst := i
		dst[1] = rows*c.In[1] + i[1]
		p.line("slice.value%s <= io.in.bits.value%s", element(dst), element(i))
	})
	p.open("when geq(row, %s) :", lit(rows))
	p.line("%s.io.in.valid <= %s", child.Name, one)
	p.close()

	p.open("when %s.io.in.ready :", child.Name)
	for l := 0; l < rows; l++ {
		p.open("when eq(writeIdx1, %s) :", lit(l))
		p.line("infer mport buffer%d_wr = buffer%d[col], clock", l, l)
		p.line("buffer%d_wr.value <= io.in.bits.value", l)
		p.close()
	}
	p.increment("col", colW, 1, cols-1)
	p.increment("row", rowW, 1, height-1)
	p.close()
	p.increment("writeIdx1", idxW, 1, rows-1)
	p.close()
	p.close()
	p.close()
	p.close()
}

// flatten merges dimensions 0 and 1 into one and delegates to the nested
// core.
func (p *printer) flatten(c *ir.LineBufferCore) {
	child := c.Child
	p.line("inst %s of %s", child.Name, child.Name)
	p.line("%s.io is invalid", child.Name)
	p.line("%s.clock <= clock", child.Name)
	p.line("%s.reset <= reset", child.Name)
	p.line("%s.io.in.valid <= io.in.valid", child.Name)
	forEach(c.In, func(i [4]int) {
		flat := [4]int{c.FlatIndex(i[0], i[1], c.In), i[2], i[3], 0}
		p.line("%s.io.in.bits.value%s <= io.in.bits.value%s", child.Name, element(flat), element(i))
	})
	p.line("io.in.ready <= %s.io.in.ready", child.Name)
	forEach(c.Out, func(i [4]int) {
		flat := [4]int{c.FlatIndex(i[0], i[1], c.Out), i[2], i[3], 0}
		p.line("io.out.bits.value%s <= %s.io.out.bits.value%s", element(i), child.Name, element(flat))
	})
	p.line("io.out.valid <= %s.io.out.valid", child.Name)
	p.line("%s.io.out.ready <= io.out.ready", child.Name)
}
