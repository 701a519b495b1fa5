package firrtl

import (
	"fmt"

	"stencilrtl/internal/ir"
)

// dispatch prints a router. Counters track the origin of the current
// window; each consumer receives the windows whose origin lies inside its
// region. An element is accepted only when every consumer that wants it is
// ready. Start returns the counters to the first origin.
func (p *printer) dispatch(d *ir.Dispatch) {
	in, _ := d.Inputs.Lookup(d.InPort)
	t := in.Type
	value := ir.StencilOf(t.Elem, t.Bounds...)

	p.header(&d.Component)
	p.line("; Parameters:")
	p.line(";  Type=%s", t.Elem)
	p.line(";  Stencil=%s", dims(t.Bounds))
	sizes, steps := make([]int, len(d.Dims)), make([]int, len(d.Dims))
	for j, dim := range d.Dims {
		sizes[j], steps[j] = dim.Size, dim.Step
	}
	p.line(";  Sizes=%s", dims(sizes))
	p.line(";  Steps=%s", dims(steps))
	p.line(";  Image Size=%s", dims(d.StoreExtents))
	for _, c := range d.Consumers {
		p.line(";  Consumer %s: port=%s depth=%d offset=%s extent=%s", c.Name, c.Port, c.Depth, dims(c.Offsets), dims(c.Extents))
	}
	p.blank()

	counters := make([]counter, len(d.Dims))
	for j, dim := range d.Dims {
		counters[j] = counter{name: fmt.Sprintf("counter%d", j), width: ir.BitsFor(dim.Extent), step: dim.Step, last: max(dim.Extent-dim.Size, 0)}
		p.resetReg(counters[j].name, ir.UInt(counters[j].width), sized(counters[j].width, 0))
	}
	for _, c := range d.Consumers {
		p.line("wire %s_inv : %s", c.Port, value)
		p.line("%s_inv is invalid", c.Port)
		p.line("%s.valid <= %s", c.Port, zero)
		p.line("%s.value <= %s_inv", c.Port, c.Port)
	}
	p.line("%s.ready <= %s", d.InPort, zero)
	p.line("%s <= %s", ir.DoneOut, zero)
	p.blank()

	last := len(d.Dims) - 1
	ready := make([]string, len(d.Consumers))
	for i, c := range d.Consumers {
		for j, dim := range d.Dims {
			lb := max(c.Offsets[j], 0)
			ub := c.Offsets[j] + c.Extents[j] - dim.Size
			node := fmt.Sprintf("c%dd%db", i, j)
			if ub < lb {
				p.line("node %s = %s", node, zero)
			} else {
				p.line("node %s = and(geq(%s, %s), leq(%s, %s))", node, counters[j].name, lit(lb), counters[j].name, lit(ub))
			}
			if j == 0 {
				p.line("node c%dd0 = %s", i, node)
			} else {
				p.line("node c%dd%d = and(c%dd%d, %s)", i, j, i, j-1, node)
			}
		}
		p.line("node c%dr = and(c%dd%d, %s.ready)", i, i, last, c.Port)
		p.line("node c%d = or(c%dr, not(c%dd%d))", i, i, i, last)
		ready[i] = fmt.Sprintf("c%d", i)
	}
	p.blank()

	p.open("when %s.valid :", d.InPort)
	p.line("node allOutReady = %s", and(ready...))
	p.open("when allOutReady :")
	p.line("%s.ready <= %s", d.InPort, one)
	for i, c := range d.Consumers {
		p.open("when c%dr :", i)
		p.line("%s.valid <= %s", c.Port, one)
		p.line("%s.value <= %s.value", c.Port, d.InPort)
		p.close()
	}
	for _, c := range counters {
		p.increment(c.name, c.width, c.step, c.last)
	}
	p.line("%s <= %s", ir.DoneOut, one)
	for range counters {
		p.close()
	}
	p.close()
	p.close()
	p.open("when %s :", ir.StartIn)
	for _, c := range counters {
		p.line("%s <= %s", c.name, sized(c.width, 0))
	}
	p.close()
	p.end(d.Name)
}
