package lower

import (
	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
)

// variableArg returns the name carried by argument i of c.
func (b *builder) variableArg(c *kir.Call, i int) (string, error) {
	v, ok := c.Args[i].(*kir.Variable)
	if !ok {
		return "", b.errorf(b.pos, "%s: argument %d must name a buffer", c.Name, i)
	}
	return v.Name, nil
}

// constArg returns the integer literal at argument i of c.
func (b *builder) constArg(c *kir.Call, i int) (int, error) {
	v, ok := kir.ConstInt(c.Args[i])
	if !ok {
		return 0, b.errorf(b.pos, "%s: argument %d must be an integer constant", c.Name, i)
	}
	return int(v), nil
}

// streamWire returns the type of the top-level wire of stream name.
func (b *builder) streamWire(c *kir.Call, name string) (ir.Type, error) {
	t, ok := b.wireType(name)
	if !ok || !t.IsStream() {
		return ir.Type{}, b.errorf(b.pos, "%s: unknown stream %q", c.Name, name)
	}
	return t, nil
}

// addFIFO places the queue FIFO_<stream> fed from src, whose output drives
// wire_<stream>. A stream gets one queue however often it is written.
func (b *builder) addFIFO(stream string, t ir.Type, depth int, src string) error {
	name := "FIFO_" + stream
	if _, ok := b.top.Lookup(name); ok {
		return nil
	}
	fifo := ir.NewFIFO(name, t, depth)
	if err := b.addChild(b.pos, fifo); err != nil {
		return err
	}
	b.top.Connect(fifo.Name+"."+ir.DataIn, src)
	b.top.AddWire("wire_"+stream, t)
	b.top.Connect("wire_"+stream, fifo.Name+"."+ir.DataOut)
	return nil
}

// readStream binds read_stream(stream, stencil[, consumer]).
func (b *builder) readStream(sc *scope, c *kir.Call) error {
	if sc.fb == nil {
		return b.errorf(b.pos, "read_stream outside a loop")
	}
	if len(c.Args) != 2 && len(c.Args) != 3 {
		return b.errorf(b.pos, "read_stream expects 2 or 3 arguments, got %d", len(c.Args))
	}
	s, err := b.variableArg(c, 0)
	if err != nil {
		return err
	}
	dst, err := b.variableArg(c, 1)
	if err != nil {
		return err
	}
	stream := ir.PrintName(s)
	if len(c.Args) == 3 {
		consumer, ok := c.Args[2].(*kir.StringImm)
		if !ok {
			return b.errorf(b.pos, "read_stream: consumer must be a string")
		}
		stream += "_to_" + ir.PrintName(consumer.Value)
	}
	t, err := b.streamWire(c, stream)
	if err != nil {
		return err
	}
	fb := sc.fb
	fb.AddInput(stream, t)
	b.top.Connect(fb.Name+"."+stream, "wire_"+stream)
	fb.Print(ir.PrintName(dst) + " <= " + stream + ".value")
	if sc.inStencil && !sc.readGuard {
		fb.ReadPerStep = true
	}
	return nil
}

// writeStream binds write_stream(stream, stencil[, var, max]...). The extra
// pairs mark the kernel output and give its image extents.
func (b *builder) writeStream(sc *scope, c *kir.Call) error {
	if sc.fb == nil {
		return b.errorf(b.pos, "write_stream outside a loop")
	}
	if len(c.Args) < 2 || len(c.Args)%2 != 0 {
		return b.errorf(b.pos, "write_stream expects a stream, a stencil and (var, max) pairs; got %d arguments", len(c.Args))
	}
	s, err := b.variableArg(c, 0)
	if err != nil {
		return err
	}
	src, err := b.variableArg(c, 1)
	if err != nil {
		return err
	}
	stream := ir.PrintName(s)
	t, err := b.streamWire(c, stream)
	if err != nil {
		return err
	}

	fb := sc.fb
	fb.AddOutput(stream, t)
	fb.AddWrite(stream, ir.PrintName(src))
	if sc.writeGuard {
		fb.Print(ir.WriteEnable + " <= UInt<1>(1)")
		fb.Guarded = true
	}
	if sc.inStencil {
		fb.WritePerStep = true
	}
	if err := b.addFIFO(stream, t, b.opts.FIFODepth, fb.Name+"."+stream); err != nil {
		return err
	}
	if len(c.Args) == 2 {
		return nil
	}

	var store []int
	for i := 2; i < len(c.Args); i += 2 {
		last, err := b.constArg(c, i+1)
		if err != nil {
			return err
		}
		store = append(store, last+1)
	}
	name := "IO_" + stream
	if _, ok := b.top.Lookup(name); ok {
		return nil
	}
	port := ir.PrintName(ir.RootName(s))
	axi := t.WithKind(ir.AxiStream)
	axi.StoreExtents = store
	io := ir.NewAdapter(name, ir.KindOutputAdapter, stream, t, port, axi, store)
	if err := b.addChild(b.pos, io); err != nil {
		return err
	}
	b.top.AddOutput(port, axi)
	b.top.Connect(io.Name+"."+stream, "wire_"+stream)
	b.top.Connect(port, io.Name+"."+port)
	b.startDone(io.Name)
	return nil
}

// lineBuffer binds linebuffer(in, out, image extents...).
func (b *builder) lineBuffer(c *kir.Call) error {
	if len(c.Args) < 3 {
		return b.errorf(b.pos, "linebuffer expects an input, an output and image extents")
	}
	in, err := b.variableArg(c, 0)
	if err != nil {
		return err
	}
	out, err := b.variableArg(c, 1)
	if err != nil {
		return err
	}
	image := make([]int, 0, len(c.Args)-2)
	for i := 2; i < len(c.Args); i++ {
		e, err := b.constArg(c, i)
		if err != nil {
			return err
		}
		image = append(image, e)
	}
	in, out = ir.PrintName(in), ir.PrintName(out)
	inT, err := b.streamWire(c, in)
	if err != nil {
		return err
	}
	outT, err := b.streamWire(c, out)
	if err != nil {
		return err
	}
	if inT.Elem != outT.Elem {
		return b.errorf(b.pos, "linebuffer %s: element type %s does not match %s", out, inT.Elem, outT.Elem)
	}
	core, err := b.design.LineBuffers.Plan(inT.Elem, image, inT.Bounds, outT.Bounds)
	if err != nil {
		return b.errorf(b.pos, "linebuffer %s: %v", out, err)
	}
	lb := ir.NewLineBuffer("LB_"+out, in, inT, out, outT, core)
	if err := b.addChild(b.pos, lb); err != nil {
		return err
	}
	b.top.Connect(lb.Name+"."+in, "wire_"+in)
	return b.addFIFO(out, outT, b.opts.FIFODepth, lb.Name+"."+out)
}

// dispatchStream binds
//
//	dispatch_stream(stream, ndims, (size, step, extent)*ndims,
//	                nconsumers, (name, depth, (offset, extent)*ndims)*nconsumers)
func (b *builder) dispatchStream(c *kir.Call) error {
	if len(c.Args) < 3 {
		return b.errorf(b.pos, "dispatch_stream: too few arguments (%d)", len(c.Args))
	}
	s, err := b.variableArg(c, 0)
	if err != nil {
		return err
	}
	ndims, err := b.constArg(c, 1)
	if err != nil {
		return err
	}
	if ndims < 1 || len(c.Args) < 3+3*ndims {
		return b.errorf(b.pos, "dispatch_stream: bad dimension count %d", ndims)
	}
	dims := make([]ir.DispatchDim, ndims)
	for j := range dims {
		var vals [3]int
		for k := range vals {
			if vals[k], err = b.constArg(c, 2+3*j+k); err != nil {
				return err
			}
		}
		dims[j] = ir.DispatchDim{Size: vals[0], Step: vals[1], Extent: vals[2]}
		// The router counter must land exactly on its last origin.
		if span := vals[2] - vals[0]; vals[1] < 1 || (span > 0 && span%vals[1] != 0) {
			return b.errorf(b.pos, "dispatch_stream %s: dimension %d steps by %d, which does not reach the last window origin %d",
				ir.PrintName(s), j, vals[1], max(span, 0))
		}
	}
	nconsumers, err := b.constArg(c, 2+3*ndims)
	if err != nil {
		return err
	}
	per := 2 + 2*ndims
	if want := 3 + 3*ndims + nconsumers*per; nconsumers < 1 || len(c.Args) != want {
		return b.errorf(b.pos, "dispatch_stream: %d dimension(s) and %d consumer(s) need %d arguments, got %d",
			ndims, nconsumers, want, len(c.Args))
	}

	stream := ir.PrintName(s)
	consumers := make([]ir.DispatchConsumer, nconsumers)
	for i := range consumers {
		base := 3 + 3*ndims + per*i
		name, ok := c.Args[base].(*kir.StringImm)
		if !ok {
			return b.errorf(b.pos, "dispatch_stream: consumer %d must be named by a string", i)
		}
		depth, err := b.constArg(c, base+1)
		if err != nil {
			return err
		}
		cons := ir.DispatchConsumer{
			Name:    name.Value,
			Port:    stream + "_to_" + ir.PrintName(name.Value),
			Depth:   depth,
			Offsets: make([]int, ndims),
			Extents: make([]int, ndims),
		}
		for j := 0; j < ndims; j++ {
			if cons.Offsets[j], err = b.constArg(c, base+2+2*j); err != nil {
				return err
			}
			if cons.Extents[j], err = b.constArg(c, base+3+2*j); err != nil {
				return err
			}
		}
		consumers[i] = cons
	}

	t, err := b.streamWire(c, stream)
	if err != nil {
		return err
	}
	if len(consumers) == 1 && consumers[0].Depth == 0 {
		alias := "wire_" + consumers[0].Port
		b.top.AddWire(alias, t)
		b.top.Connect(alias, "wire_"+stream)
		return nil
	}

	dp := ir.NewDispatch("DP_"+stream, stream, t, dims)
	if err := b.addChild(b.pos, dp); err != nil {
		return err
	}
	b.top.Connect(dp.Name+"."+stream, "wire_"+stream)
	b.startDone(dp.Name)
	for _, cons := range consumers {
		if cons.Depth < 1 {
			cons.Depth = 1
		}
		dp.AddConsumer(cons, t)
		if err := b.addFIFO(cons.Port, t, cons.Depth, dp.Name+"."+cons.Port); err != nil {
			return err
		}
	}
	return nil
}
