// Package lower walks a kernel once and builds the component graph of the
// accelerator: the bus interface, stream adapters, queues, window buffers,
// routers and one compute block per loop nest.
package lower

import (
	"errors"
	"fmt"
	"log/slog"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
)

// Options control the generated hardware.
type Options struct {
	Target        string
	PipelineDepth int
	FIFODepth     int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{Target: "hls_target", PipelineDepth: 1, FIFODepth: 1}
}

// errLowering marks a failure already reported through the reporter.
var errLowering = errors.New("lowering failed")

// axiInputs and axiOutputs are the AXI-lite signals of the control bus.
var axiInputs = []ir.Signal{
	{Name: "AWADDR", Type: ir.ScalarOf(ir.UInt(32))},
	{Name: "AWVALID", Type: ir.Bit},
	{Name: "WVALID", Type: ir.Bit},
	{Name: "WDATA", Type: ir.ScalarOf(ir.UInt(32))},
	{Name: "WSTRB", Type: ir.ScalarOf(ir.UInt(4))},
	{Name: "ARADDR", Type: ir.ScalarOf(ir.UInt(32))},
	{Name: "ARVALID", Type: ir.Bit},
	{Name: "RREADY", Type: ir.Bit},
	{Name: "BREADY", Type: ir.Bit},
}

var axiOutputs = []ir.Signal{
	{Name: "AWREADY", Type: ir.Bit},
	{Name: "WREADY", Type: ir.Bit},
	{Name: "ARREADY", Type: ir.Bit},
	{Name: "RVALID", Type: ir.Bit},
	{Name: "RDATA", Type: ir.ScalarOf(ir.UInt(32))},
	{Name: "RRESP", Type: ir.ScalarOf(ir.UInt(2))},
	{Name: "BVALID", Type: ir.Bit},
	{Name: "BRESP", Type: ir.ScalarOf(ir.UInt(2))},
}

// AXISignals returns the bus inputs and outputs in declaration order.
func AXISignals() (inputs, outputs []ir.Signal) {
	return axiInputs, axiOutputs
}

// builder holds all mutable lowering state.
type builder struct {
	opts     Options
	reporter *diag.Reporter

	design *ir.Design
	top    *ir.Top
	sif    *ir.SlaveIf

	args     map[string]kir.Arg
	producer string
	// pos is the position of the statement being lowered.
	pos      diag.Pos
	cache    map[string]string
	nextID   int
	nextTap  map[*ir.ForBlock]int
	nextMem  int
}

// scope is the walk context threaded through statements.
type scope struct {
	fb *ir.ForBlock
	// inStencil is set below a loop that iterates over a window.
	inStencil bool
	// readGuard and writeGuard are set inside a conditional that reads or
	// writes a stream.
	readGuard  bool
	writeGuard bool
}

// Lower builds the component graph of k. Problems are reported through
// reporter; the returned error only summarises them.
func Lower(k *kir.Kernel, opts Options, reporter *diag.Reporter) (*ir.Design, error) {
	if k == nil {
		return nil, fmt.Errorf("lower: nil kernel")
	}
	if opts.Target == "" {
		opts.Target = DefaultOptions().Target
	}
	if opts.PipelineDepth < 1 {
		opts.PipelineDepth = 1
	}
	if opts.FIFODepth < 1 {
		opts.FIFODepth = 1
	}
	b := &builder{
		opts:     opts,
		reporter: reporter,
		args:     make(map[string]kir.Arg),
		cache:    make(map[string]string),
		nextTap:  make(map[*ir.ForBlock]int),
	}
	if err := b.kernel(k); err != nil {
		if errors.Is(err, errLowering) {
			return nil, fmt.Errorf("lower: kernel %q: %d error(s)", k.Name, reporter.ErrorCount())
		}
		return nil, fmt.Errorf("lower: kernel %q: %w", k.Name, err)
	}
	return b.design, nil
}

func (b *builder) errorf(pos diag.Pos, format string, args ...any) error {
	b.reporter.Error(pos, fmt.Sprintf(format, args...))
	return errLowering
}

func (b *builder) kernel(k *kir.Kernel) error {
	b.top = ir.NewTop(b.opts.Target)
	b.sif = ir.NewSlaveIf("SlaveIf")
	b.design = &ir.Design{
		Target:      b.opts.Target,
		Top:         b.top,
		SlaveIf:     b.sif,
		LineBuffers: ir.NewLineBufferLibrary(),
	}
	if err := b.top.Add(b.sif); err != nil {
		return err
	}
	for _, s := range axiInputs {
		b.top.AddInPort(s.Name, s.Type)
		b.sif.AddInPort(s.Name, s.Type)
		b.top.Connect(b.sif.Name+"."+s.Name, s.Name)
	}
	for _, s := range axiOutputs {
		b.top.AddOutPort(s.Name, s.Type)
		b.sif.AddOutPort(s.Name, s.Type)
		b.top.Connect(s.Name, b.sif.Name+"."+s.Name)
	}

	for _, arg := range k.Args {
		if err := b.kernelArg(arg); err != nil {
			return err
		}
	}
	if err := b.stmt(&scope{}, k.Body); err != nil {
		return err
	}
	slog.Debug("lowered kernel", "kernel", k.Name, "components", len(b.top.Children()))
	return nil
}

// kernelArg creates the interface logic of one kernel argument.
func (b *builder) kernelArg(arg kir.Arg) error {
	b.args[arg.Name] = arg
	b.pos = arg.Pos
	elem, err := signalType(arg.Elem)
	if err != nil {
		return b.errorf(arg.Pos, "argument %q: %v", arg.Name, err)
	}
	name := ir.PrintName(arg.Name)

	switch arg.Kind {
	case kir.StreamArg:
		stream := ir.StreamOf(elem, arg.Bounds, arg.StoreExtents)
		if err := stream.Validate(); err != nil {
			return b.errorf(arg.Pos, "argument %q: %v", arg.Name, err)
		}
		if arg.IsOutput {
			b.top.AddWire("wire_"+name, stream)
			return nil
		}
		port := ir.PrintName(ir.RootName(arg.Name))
		axi := stream.WithKind(ir.AxiStream)
		io := ir.NewAdapter("IO_"+name, ir.KindInputAdapter, port, axi, name, stream, arg.StoreExtents)
		if err := b.addChild(arg.Pos, io); err != nil {
			return err
		}
		b.top.AddInput(port, axi)
		b.top.Connect(io.Name+"."+port, port)
		b.startDone(io.Name)
		if err := b.addFIFO(name, stream, b.opts.FIFODepth, io.Name+"."+name); err != nil {
			return err
		}

	case kir.StencilArg:
		if elem.Width > 32 {
			return b.errorf(arg.Pos, "tap table %q has %d-bit elements; bus words hold at most 32", arg.Name, elem.Width)
		}
		if err := b.sif.AddMemory(name, elem, arg.Bounds); err != nil {
			return b.errorf(arg.Pos, "argument %q: %v", arg.Name, err)
		}
		b.top.AddWire("wire_"+name, ir.MemReadOf(elem))

	case kir.ScalarArg:
		if elem.Width > 32 {
			return b.errorf(arg.Pos, "scalar argument %q is %d bits wide; bus registers hold at most 32", arg.Name, elem.Width)
		}
		if err := b.sif.AddScalar(name, elem); err != nil {
			return b.errorf(arg.Pos, "argument %q: %v", arg.Name, err)
		}
		b.top.AddWire("wire_"+name, ir.ScalarOf(elem))
		b.top.Connect("wire_"+name, b.sif.Name+"."+name)

	default:
		panic(fmt.Sprintf("lower: unhandled argument kind %d", int(arg.Kind)))
	}
	return nil
}

// startDone ties a subsystem to the bus start signal and reports its done
// output back to the bus.
func (b *builder) startDone(instance string) {
	done := instance + "_done"
	b.sif.AddDone(done)
	b.top.Connect(instance+"."+ir.StartIn, b.sif.Name+"."+ir.StartOut)
	b.top.Connect(b.sif.Name+"."+done, instance+"."+ir.DoneOut)
}

// wireType returns the type of the top-level wire carrying name.
func (b *builder) wireType(name string) (ir.Type, bool) {
	s, ok := b.top.Wires.Lookup("wire_" + name)
	return s.Type, ok
}

// addChild instantiates m, reporting a name clash at pos.
func (b *builder) addChild(pos diag.Pos, m ir.Module) error {
	if err := b.top.Add(m); err != nil {
		return b.errorf(pos, "%v", err)
	}
	slog.Debug("component", "kind", m.Base().Kind.String(), "name", m.Base().Name)
	return nil
}

// clearCache forgets every memoised expression.
func (b *builder) clearCache() {
	if len(b.cache) > 0 {
		slog.Debug("expression cache cleared", "entries", len(b.cache))
		b.cache = make(map[string]string)
	}
}

// assign names rhs. Inside a loop block the value becomes a node of the
// block body; outside it becomes a top-level wire. Identical right-hand
// sides share one name until the cache is cleared.
func (b *builder) assign(sc *scope, t ir.SignalType, rhs string) string {
	if id, ok := b.cache[rhs]; ok {
		return id
	}
	id := fmt.Sprintf("_%d", b.nextID)
	b.nextID++
	if sc.fb != nil {
		sc.fb.Print("node " + id + " = " + rhs)
	} else {
		b.top.AddWire(id, ir.ScalarOf(t))
		b.top.Connect(id, rhs)
	}
	b.cache[rhs] = id
	return id
}

// signalType converts a kernel element type to hardware.
func signalType(t kir.Type) (ir.SignalType, error) {
	switch t.Code {
	case kir.IntCode:
		return ir.SInt(t.Bits), nil
	case kir.UIntCode:
		return ir.UInt(t.Bits), nil
	case kir.FloatCode:
		return ir.SignalType{}, fmt.Errorf("floating-point type %s cannot be lowered to hardware", t)
	default:
		return ir.SignalType{}, fmt.Errorf("type %s has no hardware representation", t)
	}
}
