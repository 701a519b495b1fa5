package ir

import (
	"fmt"
	"strings"
)

// Common port names shared by the generated modules.
const (
	StartIn  = "start_in"
	DoneOut  = "done_out"
	DataIn   = "data_in"
	DataOut  = "data_out"
	StartOut = "start"
)

// Bit is the one-bit scalar type used for control wires.
var Bit = ScalarOf(UInt(1))

// Top is the root container: it owns every other component as an instance
// and all the wiring between them.
type Top struct {
	Component
	children []Module
	byName   map[string]Module
}

// NewTop returns an empty top-level container.
func NewTop(name string) *Top {
	return &Top{
		Component: Component{Name: name, Kind: KindTop},
		byName:    make(map[string]Module),
	}
}

// Add instantiates m in the top and ties its clock and reset.
func (t *Top) Add(m Module) error {
	c := m.Base()
	if _, ok := t.byName[c.Name]; ok {
		return fmt.Errorf("duplicate instance %q", c.Name)
	}
	t.byName[c.Name] = m
	t.children = append(t.children, m)
	t.AddInstance(c.Name, c.Name)
	t.Connect(c.Name+".clock", "clock")
	t.Connect(c.Name+".reset", "reset")
	return nil
}

// Lookup finds a child by instance name.
func (t *Top) Lookup(name string) (Module, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Children returns the instantiated components in creation order.
func (t *Top) Children() []Module { return t.children }

// OfKind returns the children of one kind in creation order.
func (t *Top) OfKind(k ComponentKind) []Module {
	var out []Module
	for _, m := range t.children {
		if m.Base().Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// BusRegister is one user register of the control interface: a scalar
// argument or a tap table held in memory.
type BusRegister struct {
	Name    string
	Elem    SignalType
	Memory  bool
	Extents []int
	// ReadPorts are the memory read ports handed to loop blocks.
	ReadPorts []string
}

// Words returns the number of 32-bit words the register occupies.
func (r *BusRegister) Words() int {
	if !r.Memory {
		return 1
	}
	n := 1
	for _, e := range Pad4(r.Extents) {
		n *= e
	}
	return n
}

// SlaveIf is the bus-facing control/status register file.
type SlaveIf struct {
	Component
	registers []*BusRegister
	byName    map[string]*BusRegister
	donePorts []string
}

// NewSlaveIf returns the control interface with its start output.
func NewSlaveIf(name string) *SlaveIf {
	s := &SlaveIf{
		Component: Component{Name: name, Kind: KindSlaveIf},
		byName:    make(map[string]*BusRegister),
	}
	s.AddOutPort(StartOut, Bit)
	return s
}

// AddScalar declares a bus-writable scalar exposed on an output port.
func (s *SlaveIf) AddScalar(name string, elem SignalType) error {
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("duplicate bus register %q", name)
	}
	r := &BusRegister{Name: name, Elem: elem}
	s.registers = append(s.registers, r)
	s.byName[name] = r
	s.AddOutPort(name, ScalarOf(elem))
	return nil
}

// AddMemory declares a bus-writable tap table.
func (s *SlaveIf) AddMemory(name string, elem SignalType, extents []int) error {
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("duplicate bus register %q", name)
	}
	if len(extents) == 0 || len(extents) > MemReadLanes {
		return fmt.Errorf("tap table %q needs 1 to %d dimensions", name, MemReadLanes)
	}
	r := &BusRegister{Name: name, Elem: elem, Memory: true, Extents: append([]int(nil), extents...)}
	s.registers = append(s.registers, r)
	s.byName[name] = r
	return nil
}

// AddReadPort gives a loop block its own read port on memory reg.
func (s *SlaveIf) AddReadPort(reg, port string) error {
	r, ok := s.byName[reg]
	if !ok || !r.Memory {
		return fmt.Errorf("no tap table %q", reg)
	}
	for _, p := range r.ReadPorts {
		if p == port {
			return nil
		}
	}
	r.ReadPorts = append(r.ReadPorts, port)
	s.AddOutPort(port, MemReadOf(r.Elem))
	return nil
}

// AddDone registers a completion input of one subsystem.
func (s *SlaveIf) AddDone(port string) {
	if s.In.Has(port) {
		return
	}
	s.AddInPort(port, Bit)
	s.donePorts = append(s.donePorts, port)
}

// Register finds a bus register by name.
func (s *SlaveIf) Register(name string) (*BusRegister, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Registers returns the user registers in declaration order.
func (s *SlaveIf) Registers() []*BusRegister { return s.registers }

// DonePorts returns the completion inputs in registration order.
func (s *SlaveIf) DonePorts() []string { return s.donePorts }

// Adapter converts between the external AXI stream and the internal
// ready/valid stream. Input adapters read In (AxiStream) and drive Out
// (Stream); output adapters do the reverse.
type Adapter struct {
	Component
	InPort  string
	OutPort string
}

// NewAdapter builds an adapter of kind KindInputAdapter or
// KindOutputAdapter.
func NewAdapter(name string, kind ComponentKind, in string, inType Type, out string, outType Type, store []int) *Adapter {
	a := &Adapter{
		Component: Component{Name: name, Kind: kind, StoreExtents: append([]int(nil), store...)},
		InPort:    in,
		OutPort:   out,
	}
	a.AddInPort(StartIn, Bit)
	a.AddInput(in, inType)
	a.AddOutPort(DoneOut, Bit)
	a.AddOutput(out, outType)
	return a
}

// IsInput reports whether the adapter feeds the accelerator.
func (a *Adapter) IsInput() bool { return a.Kind == KindInputAdapter }

// Stream returns the stream type the adapter moves.
func (a *Adapter) Stream() Type {
	s, _ := a.Inputs.Lookup(a.InPort)
	return s.Type
}

// FIFO is a bounded ready/valid queue.
type FIFO struct {
	Component
	Depth int
}

// NewFIFO returns a queue of the given depth, clamped to at least one.
func NewFIFO(name string, t Type, depth int) *FIFO {
	if depth < 1 {
		depth = 1
	}
	f := &FIFO{Component: Component{Name: name, Kind: KindFIFO}, Depth: depth}
	f.AddInput(DataIn, t)
	f.AddOutput(DataOut, t)
	return f
}

// Stream returns the queued stream type.
func (f *FIFO) Stream() Type {
	s, _ := f.Inputs.Lookup(DataIn)
	return s.Type
}

// LineBuffer is the per-instance wrapper around a shared window-buffer
// core.
type LineBuffer struct {
	Component
	InPort  string
	OutPort string
	Core    *LineBufferCore
}

// NewLineBuffer returns the wrapper for core.
func NewLineBuffer(name, in string, inType Type, out string, outType Type, core *LineBufferCore) *LineBuffer {
	lb := &LineBuffer{
		Component: Component{Name: name, Kind: KindLineBuffer, StoreExtents: core.Image[:]},
		InPort:    in,
		OutPort:   out,
		Core:      core,
	}
	lb.AddInput(in, inType)
	lb.AddOutput(out, outType)
	lb.AddInstance(core.Name, core.Name)
	return lb
}

// DispatchDim is one dimension of a routed stream.
type DispatchDim struct {
	Size   int
	Step   int
	Extent int
}

// DispatchConsumer is one destination of a router.
type DispatchConsumer struct {
	Name    string
	Port    string
	Depth   int
	Offsets []int
	Extents []int
}

// Dispatch fans one stream out to several consumers, each receiving the
// windows that fall inside its region.
type Dispatch struct {
	Component
	InPort    string
	Dims      []DispatchDim
	Consumers []DispatchConsumer
}

// NewDispatch returns a router for stream in of type t.
func NewDispatch(name, in string, t Type, dims []DispatchDim) *Dispatch {
	d := &Dispatch{
		Component: Component{Name: name, Kind: KindDispatch},
		InPort:    in,
		Dims:      append([]DispatchDim(nil), dims...),
	}
	d.StoreExtents = make([]int, len(dims))
	for i, dim := range dims {
		d.StoreExtents[i] = dim.Extent
	}
	d.AddInPort(StartIn, Bit)
	d.AddInput(in, t)
	d.AddOutPort(DoneOut, Bit)
	return d
}

// AddConsumer adds an output port for consumer c.
func (d *Dispatch) AddConsumer(c DispatchConsumer, t Type) {
	d.Consumers = append(d.Consumers, c)
	d.AddOutput(c.Port, t)
}

// LoopVar is one counter of a loop block.
type LoopVar struct {
	Name string
	Min  int
	Max  int
}

// StreamWrite binds an output stream to the stencil register it carries.
type StreamWrite struct {
	Port   string
	Source string
}

// WriteEnable is the loop-block wire gating output valid.
const WriteEnable = "write_en"

// ForBlock is a loop nest turned into a pipelined compute block.
type ForBlock struct {
	Component
	ScanVars    []LoopVar
	StencilVars []LoopVar
	Depth       int
	Writes      []StreamWrite
	TapPorts    []string
	// Guarded is set when a conditional encloses the stream write.
	Guarded bool
	// ReadPerStep pops inputs on every stencil step instead of once per
	// window.
	ReadPerStep bool
	// WritePerStep raises output valid on every stencil step.
	WritePerStep bool

	body   []string
	indent int
}

// NewForBlock returns an empty loop block with the given pipeline depth.
func NewForBlock(name string, depth int) *ForBlock {
	if depth < 1 {
		depth = 1
	}
	f := &ForBlock{Component: Component{Name: name, Kind: KindForBlock}, Depth: depth}
	f.AddInPort(StartIn, Bit)
	f.AddOutPort(DoneOut, Bit)
	return f
}

// Print appends one body statement at the current nesting.
func (f *ForBlock) Print(line string) {
	f.body = append(f.body, strings.Repeat("  ", f.indent)+line)
}

// OpenScope prints header and nests the following statements under it.
func (f *ForBlock) OpenScope(header string) {
	f.Print(header)
	f.indent++
}

// CloseScope ends the innermost scope.
func (f *ForBlock) CloseScope() {
	f.Print("skip")
	if f.indent > 0 {
		f.indent--
	}
}

// Body returns the recorded statements.
func (f *ForBlock) Body() []string { return f.body }

// HasStencilLoop reports whether a window takes more than one step.
func (f *ForBlock) HasStencilLoop() bool {
	for _, v := range f.StencilVars {
		if v.Max > v.Min {
			return true
		}
	}
	return false
}

// AddWrite binds output port to source.
func (f *ForBlock) AddWrite(port, source string) {
	for i, w := range f.Writes {
		if w.Port == port {
			f.Writes[i].Source = source
			return
		}
	}
	f.Writes = append(f.Writes, StreamWrite{Port: port, Source: source})
}

// AddTapPort declares a memory read port on the block.
func (f *ForBlock) AddTapPort(port string, elem SignalType) {
	if f.In.Has(port) {
		return
	}
	f.AddInPort(port, MemReadOf(elem))
	f.TapPorts = append(f.TapPorts, port)
}
