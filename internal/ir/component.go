package ir

import "fmt"

// ComponentKind enumerates the module kinds the emitter knows how to print.
type ComponentKind int

const (
	KindTop ComponentKind = iota
	KindSlaveIf
	KindInputAdapter
	KindOutputAdapter
	KindFIFO
	KindLineBuffer
	KindDispatch
	KindForBlock
)

// EmissionOrder lists the non-top kinds in the order their modules appear
// in the circuit.
var EmissionOrder = []ComponentKind{
	KindSlaveIf,
	KindInputAdapter,
	KindOutputAdapter,
	KindFIFO,
	KindLineBuffer,
	KindDispatch,
	KindForBlock,
}

func (k ComponentKind) String() string {
	switch k {
	case KindTop:
		return "TopLevel"
	case KindSlaveIf:
		return "SlaveIf"
	case KindInputAdapter:
		return "Input"
	case KindOutputAdapter:
		return "Output"
	case KindFIFO:
		return "FIFO"
	case KindLineBuffer:
		return "LineBuffer"
	case KindDispatch:
		return "Dispatch"
	case KindForBlock:
		return "ForBlock"
	default:
		panic(fmt.Sprintf("ir: unhandled component kind %d", int(k)))
	}
}

// Signal is a named, typed port, register or wire. Init holds the reset
// literal of a register; registers without one are not reset.
type Signal struct {
	Name string
	Type Type
	Init string
}

// SignalList keeps signals in insertion order. Adding a name twice keeps
// the first declaration.
type SignalList struct {
	items []Signal
	index map[string]int
}

// Add declares name and reports whether it was new.
func (l *SignalList) Add(sig Signal) bool {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[sig.Name]; ok {
		return false
	}
	l.index[sig.Name] = len(l.items)
	l.items = append(l.items, sig)
	return true
}

// Lookup finds a signal by name.
func (l *SignalList) Lookup(name string) (Signal, bool) {
	i, ok := l.index[name]
	if !ok {
		return Signal{}, false
	}
	return l.items[i], true
}

// Has reports whether name is declared.
func (l *SignalList) Has(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Items returns the signals in declaration order.
func (l *SignalList) Items() []Signal { return l.items }

// Len returns the number of signals.
func (l *SignalList) Len() int { return len(l.items) }

// Connect is one last-connect statement, Dst <= Src.
type Connect struct {
	Dst string
	Src string
}

// ConnectList keeps connects in first-insertion order of their
// destination; reconnecting a destination replaces its source in place.
type ConnectList struct {
	items []Connect
	index map[string]int
}

// Add records dst <= src.
func (l *ConnectList) Add(dst, src string) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[dst]; ok {
		l.items[i].Src = src
		return
	}
	l.index[dst] = len(l.items)
	l.items = append(l.items, Connect{Dst: dst, Src: src})
}

// Source returns the current driver of dst.
func (l *ConnectList) Source(dst string) (string, bool) {
	i, ok := l.index[dst]
	if !ok {
		return "", false
	}
	return l.items[i].Src, true
}

// Items returns the connects in order.
func (l *ConnectList) Items() []Connect { return l.items }

// Instance places a module inside a component.
type Instance struct {
	Name   string
	Module string
}

// Component is the common part of every generated module.
type Component struct {
	Name      string
	Kind      ComponentKind
	In        SignalList
	Out       SignalList
	Regs      SignalList
	Wires     SignalList
	Instances []Instance
	Connects  ConnectList
	// Inputs and Outputs are the stream ports, a subset of In and Out.
	Inputs       SignalList
	Outputs      SignalList
	StoreExtents []int
}

// Module is implemented by every component kind.
type Module interface {
	Base() *Component
}

// Base returns the component itself.
func (c *Component) Base() *Component { return c }

// AddInPort declares an input port.
func (c *Component) AddInPort(name string, t Type) {
	c.In.Add(Signal{Name: name, Type: t})
}

// AddOutPort declares an output port.
func (c *Component) AddOutPort(name string, t Type) {
	c.Out.Add(Signal{Name: name, Type: t})
}

// AddInput declares a stream input port.
func (c *Component) AddInput(name string, t Type) {
	c.AddInPort(name, t)
	c.Inputs.Add(Signal{Name: name, Type: t})
}

// AddOutput declares a stream output port.
func (c *Component) AddOutput(name string, t Type) {
	c.AddOutPort(name, t)
	c.Outputs.Add(Signal{Name: name, Type: t})
}

// AddReg declares a register without reset.
func (c *Component) AddReg(name string, t Type) {
	c.Regs.Add(Signal{Name: name, Type: t})
}

// AddResetReg declares a register reset to init.
func (c *Component) AddResetReg(name string, t Type, init string) {
	c.Regs.Add(Signal{Name: name, Type: t, Init: init})
}

// AddWire declares a wire.
func (c *Component) AddWire(name string, t Type) {
	c.Wires.Add(Signal{Name: name, Type: t})
}

// AddInstance places module inside c under name.
func (c *Component) AddInstance(name, module string) {
	for _, inst := range c.Instances {
		if inst.Name == name {
			return
		}
	}
	c.Instances = append(c.Instances, Instance{Name: name, Module: module})
}

// Connect records dst <= src.
func (c *Component) Connect(dst, src string) {
	c.Connects.Add(dst, src)
}

// Port looks a port up in either direction.
func (c *Component) Port(name string) (Signal, bool) {
	if s, ok := c.In.Lookup(name); ok {
		return s, true
	}
	return c.Out.Lookup(name)
}

// Declared reports whether name is a port, register or wire of c.
func (c *Component) Declared(name string) bool {
	return c.In.Has(name) || c.Out.Has(name) || c.Regs.Has(name) || c.Wires.Has(name)
}
