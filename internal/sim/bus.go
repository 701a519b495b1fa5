package sim

import "stencilrtl/internal/ir"

const (
	stIdle = iota
	stAddr
	stData
)

// BusIn is what the control/status interface sees in one cycle. Done is
// indexed like SlaveIf.DonePorts.
type BusIn struct {
	AWValid bool
	AWAddr  uint32
	WValid  bool
	WData   uint32
	BReady  bool
	ARValid bool
	ARAddr  uint32
	RReady  bool
	Done    []bool
}

// BusOut is what the interface drives in one cycle.
type BusOut struct {
	AWReady bool
	WReady  bool
	BValid  bool
	ARReady bool
	RValid  bool
	RData   uint32
	Start   bool
}

// Bus models the control/status register file.
type Bus struct {
	amap      ir.AddressMap
	aw, ar    int
	awAddr    uint32
	arAddr    uint32
	rdData    uint32
	start     bool
	run       bool
	done      bool
	doneFlags []bool
	words     map[string][]uint32
}

// NewBus returns the model of s with user registers placed from base.
func NewBus(s *ir.SlaveIf, base int) *Bus {
	b := &Bus{
		amap:      s.AddressMap(base),
		doneFlags: make([]bool, len(s.DonePorts())),
		words:     make(map[string][]uint32),
	}
	for _, e := range b.amap.Entries {
		b.words[e.Register.Name] = make([]uint32, e.Register.Words())
	}
	return b
}

// Running reports the STATUS run bit.
func (b *Bus) Running() bool { return b.run }

// Done reports the CTRL done bit.
func (b *Bus) Done() bool { return b.done }

// Word returns word i of register name as its ports see it.
func (b *Bus) Word(name string, i int) uint32 { return b.words[name][i] }

// Cycle advances the interface by one clock.
func (b *Bus) Cycle(in BusIn) BusOut {
	out := BusOut{
		AWReady: b.aw == stIdle,
		WReady:  b.aw == stAddr,
		BValid:  b.aw == stData,
		ARReady: b.ar == stIdle,
		RValid:  b.ar == stData,
		RData:   b.rdData,
		Start:   b.start,
	}
	wrEn := b.aw == stAddr && in.WValid
	wrAddr := b.awAddr

	switch b.aw {
	case stIdle:
		if in.AWValid {
			b.aw = stAddr
		}
	case stAddr:
		if in.WValid {
			b.aw = stData
		}
	case stData:
		if in.BReady {
			b.aw = stIdle
		}
	}
	if in.AWValid && out.AWReady {
		b.awAddr = in.AWAddr
	}

	if b.ar == stAddr {
		b.rdData = b.read(b.arAddr)
	}
	switch b.ar {
	case stIdle:
		if in.ARValid {
			b.ar = stAddr
		}
	case stAddr:
		b.ar = stData
	case stData:
		if in.RReady {
			b.ar = stIdle
		}
	}
	if in.ARValid && out.ARReady {
		b.arAddr = in.ARAddr
	}

	ctrlWr := wrEn && wrAddr == ir.AddrCtrl
	clear := ctrlWr && in.WData&2 != 0
	restart := b.start || clear
	allDone := true
	for i, flag := range b.doneFlags {
		allDone = allDone && flag
		if restart {
			b.doneFlags[i] = false
		} else if in.Done[i] {
			b.doneFlags[i] = true
		}
	}
	switch {
	case b.start:
		b.run = true
	case b.done:
		b.run = false
	}
	if restart {
		b.done = false
	} else if allDone {
		b.done = true
	}
	b.start = ctrlWr && in.WData&1 != 0

	if wrEn {
		b.write(wrAddr, in.WData)
	}
	return out
}

func (b *Bus) read(addr uint32) uint32 {
	switch addr {
	case ir.AddrCtrl:
		var v uint32
		if b.done {
			v |= 2
		}
		if b.start {
			v |= 1
		}
		return v
	case ir.AddrStatus:
		if b.run {
			return 1
		}
		return 0
	}
	e, ok := b.amap.Find(int(addr))
	if !ok {
		return 0
	}
	if !e.Register.Memory && int(addr) != e.Offset {
		return 0
	}
	return b.words[e.Register.Name][(int(addr)-e.Offset)/ir.WordBytes]
}

func (b *Bus) write(addr, data uint32) {
	e, ok := b.amap.Find(int(addr))
	if !ok || (!e.Register.Memory && int(addr) != e.Offset) {
		return
	}
	if w := e.Register.Elem.Width; w < 32 {
		data &= 1<<w - 1
	}
	b.words[e.Register.Name][(int(addr)-e.Offset)/ir.WordBytes] = data
}
