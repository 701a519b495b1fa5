package sim

import "stencilrtl/internal/ir"

// FIFOIn is what a queue sees in one cycle.
type FIFOIn struct {
	Valid    bool
	Value    Block
	OutReady bool
}

// FIFOOut is what a queue drives in one cycle.
type FIFOOut struct {
	InReady  bool
	OutValid bool
	OutValue Block
}

// FIFO models the circular queue: Depth+1 memory slots plus the output
// register.
type FIFO struct {
	depth    int
	mem      []Block
	wr, rd   int
	level    int
	empty    bool
	full     bool
	validOut bool
	dataOut  Block
}

// NewFIFO returns the model of f, reset.
func NewFIFO(f *ir.FIFO) *FIFO {
	return &FIFO{depth: f.Depth, mem: make([]Block, f.Depth+1), empty: true}
}

// Level returns the number of elements held in memory.
func (q *FIFO) Level() int { return q.level }

// Slots returns the memory capacity.
func (q *FIFO) Slots() int { return q.depth + 1 }

// Cycle advances the queue by one clock.
func (q *FIFO) Cycle(in FIFOIn) FIFOOut {
	out := FIFOOut{InReady: !q.full, OutValid: q.validOut, OutValue: q.dataOut}
	push := in.Valid && !q.full
	pop := (in.OutReady || !q.validOut) && !q.empty

	if pop {
		q.dataOut = q.mem[q.rd]
		q.validOut = true
		q.rd, _ = wrap(q.rd, 1, q.depth)
	} else if in.OutReady {
		q.validOut = false
	}
	if push {
		q.mem[q.wr] = in.Value.Clone()
		q.wr, _ = wrap(q.wr, 1, q.depth)
	}

	switch {
	case push && !pop:
		if q.level == q.depth {
			q.full = true
		}
		q.level++
		q.empty = false
	case !push && pop:
		if q.level == 1 {
			q.empty = true
		}
		q.level--
		q.full = false
	}
	return out
}
