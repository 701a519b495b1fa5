package sim

import "stencilrtl/internal/ir"

// LoopIn is what a loop block sees in one cycle. InValid and OutReady are
// the conjunctions over every input and output stream. WriteEnable only
// matters for a guarded block.
type LoopIn struct {
	Start       bool
	InValid     bool
	OutReady    bool
	WriteEnable bool
}

// LoopOut is what a loop block drives in one cycle.
type LoopOut struct {
	RunStep  bool
	LastStep bool
	OutValid bool
	Done     bool
	State    int
}

// Loop models the loop-block state machine and its delay chains.
type Loop struct {
	f       *ir.ForBlock
	scan    []int
	stencil []int
	// index 0 is stage 1
	valid     []bool
	last      []bool
	stencilD  [][]int
	started   bool
	state     int
	noOutputs bool
}

// NewLoop returns the model of f, reset.
func NewLoop(f *ir.ForBlock) *Loop {
	l := &Loop{
		f:         f,
		valid:     make([]bool, f.Depth),
		last:      make([]bool, f.Depth),
		stencilD:  make([][]int, f.Depth),
		noOutputs: len(f.Writes) == 0,
	}
	l.reset()
	return l
}

func (l *Loop) reset() {
	l.scan = mins(l.f.ScanVars)
	l.stencil = mins(l.f.StencilVars)
	for k := range l.stencilD {
		l.stencilD[k] = mins(l.f.StencilVars)
		l.valid[k] = false
		l.last[k] = false
	}
	l.state = 0
}

// State returns the current state: 0 start window, 1 stencil steps,
// 2 drain.
func (l *Loop) State() int { return l.state }

// Cycle advances the block by one clock.
func (l *Loop) Cycle(in LoopIn) LoopOut {
	f := l.f
	d := f.Depth
	out := LoopOut{OutValid: l.valid[d-1], State: l.state}
	writeEn := !f.Guarded || in.WriteEnable

	if l.started && (in.OutReady || l.noOutputs) {
		scanLast := atMax(l.scan, f.ScanVars)
		stencilLast := atMax(l.stencil, f.StencilVars)
		drained := l.last[d-1] && atMax(l.stencilD[d-1], f.StencilVars)

		copy(l.valid[1:], l.valid[:d-1])
		copy(l.last[1:], l.last[:d-1])
		copy(l.stencilD[1:], l.stencilD[:d-1])
		l.stencilD[0] = append([]int(nil), l.stencil...)
		l.last[0] = false

		switch l.state {
		case 0:
			if in.InValid {
				out.RunStep = true
				if f.HasStencilLoop() {
					carry(l.stencil, f.StencilVars)
					l.state = 1
				} else {
					out.LastStep = true
				}
			}
		case 1:
			if in.InValid {
				out.RunStep = true
				carry(l.stencil, f.StencilVars)
				out.LastStep = stencilLast
			}
		case 2:
			if drained {
				l.state = 0
				out.Done = true
			}
		}
		if out.LastStep {
			carry(l.scan, f.ScanVars)
			if scanLast {
				l.state = 2
				l.last[0] = true
			} else {
				l.state = 0
			}
		}
		produce := out.LastStep
		if f.WritePerStep {
			produce = out.RunStep
		}
		l.valid[0] = produce && writeEn
	}

	if in.Start {
		l.started = true
		l.reset()
	} else if out.Done {
		l.started = false
	}
	return out
}

func mins(vars []ir.LoopVar) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = v.Min
	}
	return out
}

func atMax(vals []int, vars []ir.LoopVar) bool {
	for i, v := range vars {
		if vals[i] != v.Max {
			return false
		}
	}
	return true
}

// carry advances vals as one counter, the last variable fastest.
func carry(vals []int, vars []ir.LoopVar) {
	for i := len(vars) - 1; i >= 0; i-- {
		if vals[i] != vars[i].Max {
			vals[i]++
			return
		}
		vals[i] = vars[i].Min
	}
}
