package sim

import "stencilrtl/internal/ir"

// RouterIn is what a router sees in one cycle. Ready is indexed like the
// router's consumers.
type RouterIn struct {
	Start bool
	Valid bool
	Value Block
	Ready []bool
}

// RouterOut is what a router drives in one cycle.
type RouterOut struct {
	InReady bool
	Valid   []bool
	Value   Block
	Done    bool
}

// Router models a dispatch component. Its counters hold the origin of the
// window currently offered by the producer.
type Router struct {
	d        *ir.Dispatch
	counters []int
}

// NewRouter returns the model of d, reset.
func NewRouter(d *ir.Dispatch) *Router {
	return &Router{d: d, counters: make([]int, len(d.Dims))}
}

// Position returns the origin of the element offered next.
func (r *Router) Position() []int { return append([]int(nil), r.counters...) }

// Wants reports whether consumer i takes the window at the current origin.
func (r *Router) Wants(i int) bool {
	c := r.d.Consumers[i]
	for j, dim := range r.d.Dims {
		lb := max(c.Offsets[j], 0)
		ub := c.Offsets[j] + c.Extents[j] - dim.Size
		if r.counters[j] < lb || r.counters[j] > ub {
			return false
		}
	}
	return true
}

// Cycle advances the router by one clock. Start wins over the advance of
// the same cycle.
func (r *Router) Cycle(in RouterIn) RouterOut {
	out := r.offer(in)
	if in.Start {
		for j := range r.counters {
			r.counters[j] = 0
		}
	}
	return out
}

func (r *Router) offer(in RouterIn) RouterOut {
	n := len(r.d.Consumers)
	out := RouterOut{Valid: make([]bool, n), Value: in.Value}
	if !in.Valid {
		return out
	}
	wants := make([]bool, n)
	for i := range wants {
		wants[i] = r.Wants(i)
		if wants[i] && !in.Ready[i] {
			return out
		}
	}
	out.InReady = true
	copy(out.Valid, wants)
	for j, dim := range r.d.Dims {
		var wrapped bool
		r.counters[j], wrapped = wrap(r.counters[j], dim.Step, max(dim.Extent-dim.Size, 0))
		if !wrapped {
			return out
		}
	}
	out.Done = true
	return out
}
