package sim

import (
	"fmt"

	"stencilrtl/internal/ir"
)

// WindowIn is what a window-buffer core sees in one cycle.
type WindowIn struct {
	Valid    bool
	Value    Block
	OutReady bool
}

// WindowOut is what a window-buffer core drives in one cycle.
type WindowOut struct {
	InReady  bool
	OutValid bool
	OutValue Block
}

// Window is a window-buffer core model.
type Window interface {
	Cycle(in WindowIn) WindowOut
}

// NewWindow returns the model of core c and of its nested cores.
func NewWindow(c *ir.LineBufferCore) Window {
	switch c.Shape {
	case ir.ShapePass:
		return passWindow{}
	case ir.Shape1D:
		return &shiftWindow{c: c, buffer: make([]Block, c.Buffered(0))}
	case ir.Shape2D:
		rows := make([][]Block, c.Buffered(1))
		for l := range rows {
			rows[l] = make([]Block, c.Steps(0))
			for col := range rows[l] {
				rows[l][col] = NewBlock(c.In)
			}
		}
		return &rowWindow{c: c, mem: rows, child: NewWindow(c.Child)}
	case ir.ShapeFlatten:
		return &flatWindow{c: c, child: NewWindow(c.Child)}
	default:
		panic(fmt.Sprintf("sim: unhandled line buffer shape %d", int(c.Shape)))
	}
}

type passWindow struct{}

func (passWindow) Cycle(in WindowIn) WindowOut {
	return WindowOut{InReady: in.OutReady, OutValid: in.Valid, OutValue: in.Value}
}

// shiftWindow keeps the last Buffered(0) elements of a row.
type shiftWindow struct {
	c      *ir.LineBufferCore
	buffer []Block
	col    int
}

func (w *shiftWindow) Cycle(in WindowIn) WindowOut {
	c := w.c
	slots := len(w.buffer)
	out := WindowOut{InReady: in.OutReady, OutValue: NewBlock(c.Out)}
	if in.Valid {
		Each(c.Out, func(i [4]int) {
			slot, j := i[0]/c.In[0], i
			j[0] = i[0] % c.In[0]
			if slot < slots {
				if w.buffer[slot].Data != nil {
					out.OutValue.Set(i, w.buffer[slot].At(j))
				}
			} else {
				out.OutValue.Set(i, in.Value.At(j))
			}
		})
		out.OutValid = w.col >= slots
	}
	if in.Valid && in.OutReady {
		copy(w.buffer, w.buffer[1:])
		w.buffer[slots-1] = in.Value.Clone()
		w.col, _ = wrap(w.col, 1, c.Steps(0)-1)
	}
	return out
}

// rowWindow keeps Buffered(1) past rows, the oldest in mem[writeIdx], and
// feeds row-stacked slices to the nested core.
type rowWindow struct {
	c        *ir.LineBufferCore
	mem      [][]Block
	col, row int
	writeIdx int
	child    Window
}

func (w *rowWindow) Cycle(in WindowIn) WindowOut {
	c := w.c
	rows := len(w.mem)
	slice := NewBlock(c.Child.In)
	if in.Valid {
		for l := 0; l < rows; l++ {
			pos := (l - w.writeIdx + rows) % rows
			rd := w.mem[l][w.col]
			Each(c.In, func(i [4]int) {
				dst := i
				dst[1] = pos*c.In[1] + i[1]
				slice.Set(dst, rd.At(i))
			})
		}
		Each(c.In, func(i [4]int) {
			dst := i
			dst[1] = rows*c.In[1] + i[1]
			slice.Set(dst, in.Value.At(i))
		})
	}
	co := w.child.Cycle(WindowIn{Valid: in.Valid && w.row >= rows, Value: slice, OutReady: in.OutReady})

	if in.Valid && co.InReady {
		w.mem[w.writeIdx][w.col] = in.Value.Clone()
		var wrapped bool
		if w.col, wrapped = wrap(w.col, 1, c.Steps(0)-1); wrapped {
			w.row, _ = wrap(w.row, 1, c.Steps(1)-1)
			w.writeIdx, _ = wrap(w.writeIdx, 1, rows-1)
		}
	}
	return WindowOut{InReady: co.InReady, OutValid: co.OutValid, OutValue: co.OutValue}
}

// flatWindow merges dimensions 0 and 1 for the nested core.
type flatWindow struct {
	c     *ir.LineBufferCore
	child Window
}

func (w *flatWindow) Cycle(in WindowIn) WindowOut {
	c := w.c
	flat := NewBlock(c.Child.In)
	if in.Valid {
		Each(c.In, func(i [4]int) {
			flat.Set([4]int{c.FlatIndex(i[0], i[1], c.In), i[2], i[3], 0}, in.Value.At(i))
		})
	}
	co := w.child.Cycle(WindowIn{Valid: in.Valid, Value: flat, OutReady: in.OutReady})
	out := WindowOut{InReady: co.InReady, OutValid: co.OutValid, OutValue: NewBlock(c.Out)}
	if co.OutValid {
		Each(c.Out, func(i [4]int) {
			out.OutValue.Set(i, co.OutValue.At([4]int{c.FlatIndex(i[0], i[1], c.Out), i[2], i[3], 0}))
		})
	}
	return out
}
