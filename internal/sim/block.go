// Package sim holds cycle-level reference models of the generated
// hardware. Each model is built from the same component parameters the
// FIRRTL printer reads and advances one clock per Cycle call: outputs are
// computed from the registers and the inputs of that cycle, then the
// registers take their next values.
package sim

import "fmt"

// Block is one stencil value padded to four dimensions, dimension 0
// fastest.
type Block struct {
	Ext  [4]int
	Data []int64
}

// NewBlock returns a zeroed block with extents ext.
func NewBlock(ext [4]int) Block {
	return Block{Ext: ext, Data: make([]int64, ext[0]*ext[1]*ext[2]*ext[3])}
}

func (b Block) offset(i [4]int) int {
	for d := 0; d < 4; d++ {
		if i[d] < 0 || i[d] >= b.Ext[d] {
			panic(fmt.Sprintf("sim: index %v outside block %v", i, b.Ext))
		}
	}
	return i[0] + b.Ext[0]*(i[1]+b.Ext[1]*(i[2]+b.Ext[2]*i[3]))
}

// At returns the element at i.
func (b Block) At(i [4]int) int64 { return b.Data[b.offset(i)] }

// Set stores v at i.
func (b Block) Set(i [4]int, v int64) { b.Data[b.offset(i)] = v }

// Clone returns a copy that shares no storage with b.
func (b Block) Clone() Block {
	return Block{Ext: b.Ext, Data: append([]int64(nil), b.Data...)}
}

// Each visits every element index of ext, dimension 0 fastest.
func Each(ext [4]int, fn func(i [4]int)) {
	for i3 := 0; i3 < ext[3]; i3++ {
		for i2 := 0; i2 < ext[2]; i2++ {
			for i1 := 0; i1 < ext[1]; i1++ {
				for i0 := 0; i0 < ext[0]; i0++ {
					fn([4]int{i0, i1, i2, i3})
				}
			}
		}
	}
}

// wrap advances a counter by step and returns it to zero after last.
func wrap(v, step, last int) (int, bool) {
	if v == last {
		return 0, true
	}
	return v + step, false
}
