package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"stencilrtl/internal/ir"
)

// runWindow streams every element of an image through the core of c and
// returns the windows it emits. pixel gives the value at an image
// coordinate.
func runWindow(c *ir.LineBufferCore, pixel func(p [4]int) int64) []Block {
	w := NewWindow(c)
	steps := [4]int{c.Steps(0), c.Steps(1), c.Steps(2), c.Steps(3)}
	var windows []Block
	Each(steps, func(s [4]int) {
		in := NewBlock(c.In)
		Each(c.In, func(i [4]int) {
			var p [4]int
			for d := range p {
				p[d] = s[d]*c.In[d] + i[d]
			}
			in.Set(i, pixel(p))
		})
		out := w.Cycle(WindowIn{Valid: true, Value: in, OutReady: true})
		Expect(out.InReady).To(BeTrue())
		if out.OutValid {
			windows = append(windows, out.OutValue.Clone())
		}
	})
	return windows
}

func plan(image, in, out []int) *ir.LineBufferCore {
	c, err := ir.NewLineBufferLibrary().Plan(ir.UInt(16), image, in, out)
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Window buffer", func() {
	It("should emit width-size+1 windows along one dimension", func() {
		c := plan([]int{8}, []int{1}, []int{3})
		Expect(c.Shape).To(Equal(ir.Shape1D))

		windows := runWindow(c, func(p [4]int) int64 { return int64(p[0]) })

		Expect(windows).To(HaveLen(6))
		Expect(windows).To(HaveLen(c.Windows()))
		for k, w := range windows {
			Expect(w.Data).To(Equal([]int64{int64(k), int64(k + 1), int64(k + 2)}))
		}
	})

	It("should widen multi-element inputs", func() {
		c := plan([]int{8}, []int{2}, []int{4})
		windows := runWindow(c, func(p [4]int) int64 { return int64(p[0]) })
		Expect(windows).To(HaveLen(3))
		for k, w := range windows {
			Expect(w.Data[0]).To(Equal(int64(2 * k)))
			Expect(w.Data[3]).To(Equal(int64(2*k + 3)))
		}
	})

	It("should pass equal windows straight through", func() {
		c := plan([]int{4, 2}, []int{2, 1}, []int{2, 1})
		Expect(c.Shape).To(Equal(ir.ShapePass))
		Expect(runWindow(c, func(p [4]int) int64 { return 0 })).To(HaveLen(4))
	})

	It("should stack rows for a 2D window", func() {
		c := plan([]int{4, 4}, []int{1, 1}, []int{3, 3})
		Expect(c.Shape).To(Equal(ir.Shape2D))
		pixel := func(p [4]int) int64 { return int64(p[1]*4 + p[0]) }

		windows := runWindow(c, pixel)

		Expect(windows).To(HaveLen(4))
		Expect(windows).To(HaveLen(c.Windows()))
		for k, w := range windows {
			x0, y0 := k%2, k/2
			Each(w.Ext, func(i [4]int) {
				Expect(w.At(i)).To(Equal(pixel([4]int{x0 + i[0], y0 + i[1]})), "window %d element %v", k, i)
			})
		}
	})

	It("should slide a 3x3 window over an image whose height is not a multiple of 3", func() {
		c := plan([]int{8, 8}, []int{1, 1}, []int{3, 3})
		pixel := func(p [4]int) int64 { return int64(p[1]*8 + p[0]) }

		windows := runWindow(c, pixel)

		Expect(windows).To(HaveLen(36))
		for k, w := range windows {
			x0, y0 := k%6, k/6
			Each(w.Ext, func(i [4]int) {
				Expect(w.At(i)).To(Equal(pixel([4]int{x0 + i[0], y0 + i[1]})), "window %d element %v", k, i)
			})
		}
	})

	It("should flatten a 3D window that spans dimension 0", func() {
		c := plan([]int{2, 4, 4}, []int{2, 1, 1}, []int{2, 3, 3})
		Expect(c.Shape).To(Equal(ir.ShapeFlatten))
		pixel := func(p [4]int) int64 { return int64(p[0] + 2*p[1] + 8*p[2]) }

		windows := runWindow(c, pixel)

		Expect(windows).To(HaveLen(4))
		for k, w := range windows {
			y0, z0 := k%2, k/2
			Each(w.Ext, func(i [4]int) {
				Expect(w.At(i)).To(Equal(pixel([4]int{i[0], y0 + i[1], z0 + i[2]})), "window %d element %v", k, i)
			})
		}
	})

	It("should stall the input while the output is not ready", func() {
		c := plan([]int{8}, []int{1}, []int{3})
		w := NewWindow(c)
		out := w.Cycle(WindowIn{Valid: true, Value: scalarBlock(1), OutReady: false})
		Expect(out.InReady).To(BeFalse())
		Expect(out.OutValid).To(BeFalse())
	})
})
