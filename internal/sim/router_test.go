package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"stencilrtl/internal/ir"
)

var _ = Describe("Router", func() {
	var (
		d *ir.Dispatch
		r *Router
	)

	BeforeEach(func() {
		t := ir.StreamOf(ir.UInt(8), []int{1}, []int{8})
		d = ir.NewDispatch("DP_in", "in", t, []ir.DispatchDim{{Size: 1, Step: 1, Extent: 8}})
		d.AddConsumer(ir.DispatchConsumer{Name: "a", Port: "in_to_a", Depth: 1, Offsets: []int{0}, Extents: []int{4}}, t)
		d.AddConsumer(ir.DispatchConsumer{Name: "b", Port: "in_to_b", Depth: 1, Offsets: []int{2}, Extents: []int{6}}, t)
		r = NewRouter(d)
	})

	It("should deliver each position to the consumers whose region holds it", func() {
		got := [][]int{nil, nil}
		done := 0
		for pos := 0; pos < 8; pos++ {
			out := r.Cycle(RouterIn{Valid: true, Value: scalarBlock(int64(pos)), Ready: []bool{true, true}})
			Expect(out.InReady).To(BeTrue())
			for i, v := range out.Valid {
				if v {
					got[i] = append(got[i], int(out.Value.Data[0]))
				}
			}
			if out.Done {
				done++
				Expect(pos).To(Equal(7))
			}
		}
		Expect(got[0]).To(Equal([]int{0, 1, 2, 3}))
		Expect(got[1]).To(Equal([]int{2, 3, 4, 5, 6, 7}))
		Expect(done).To(Equal(1))
		Expect(r.Position()).To(Equal([]int{0}))
	})

	It("should not stall on a busy consumer outside its region", func() {
		for pos := 0; pos < 2; pos++ {
			out := r.Cycle(RouterIn{Valid: true, Ready: []bool{true, false}})
			Expect(out.InReady).To(BeTrue())
			Expect(out.Valid).To(Equal([]bool{true, false}))
		}
	})

	It("should stall while an interested consumer is busy", func() {
		for pos := 0; pos < 2; pos++ {
			r.Cycle(RouterIn{Valid: true, Ready: []bool{true, true}})
		}
		out := r.Cycle(RouterIn{Valid: true, Ready: []bool{true, false}})
		Expect(out.InReady).To(BeFalse())
		Expect(out.Valid).To(Equal([]bool{false, false}))
		Expect(r.Position()).To(Equal([]int{2}))

		out = r.Cycle(RouterIn{Valid: true, Ready: []bool{true, true}})
		Expect(out.InReady).To(BeTrue())
		Expect(out.Valid).To(Equal([]bool{true, true}))
	})

	It("should hold its position without valid input", func() {
		out := r.Cycle(RouterIn{Ready: []bool{true, true}})
		Expect(out.InReady).To(BeFalse())
		Expect(r.Position()).To(Equal([]int{0}))
	})

	It("should return to the first origin on start", func() {
		for pos := 0; pos < 3; pos++ {
			r.Cycle(RouterIn{Valid: true, Ready: []bool{true, true}})
		}
		Expect(r.Position()).To(Equal([]int{3}))

		out := r.Cycle(RouterIn{Start: true, Valid: true, Ready: []bool{true, true}})
		Expect(out.InReady).To(BeTrue())
		Expect(r.Position()).To(Equal([]int{0}))
	})
})
