package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"stencilrtl/internal/ir"
)

func scalarBlock(v int64) Block {
	b := NewBlock([4]int{1, 1, 1, 1})
	b.Data[0] = v
	return b
}

var _ = Describe("FIFO", func() {
	var stream ir.Type

	BeforeEach(func() {
		stream = ir.StreamOf(ir.UInt(16), []int{1}, []int{1})
	})

	It("should clamp the depth to one", func() {
		q := NewFIFO(ir.NewFIFO("FIFO_a", stream, 0))
		Expect(q.Slots()).To(Equal(2))
	})

	It("should report not-ready only when every slot is taken", func() {
		q := NewFIFO(ir.NewFIFO("FIFO_a", stream, 2))
		for i := 0; i < q.Slots(); i++ {
			out := q.Cycle(FIFOIn{Valid: true, Value: scalarBlock(int64(i))})
			Expect(out.InReady).To(BeTrue())
		}
		// the first element moved to the output register
		out := q.Cycle(FIFOIn{Valid: true, Value: scalarBlock(3)})
		Expect(out.InReady).To(BeTrue())
		Expect(q.Level()).To(Equal(q.Slots()))
		Expect(q.Cycle(FIFOIn{Valid: true, Value: scalarBlock(4)}).InReady).To(BeFalse())
	})

	DescribeTable("should preserve order under random handshakes",
		func(depth int, seed int64) {
			q := NewFIFO(ir.NewFIFO("FIFO_a", stream, depth))
			rng := rand.New(rand.NewSource(seed))
			var pushed, popped []int64
			next := int64(0)
			pending := false
			for cycle := 0; cycle < 2000; cycle++ {
				valid := pending || rng.Intn(3) > 0
				pending = valid
				ready := rng.Intn(2) == 0
				out := q.Cycle(FIFOIn{Valid: valid, Value: scalarBlock(next), OutReady: ready})
				if out.OutValid && ready {
					popped = append(popped, out.OutValue.Data[0])
				}
				if valid && out.InReady {
					pushed = append(pushed, next)
					next++
					pending = false
				}
				Expect(q.Level()).To(BeNumerically(">=", 0))
				Expect(q.Level()).To(BeNumerically("<=", q.Slots()))
			}
			Expect(len(popped)).To(BeNumerically(">", 100))
			Expect(popped).To(Equal(pushed[:len(popped)]))
		},
		Entry("depth 1", 1, int64(1)),
		Entry("depth 3", 3, int64(7)),
		Entry("depth 8", 8, int64(42)),
	)
})
