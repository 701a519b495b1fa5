package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"stencilrtl/internal/ir"
)

// trace runs l from a start pulse until done or limit cycles with every
// stream ready, and records what it saw.
type trace struct {
	states    []int
	lastSteps []int
	valids    []int
	dones     []int
}

func runLoop(l *Loop, limit int) trace {
	var tr trace
	l.Cycle(LoopIn{Start: true})
	for cycle := 1; cycle <= limit; cycle++ {
		out := l.Cycle(LoopIn{InValid: true, OutReady: true, WriteEnable: true})
		if len(tr.states) == 0 || tr.states[len(tr.states)-1] != out.State {
			tr.states = append(tr.states, out.State)
		}
		if out.LastStep {
			tr.lastSteps = append(tr.lastSteps, cycle)
		}
		if out.OutValid {
			tr.valids = append(tr.valids, cycle)
		}
		if out.Done {
			tr.dones = append(tr.dones, cycle)
		}
	}
	return tr
}

func loopBlock(depth int, scan, stencil []ir.LoopVar) *ir.ForBlock {
	f := ir.NewForBlock("FB_out", depth)
	f.ScanVars = scan
	f.StencilVars = stencil
	f.AddWrite("out_stream", "out_stencil")
	return f
}

var _ = Describe("Loop block", func() {
	scan := []ir.LoopVar{{Name: "y", Min: 0, Max: 1}, {Name: "x", Min: 0, Max: 2}}

	It("should walk 0, 1..., 2 once per scan and report done once", func() {
		f := loopBlock(2, scan, []ir.LoopVar{{Name: "r", Min: 0, Max: 2}})
		tr := runLoop(NewLoop(f), 60)

		Expect(tr.dones).To(HaveLen(1))
		Expect(tr.lastSteps).To(HaveLen(6))
		Expect(tr.valids).To(HaveLen(6))
		// six windows of three steps each, then the drain
		Expect(tr.states[len(tr.states)-3:]).To(Equal([]int{1, 2, 0}))
		Expect(tr.states[0]).To(Equal(0))
		for i := 1; i < len(tr.states); i++ {
			switch tr.states[i-1] {
			case 0:
				Expect(tr.states[i]).To(BeElementOf(1, 2))
			case 1:
				Expect(tr.states[i]).To(BeElementOf(0, 2))
			case 2:
				Expect(tr.states[i]).To(Equal(0))
			}
		}
	})

	DescribeTable("should raise output valid depth cycles after the last step",
		func(depth int) {
			f := loopBlock(depth, scan, nil)
			tr := runLoop(NewLoop(f), 40)
			Expect(tr.valids).To(HaveLen(len(tr.lastSteps)))
			for i, c := range tr.lastSteps {
				Expect(tr.valids[i]).To(Equal(c + depth))
			}
			Expect(tr.dones).To(Equal([]int{tr.lastSteps[len(tr.lastSteps)-1] + depth}))
		},
		Entry("depth 1", 1),
		Entry("depth 2", 2),
		Entry("depth 5", 5),
	)

	It("should stay idle until started", func() {
		l := NewLoop(loopBlock(1, scan, nil))
		for i := 0; i < 5; i++ {
			out := l.Cycle(LoopIn{InValid: true, OutReady: true})
			Expect(out.RunStep).To(BeFalse())
		}
		Expect(l.State()).To(Equal(0))
	})

	It("should hold while the output is not ready", func() {
		l := NewLoop(loopBlock(1, scan, nil))
		l.Cycle(LoopIn{Start: true})
		out := l.Cycle(LoopIn{InValid: true, OutReady: false})
		Expect(out.RunStep).To(BeFalse())
		Expect(out.LastStep).To(BeFalse())
	})

	It("should drop results of a guarded block without write enable", func() {
		f := loopBlock(1, scan, nil)
		f.Guarded = true
		l := NewLoop(f)
		l.Cycle(LoopIn{Start: true})
		valids := 0
		for i := 0; i < 20; i++ {
			out := l.Cycle(LoopIn{InValid: true, OutReady: true, WriteEnable: i%2 == 0})
			if out.OutValid {
				valids++
			}
		}
		Expect(valids).To(Equal(3))
	})
})
