package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"stencilrtl/internal/ir"
)

// host drives AXI-lite transactions against a bus model and forwards the
// subsystem done lines.
type host struct {
	bus    *Bus
	done   []bool
	starts int
}

func (h *host) cycle(in BusIn) BusOut {
	in.Done = h.done
	out := h.bus.Cycle(in)
	if out.Start {
		h.starts++
	}
	return out
}

func (h *host) write(addr, data uint32) {
	Expect(h.cycle(BusIn{AWValid: true, AWAddr: addr}).AWReady).To(BeTrue())
	Expect(h.cycle(BusIn{WValid: true, WData: data}).WReady).To(BeTrue())
	Expect(h.cycle(BusIn{BReady: true}).BValid).To(BeTrue())
}

func (h *host) read(addr uint32) uint32 {
	Expect(h.cycle(BusIn{ARValid: true, ARAddr: addr}).ARReady).To(BeTrue())
	h.cycle(BusIn{})
	out := h.cycle(BusIn{RReady: true})
	Expect(out.RValid).To(BeTrue())
	return out.RData
}

var _ = Describe("Bus", func() {
	var (
		s *ir.SlaveIf
		h *host
	)

	BeforeEach(func() {
		s = ir.NewSlaveIf("SlaveIf")
		Expect(s.AddScalar("gain", ir.UInt(8))).To(Succeed())
		Expect(s.AddScalar("bias", ir.SInt(16))).To(Succeed())
		Expect(s.AddMemory("w_tap", ir.UInt(8), []int{3, 3})).To(Succeed())
		s.AddDone("FB_a_done")
		s.AddDone("FB_b_done")
		h = &host{bus: NewBus(s, ir.DefaultRegisterBase), done: []bool{false, false}}
	})

	It("should report running after a start", func() {
		h.write(ir.AddrCtrl, 1)
		Expect(h.starts).To(Equal(1))
		Expect(h.read(ir.AddrStatus) & 1).To(Equal(uint32(1)))
	})

	It("should stop only after every subsystem reported done", func() {
		h.write(ir.AddrCtrl, 1)
		h.cycle(BusIn{})
		Expect(h.bus.Running()).To(BeTrue())

		h.done[0] = true
		h.cycle(BusIn{})
		h.done[0] = false
		for i := 0; i < 5; i++ {
			h.cycle(BusIn{})
		}
		Expect(h.bus.Running()).To(BeTrue())
		Expect(h.read(ir.AddrCtrl) & 2).To(BeZero())

		h.done[1] = true
		h.cycle(BusIn{})
		h.done[1] = false
		for i := 0; i < 3; i++ {
			h.cycle(BusIn{})
		}
		Expect(h.bus.Done()).To(BeTrue())
		Expect(h.bus.Running()).To(BeFalse())
		Expect(h.read(ir.AddrCtrl)).To(Equal(uint32(2)))
		Expect(h.read(ir.AddrStatus)).To(BeZero())
	})

	It("should clear done when control bit 1 is written", func() {
		h.write(ir.AddrCtrl, 1)
		h.done = []bool{true, true}
		for i := 0; i < 3; i++ {
			h.cycle(BusIn{})
		}
		h.done = []bool{false, false}
		Expect(h.bus.Done()).To(BeTrue())

		h.write(ir.AddrCtrl, 2)
		Expect(h.bus.Done()).To(BeFalse())
		Expect(h.starts).To(Equal(1))
	})

	It("should store scalars and tap words at their offsets", func() {
		amap := s.AddressMap(ir.DefaultRegisterBase)
		gain, bias, taps := amap.Entries[0], amap.Entries[1], amap.Entries[2]

		h.write(uint32(gain.Offset), 0x1ff)
		h.write(uint32(bias.Offset), 0xfffe)
		h.write(uint32(taps.Elements[4].Offset), 7)

		Expect(h.bus.Word("gain", 0)).To(Equal(uint32(0xff)))
		Expect(h.read(uint32(gain.Offset))).To(Equal(uint32(0xff)))
		Expect(h.read(uint32(bias.Offset))).To(Equal(uint32(0xfffe)))
		Expect(h.bus.Word("w_tap", 4)).To(Equal(uint32(7)))
		Expect(h.read(uint32(taps.Elements[4].Offset))).To(Equal(uint32(7)))
		Expect(h.read(uint32(amap.End))).To(BeZero())
	})
})
