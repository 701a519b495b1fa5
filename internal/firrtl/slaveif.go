package firrtl

import (
	"fmt"

	"stencilrtl/internal/ir"
)

// slaveIf prints the control/status register file: two bus FSMs, the
// fixed CTRL and STATUS words, the start/run/done handshake with every
// subsystem, one register per scalar and one memory per tap table.
func (p *printer) slaveIf(s *ir.SlaveIf) error {
	amap := s.AddressMap(p.opts.RegisterBase)
	if int64(amap.End) > 1<<32 {
		return fmt.Errorf("firrtl: register map of %s ends at 0x%x, beyond the 32-bit bus", s.Name, amap.End)
	}
	p.header(&s.Component)
	p.registerMap(amap)

	for _, ch := range []string{"AW", "AR"} {
		for st, name := range []string{"IDLE", "ADDR", "DATA"} {
			p.line("wire ST_%s_%s : UInt<2>", ch, name)
			p.line("ST_%s_%s <= UInt<2>(%d)", ch, name, st)
		}
	}
	p.line("wire ADDR_CTRL : UInt<32>")
	p.line("ADDR_CTRL <= UInt<32>(%d)", ir.AddrCtrl)
	p.line("wire ADDR_STATUS : UInt<32>")
	p.line("ADDR_STATUS <= UInt<32>(%d)", ir.AddrStatus)
	p.blank()

	fsm := ir.UInt(2)
	bit := ir.UInt(1)
	word := ir.UInt(32)
	p.resetReg("r_aw_cs_fsm", fsm, fsm.Literal(0))
	p.line("wire w_aw_ns_fsm : %s", fsm)
	p.line("reg r_aw_addr : %s, clock", word)
	p.resetReg("r_ar_cs_fsm", fsm, fsm.Literal(0))
	p.line("wire w_ar_ns_fsm : %s", fsm)
	p.line("reg r_ar_addr : %s, clock", word)
	p.line("reg r_rd_data : %s, clock", word)
	p.resetReg("r_start", bit, zero)
	p.resetReg("r_run", bit, zero)
	p.resetReg("r_done", bit, zero)
	for _, d := range s.DonePorts() {
		p.resetReg("r_"+d, bit, zero)
	}
	for _, e := range amap.Entries {
		r := e.Register
		if r.Memory {
			p.line("cmem r_%s : {value : %s}[%d]", r.Name, r.Elem, r.Words())
			p.line("wire w_%s_rd_idx : UInt<32>", r.Name)
			p.line("wire w_%s_wr_idx : UInt<32>", r.Name)
		} else {
			p.resetReg("r_"+r.Name, r.Elem, r.Elem.Literal(0))
		}
	}
	p.blank()

	p.writeChannel()
	p.readChannel(amap)
	p.control(s.DonePorts())
	p.userWrites(amap)
	p.userOutputs(amap)

	p.end(s.Name)
	return nil
}

func (p *printer) registerMap(amap ir.AddressMap) {
	p.line(";------------------ Start of Register Map -----------------")
	p.line("; 0x%08x : CTRL", ir.AddrCtrl)
	p.line(";              [0]: Start (write 1 to start, cleared automatically)")
	p.line(";              [1]: Done (set when every block is done, write 1 to clear)")
	p.line("; 0x%08x : STATUS (read-only)", ir.AddrStatus)
	p.line(";              [0]: Run (1 while running)")
	for _, e := range amap.Entries {
		if !e.Register.Memory {
			p.line("; 0x%08x : %s", e.Offset, e.Register.Name)
			continue
		}
		for _, el := range e.Elements {
			p.line("; 0x%08x : %s", el.Offset, el.Name)
		}
	}
	p.line(";------------------ End of Register Map -----------------")
	p.blank()
}

// writeChannel prints the write-address/write-data/response FSM. A write
// commits in the ADDR state when WVALID is high.
func (p *printer) writeChannel() {
	p.line("r_aw_cs_fsm <= w_aw_ns_fsm")
	p.line("w_aw_ns_fsm <= r_aw_cs_fsm")
	p.open("when eq(r_aw_cs_fsm, ST_AW_IDLE) :")
	p.open("when AWVALID :")
	p.line("w_aw_ns_fsm <= ST_AW_ADDR")
	p.close()
	p.close()
	p.open("else when eq(r_aw_cs_fsm, ST_AW_ADDR) :")
	p.open("when WVALID :")
	p.line("w_aw_ns_fsm <= ST_AW_DATA")
	p.close()
	p.close()
	p.open("else when eq(r_aw_cs_fsm, ST_AW_DATA) :")
	p.open("when BREADY :")
	p.line("w_aw_ns_fsm <= ST_AW_IDLE")
	p.close()
	p.close()
	p.open("when and(AWVALID, AWREADY) :")
	p.line("r_aw_addr <= AWADDR")
	p.close()
	p.line("AWREADY <= eq(r_aw_cs_fsm, ST_AW_IDLE)")
	p.line("WREADY <= eq(r_aw_cs_fsm, ST_AW_ADDR)")
	p.line("BVALID <= eq(r_aw_cs_fsm, ST_AW_DATA)")
	p.line("BRESP <= UInt<2>(0)")
	p.line("node w_wr_en = and(eq(r_aw_cs_fsm, ST_AW_ADDR), WVALID)")
	p.blank()
}

// readChannel prints the read FSM. The addressed word is captured in the
// ADDR state and presented in the DATA state until RREADY.
func (p *printer) readChannel(amap ir.AddressMap) {
	p.line("r_ar_cs_fsm <= w_ar_ns_fsm")
	p.line("w_ar_ns_fsm <= r_ar_cs_fsm")
	p.open("when eq(r_ar_cs_fsm, ST_AR_IDLE) :")
	p.open("when ARVALID :")
	p.line("w_ar_ns_fsm <= ST_AR_ADDR")
	p.close()
	p.close()
	p.open("else when eq(r_ar_cs_fsm, ST_AR_ADDR) :")
	p.line("w_ar_ns_fsm <= ST_AR_DATA")
	p.close()
	p.open("else when eq(r_ar_cs_fsm, ST_AR_DATA) :")
	p.open("when RREADY :")
	p.line("w_ar_ns_fsm <= ST_AR_IDLE")
	p.close()
	p.close()
	p.open("when and(ARVALID, ARREADY) :")
	p.line("r_ar_addr <= ARADDR")
	p.close()
	p.line("ARREADY <= eq(r_ar_cs_fsm, ST_AR_IDLE)")
	p.line("RVALID <= eq(r_ar_cs_fsm, ST_AR_DATA)")
	p.line("RRESP <= UInt<2>(0)")
	p.line("RDATA <= r_rd_data")

	for _, e := range amap.Entries {
		if e.Register.Memory {
			name := e.Register.Name
			p.line("w_%s_rd_idx <= shr(tail(sub(r_ar_addr, %s), 1), 2)", name, hex(e.Offset))
			p.line("w_%s_wr_idx <= shr(tail(sub(r_aw_addr, %s), 1), 2)", name, hex(e.Offset))
		}
	}

	p.open("when eq(r_ar_cs_fsm, ST_AR_ADDR) :")
	p.open("when eq(r_ar_addr, ADDR_CTRL) :")
	p.line("r_rd_data <= or(shl(r_done, 1), r_start)")
	p.close()
	p.open("else when eq(r_ar_addr, ADDR_STATUS) :")
	p.line("r_rd_data <= r_run")
	p.close()
	for _, e := range amap.Entries {
		r := e.Register
		if r.Memory {
			p.open("else when %s :", inRange("r_ar_addr", e))
			p.line("infer mport r_%s_rd = r_%s[w_%s_rd_idx], clock", r.Name, r.Name, r.Name)
			p.line("r_rd_data <= asUInt(r_%s_rd.value)", r.Name)
		} else {
			p.open("else when eq(r_ar_addr, %s) :", hex(e.Offset))
			p.line("r_rd_data <= asUInt(r_%s)", r.Name)
		}
		p.close()
	}
	p.open("else :")
	p.line("r_rd_data <= UInt<32>(0)")
	p.close()
	p.close()
	p.blank()
}

// control prints start, run and done. Start and every latched done flag
// clear on start; writing 1 to CTRL bit 1 clears them as well.
func (p *printer) control(done []string) {
	p.line("node w_ctrl_wr = and(w_wr_en, eq(r_aw_addr, ADDR_CTRL))")
	p.line("node w_clear_done = and(w_ctrl_wr, bits(WDATA, 1, 1))")
	p.open("when w_ctrl_wr :")
	p.line("r_start <= bits(WDATA, 0, 0)")
	p.close()
	p.open("else :")
	p.line("r_start <= %s", zero)
	p.close()
	p.line("%s <= r_start", ir.StartOut)
	p.blank()

	p.open("when r_start :")
	p.line("r_run <= %s", one)
	p.close()
	p.open("else when r_done :")
	p.line("r_run <= %s", zero)
	p.close()
	p.blank()

	latched := make([]string, len(done))
	for i, d := range done {
		latched[i] = "r_" + d
		p.open("when or(r_start, w_clear_done) :")
		p.line("r_%s <= %s", d, zero)
		p.close()
		p.open("else when %s :", d)
		p.line("r_%s <= %s", d, one)
		p.close()
	}
	p.open("when or(r_start, w_clear_done) :")
	p.line("r_done <= %s", zero)
	p.close()
	p.open("else when %s :", and(latched...))
	p.line("r_done <= %s", one)
	p.close()
	p.blank()
}

// userWrites stores WDATA into the addressed scalar or tap memory word.
func (p *printer) userWrites(amap ir.AddressMap) {
	if len(amap.Entries) == 0 {
		return
	}
	p.open("when w_wr_en :")
	for _, e := range amap.Entries {
		r := e.Register
		value := fmt.Sprintf("bits(WDATA, %d, 0)", r.Elem.Width-1)
		if r.Elem.Signed {
			value = "asSInt(" + value + ")"
		}
		if r.Memory {
			p.open("when %s :", inRange("r_aw_addr", e))
			p.line("infer mport r_%s_wr = r_%s[w_%s_wr_idx], clock", r.Name, r.Name, r.Name)
			p.line("r_%s_wr.value <= %s", r.Name, value)
		} else {
			p.open("when eq(r_aw_addr, %s) :", hex(e.Offset))
			p.line("r_%s <= %s", r.Name, value)
		}
		p.close()
	}
	p.close()
	p.blank()
}

// userOutputs drives the scalar outputs and serves every tap read port.
// A port reads element addr[0] + e0*addr[1] + e0*e1*addr[2] + ...
func (p *printer) userOutputs(amap ir.AddressMap) {
	for _, e := range amap.Entries {
		r := e.Register
		if !r.Memory {
			p.line("%s <= r_%s", r.Name, r.Name)
			continue
		}
		for _, port := range r.ReadPorts {
			idx := port + ".addr[0]"
			stride := 1
			for k := 1; k < len(r.Extents); k++ {
				stride *= r.Extents[k-1]
				p.line("node %s_idx%d = bits(mul(UInt<32>(%d), %s.addr[%d]), 31, 0)", port, k, stride, port, k)
				idx = fmt.Sprintf("tail(add(%s, %s_idx%d), 1)", idx, port, k)
			}
			p.line("node %s_idx = %s", port, idx)
			p.line("infer mport %s_rd = r_%s[%s_idx], clock", port, r.Name, port)
			p.line("%s.value <= %s_rd.value", port, port)
		}
	}
}

// inRange tests addr against the byte range of a memory entry.
func inRange(addr string, e ir.AddressEntry) string {
	return fmt.Sprintf("and(geq(%s, %s), lt(%s, %s))", addr, hex(e.Offset), addr, hex(e.Offset+e.Range))
}
