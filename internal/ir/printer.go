package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the design.
func Dump(design *Design, w io.Writer) {
	if design == nil || design.Top == nil {
		fmt.Fprintln(w, "<nil design>")
		return
	}
	dumpComponent(&design.Top.Component, w)
	for _, m := range design.Top.Children() {
		dumpComponent(m.Base(), w)
		switch c := m.(type) {
		case *SlaveIf:
			dumpRegisters(c, w)
		case *FIFO:
			fmt.Fprintf(w, "  depth %d\n", c.Depth)
		case *LineBuffer:
			fmt.Fprintf(w, "  core %s\n", c.Core.Name)
		case *Dispatch:
			dumpConsumers(c, w)
		case *ForBlock:
			dumpLoops(c, w)
		}
		fmt.Fprintln(w)
	}
	if design.LineBuffers != nil {
		for _, core := range design.LineBuffers.Cores() {
			fmt.Fprintf(w, "core %s %s in=%s out=%s image=%s",
				core.Name, core.Shape, extents(core.In), extents(core.Out), extents(core.Image))
			if core.Child != nil {
				fmt.Fprintf(w, " -> %s", core.Child.Name)
			}
			fmt.Fprintln(w)
		}
	}
}

func dumpComponent(c *Component, w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", c.Kind, c.Name)
	dumpSignals(w, "in", c.In.Items())
	dumpSignals(w, "out", c.Out.Items())
	dumpSignals(w, "reg", c.Regs.Items())
	dumpSignals(w, "wire", c.Wires.Items())
	for _, inst := range c.Instances {
		fmt.Fprintf(w, "  inst %s of %s\n", inst.Name, inst.Module)
	}
	for _, conn := range c.Connects.Items() {
		fmt.Fprintf(w, "  %s <= %s\n", conn.Dst, conn.Src)
	}
}

func dumpSignals(w io.Writer, label string, sigs []Signal) {
	for _, s := range sigs {
		fmt.Fprintf(w, "  %-4s %-20s %s\n", label, s.Name, describe(s.Type))
	}
}

func dumpRegisters(s *SlaveIf, w io.Writer) {
	for _, r := range s.Registers() {
		kind := "scalar"
		if r.Memory {
			kind = fmt.Sprintf("memory%v", r.Extents)
		}
		fmt.Fprintf(w, "  bus %s %s %s", r.Name, kind, r.Elem)
		if len(r.ReadPorts) > 0 {
			fmt.Fprintf(w, " read by %s", strings.Join(r.ReadPorts, ", "))
		}
		fmt.Fprintln(w)
	}
	if len(s.DonePorts()) > 0 {
		fmt.Fprintf(w, "  done %s\n", strings.Join(s.DonePorts(), ", "))
	}
}

func dumpConsumers(d *Dispatch, w io.Writer) {
	for _, c := range d.Consumers {
		fmt.Fprintf(w, "  consumer %s depth=%d offsets=%v extents=%v\n", c.Port, c.Depth, c.Offsets, c.Extents)
	}
}

func dumpLoops(f *ForBlock, w io.Writer) {
	for _, v := range f.ScanVars {
		fmt.Fprintf(w, "  scan %s [%d..%d]\n", v.Name, v.Min, v.Max)
	}
	for _, v := range f.StencilVars {
		fmt.Fprintf(w, "  stencil %s [%d..%d]\n", v.Name, v.Min, v.Max)
	}
	for _, wr := range f.Writes {
		fmt.Fprintf(w, "  write %s <- %s\n", wr.Port, wr.Source)
	}
	fmt.Fprintf(w, "  depth %d, %d body statements\n", f.Depth, len(f.body))
}

// describe is the short form of a type used by Dump.
func describe(t Type) string {
	switch t.Kind {
	case Scalar:
		return signalSuffix(t.Elem)
	case Stencil, Stream, AxiStream:
		return fmt.Sprintf("%s %s%v", t.Kind, signalSuffix(t.Elem), t.Bounds)
	case MemRead:
		return "mem_read " + signalSuffix(t.Elem)
	default:
		panic(fmt.Sprintf("ir: unhandled type kind %d", int(t.Kind)))
	}
}

func signalSuffix(t SignalType) string {
	if t.Signed {
		return fmt.Sprintf("%ds", t.Width)
	}
	return fmt.Sprintf("%du", t.Width)
}
