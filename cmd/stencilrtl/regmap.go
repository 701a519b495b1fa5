package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"stencilrtl/internal/ir"
)

func runRegmap(args []string) error {
	c := newFlagSet("regmap")
	output := c.fs.String("o", "", "output file path (stdout when omitted)")
	format := c.fs.String("format", "table", "report format (table|csv|markdown)")
	elements := c.fs.Bool("elements", false, "list every word of a tap table")

	cfg, source, err := c.load(args)
	if err != nil {
		return err
	}
	switch *format {
	case "table", "csv", "markdown":
	default:
		return fmt.Errorf("unknown regmap format: %s", *format)
	}
	design, err := buildDesign(cfg, source)
	if err != nil {
		return err
	}
	if err := ir.CheckRegisterBase(cfg.RegisterBase); err != nil {
		return err
	}
	amap := design.SlaveIf.AddressMap(cfg.RegisterBase)
	return withOutputWriter(*output, func(w io.Writer) error {
		return writeRegmap(w, amap, *format, *elements)
	})
}

// writeRegmap renders the fixed control words followed by the user
// registers of amap.
func writeRegmap(w io.Writer, amap ir.AddressMap, format string, elements bool) error {
	tw := table.NewWriter()
	tw.SetTitle("Register Map")
	tw.AppendHeader(table.Row{"Offset", "Name", "Kind", "Type", "Words"})
	tw.AppendRow(table.Row{offset(ir.AddrCtrl), "CTRL", "control", "[0] start, [1] done", 1})
	tw.AppendRow(table.Row{offset(ir.AddrStatus), "STATUS", "status", "[0] run", 1})
	for _, e := range amap.Entries {
		r := e.Register
		kind := "scalar"
		if r.Memory {
			kind = fmt.Sprintf("tap %v", r.Extents)
		}
		tw.AppendRow(table.Row{offset(e.Offset), r.Name, kind, r.Elem.String(), r.Words()})
		if !elements {
			continue
		}
		for _, el := range e.Elements {
			tw.AppendRow(table.Row{offset(el.Offset), "  " + el.Name, "word", "", 1})
		}
	}
	tw.AppendFooter(table.Row{offset(amap.End), "", "", "end", ""})

	var out string
	switch format {
	case "csv":
		out = tw.RenderCSV()
	case "markdown":
		out = tw.RenderMarkdown()
	default:
		out = tw.Render()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

func offset(addr int) string {
	return fmt.Sprintf("0x%08x", addr)
}
