package passes

import (
	"fmt"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/ir"
)

// TypeCheck reports connects whose two sides have different types. Every
// top-level connect joins whole ports, so widths, signedness and stencil
// bounds must agree exactly.
type TypeCheck struct {
	reporter *diag.Reporter
}

// NewTypeCheck constructs the pass. reporter may be nil.
func NewTypeCheck(reporter *diag.Reporter) *TypeCheck {
	return &TypeCheck{reporter: reporter}
}

// Name implements Pass.
func (t *TypeCheck) Name() string { return "type-check" }

// Run implements Pass.
func (t *TypeCheck) Run(design *ir.Design) error {
	top := design.Top
	issues := 0
	for _, conn := range top.Connects.Items() {
		if !isRef(conn.Src) {
			continue
		}
		dst, typed, ok := resolve(top, conn.Dst)
		if !ok || !typed {
			continue
		}
		src, typed, ok := resolve(top, conn.Src)
		if !ok || !typed {
			continue
		}
		if dst.String() != src.String() {
			issues++
			if t.reporter != nil {
				t.reporter.Errorf("connect %s <= %s joins %s and %s", conn.Dst, conn.Src, dst, src)
			}
		}
	}
	if issues > 0 {
		return fmt.Errorf("%d mismatched connect(s)", issues)
	}
	return nil
}
