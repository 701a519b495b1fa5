// Package passes runs consistency checks over a finished component graph
// before anything is emitted.
package passes

import (
	"fmt"
	"log/slog"
	"strings"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/ir"
)

// Pass inspects a design. Problems go to the pass's reporter; the returned
// error summarises them.
type Pass interface {
	Name() string
	Run(design *ir.Design) error
}

// Manager runs passes in the order they were added.
type Manager struct {
	passes []Pass
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends p.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass and stops at the first failure.
func (m *Manager) Run(design *ir.Design) error {
	if design == nil || design.Top == nil {
		return fmt.Errorf("passes: nil design")
	}
	for _, p := range m.passes {
		slog.Debug("run pass", "pass", p.Name())
		if err := p.Run(design); err != nil {
			return fmt.Errorf("passes: %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Default returns the checks run on every compiled design.
func Default(reporter *diag.Reporter) *Manager {
	m := NewManager()
	m.Add(NewConnectivity(reporter))
	m.Add(NewTypeCheck(reporter))
	return m
}

// isRef reports whether a connect operand names a signal rather than an
// expression or literal.
func isRef(s string) bool {
	return s != "" && !strings.ContainsAny(s, "()<> ,")
}

// resolve finds the type of a top-level reference: a top port or wire, or
// inst.port of a child. Clock and reset resolve without a type.
func resolve(top *ir.Top, ref string) (ir.Type, bool, bool) {
	inst, port, dotted := strings.Cut(ref, ".")
	if !dotted {
		if ref == "clock" || ref == "reset" {
			return ir.Type{}, false, true
		}
		if s, ok := top.Port(ref); ok {
			return s.Type, true, true
		}
		if s, ok := top.Wires.Lookup(ref); ok {
			return s.Type, true, true
		}
		return ir.Type{}, false, false
	}
	m, ok := top.Lookup(inst)
	if !ok {
		return ir.Type{}, false, false
	}
	if port == "clock" || port == "reset" {
		return ir.Type{}, false, true
	}
	s, ok := m.Base().Port(port)
	return s.Type, ok, ok
}
