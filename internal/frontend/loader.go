package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/kir"
)

// LoadConfig names the kernel description to load. Exactly one source is
// accepted; a directory resolves to the kernel.yaml inside it.
type LoadConfig struct {
	Sources []string
}

// LoadKernel reads and decodes a kernel description. Decoding problems are
// reported through reporter with their line and column; the returned error
// only summarises them.
func LoadKernel(cfg LoadConfig, reporter *diag.Reporter) (*kir.Kernel, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no kernel description was provided")
	}
	if len(cfg.Sources) > 1 {
		return nil, fmt.Errorf("expected one kernel description, got %d", len(cfg.Sources))
	}
	path := resolveSource(cfg.Sources[0])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	reporter.SetFile(path)
	return ParseKernel(data, reporter)
}

// ParseKernel decodes a kernel description held in memory.
func ParseKernel(data []byte, reporter *diag.Reporter) (*kir.Kernel, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		reporter.Errorf("%v", err)
		return nil, fmt.Errorf("frontend: malformed kernel description")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		reporter.Errorf("kernel description is empty")
		return nil, fmt.Errorf("frontend: malformed kernel description")
	}

	d := &decoder{reporter: reporter}
	kernel := d.kernel(doc.Content[0])
	if d.errCount > 0 {
		return nil, fmt.Errorf("frontend: %d error(s) in kernel description", d.errCount)
	}
	return kernel, nil
}

func resolveSource(path string) string {
	cleaned := filepath.Clean(path)
	if info, err := os.Stat(cleaned); err == nil && info.IsDir() {
		return filepath.Join(cleaned, "kernel.yaml")
	}
	return cleaned
}

type argSpec struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Type   string `yaml:"type"`
	Bounds []int  `yaml:"bounds"`
	Store  []int  `yaml:"store"`
	Output bool   `yaml:"output"`
}

type decoder struct {
	reporter *diag.Reporter
	errCount int
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) {
	d.errCount++
	d.reporter.Error(pos(n), fmt.Sprintf(format, args...))
}

func pos(n *yaml.Node) diag.Pos {
	if n == nil {
		return diag.Pos{}
	}
	return diag.Pos{Line: n.Line, Column: n.Column}
}

func (d *decoder) kernel(n *yaml.Node) *kir.Kernel {
	if n.Kind != yaml.MappingNode {
		d.errorf(n, "kernel description must be a mapping")
		return nil
	}
	k := &kir.Kernel{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "name":
			k.Name = val.Value
		case "args":
			k.Args = d.args(val)
		case "body":
			k.Body = d.stmt(val)
		default:
			d.errorf(key, "unknown kernel field %q", key.Value)
		}
	}
	if k.Name == "" {
		d.errorf(n, "kernel has no name")
	}
	if k.Body == nil {
		d.errorf(n, "kernel %q has no body", k.Name)
	}
	return k
}

func (d *decoder) args(n *yaml.Node) []kir.Arg {
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "args must be a list")
		return nil
	}
	seen := make(map[string]bool)
	var out []kir.Arg
	for _, item := range n.Content {
		var decl argSpec
		if err := item.Decode(&decl); err != nil {
			d.errorf(item, "bad argument: %v", err)
			continue
		}
		arg := kir.Arg{
			Name:         decl.Name,
			Bounds:       decl.Bounds,
			StoreExtents: decl.Store,
			IsOutput:     decl.Output,
			Pos:          pos(item),
		}
		if arg.Name == "" {
			d.errorf(item, "argument has no name")
			continue
		}
		if seen[arg.Name] {
			d.errorf(item, "duplicate argument %q", arg.Name)
			continue
		}
		seen[arg.Name] = true
		t, err := kir.ParseType(decl.Type)
		if err != nil {
			d.errorf(item, "argument %q: %v", arg.Name, err)
			continue
		}
		arg.Elem = t
		switch strings.ToLower(decl.Kind) {
		case "scalar", "":
			arg.Kind = kir.ScalarArg
		case "stencil", "tap":
			arg.Kind = kir.StencilArg
			if len(arg.Bounds) == 0 {
				d.errorf(item, "stencil argument %q needs bounds", arg.Name)
				continue
			}
		case "stream", "axi_stream":
			arg.Kind = kir.StreamArg
			if len(arg.Bounds) == 0 || len(arg.Bounds) != len(arg.StoreExtents) {
				d.errorf(item, "stream argument %q needs bounds and store extents of equal length", arg.Name)
				continue
			}
		default:
			d.errorf(item, "argument %q has unknown kind %q", arg.Name, decl.Kind)
			continue
		}
		out = append(out, arg)
	}
	return out
}
