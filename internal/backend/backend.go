// Package backend turns an emitted FIRRTL circuit into Verilog by running
// the external firtool compiler.
package backend

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"stencilrtl/internal/firrtl"
	"stencilrtl/internal/ir"
)

// Options configures how firtool is invoked.
type Options struct {
	// FirtoolPath optionally overrides the firtool binary. When empty the
	// backend looks it up on PATH.
	FirtoolPath string
	// ExtraArgs are passed to firtool before the input file.
	ExtraArgs []string
	// DumpFIRRTLPath writes the FIRRTL handed to firtool to the provided
	// path when non-empty.
	DumpFIRRTLPath string
	// KeepTemps preserves the intermediate directory on disk for debugging.
	KeepTemps bool
	// SplitVerilog writes one file per module into the output directory
	// instead of a single file.
	SplitVerilog bool
	// Emit controls FIRRTL emission.
	Emit firrtl.Options
}

// Result lists the artifacts produced during Verilog emission.
type Result struct {
	MainPath string
	AuxPaths []string
}

// EmitVerilog serializes the design as FIRRTL and invokes firtool to
// produce Verilog at outputPath. With SplitVerilog, outputPath is a
// directory; the top module's file is the main path and every other module
// file is returned via Result.AuxPaths.
func EmitVerilog(design *ir.Design, outputPath string, opts Options) (Result, error) {
	if design == nil {
		return Result{}, fmt.Errorf("backend: design is nil")
	}
	if outputPath == "" || outputPath == "-" {
		return Result{}, fmt.Errorf("backend: verilog emission requires an output path")
	}

	firtool, err := resolveBinary(opts.FirtoolPath, "firtool")
	if err != nil {
		return Result{}, fmt.Errorf("backend: resolve firtool: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "stencilrtl-firtool-*")
	if err != nil {
		return Result{}, fmt.Errorf("backend: create temp dir: %w", err)
	}
	if opts.KeepTemps {
		slog.Info("keeping firtool inputs", "dir", tempDir)
	} else {
		defer os.RemoveAll(tempDir)
	}

	firPath := opts.DumpFIRRTLPath
	if firPath == "" {
		firPath = filepath.Join(tempDir, "design.fir")
	} else if err := os.MkdirAll(filepath.Dir(firPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("backend: create firrtl dir: %w", err)
	}
	if err := firrtl.EmitFile(design, firPath, opts.Emit); err != nil {
		return Result{}, fmt.Errorf("backend: emit firrtl: %w", err)
	}

	if opts.SplitVerilog {
		top := design.Target
		if top == "" && design.Top != nil {
			top = design.Top.Name
		}
		return runSplit(firtool, opts.ExtraArgs, firPath, outputPath, top)
	}
	if err := runFirtool(firtool, opts.ExtraArgs, firPath, outputPath); err != nil {
		return Result{}, err
	}
	return Result{MainPath: outputPath}, nil
}

func runFirtool(binary string, extra []string, inputPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("backend: create verilog output dir: %w", err)
	}
	args := append(append([]string(nil), extra...), inputPath, "-o", outputPath)
	return run(binary, args)
}

func runSplit(binary string, extra []string, inputPath, outputDir, top string) (Result, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("backend: create verilog output dir: %w", err)
	}
	args := append(append([]string(nil), extra...), "--split-verilog", inputPath, "-o", outputDir)
	if err := run(binary, args); err != nil {
		return Result{}, err
	}
	files, err := filepath.Glob(filepath.Join(outputDir, "*.sv"))
	if err != nil {
		return Result{}, fmt.Errorf("backend: list verilog outputs: %w", err)
	}
	sort.Strings(files)
	var res Result
	for _, f := range files {
		if strings.TrimSuffix(filepath.Base(f), ".sv") == top {
			res.MainPath = f
			continue
		}
		res.AuxPaths = append(res.AuxPaths, f)
	}
	if res.MainPath == "" {
		return Result{}, fmt.Errorf("backend: module %s not found in generated Verilog", top)
	}
	return res, nil
}

func run(binary string, args []string) error {
	slog.Debug("running firtool", "binary", binary, "args", args)
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backend: firtool failed: %w", err)
	}
	return nil
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	path, err := exec.LookPath(fallback)
	if err != nil {
		return "", err
	}
	return path, nil
}
