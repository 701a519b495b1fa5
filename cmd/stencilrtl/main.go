package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tebeka/atexit"

	"stencilrtl/internal/backend"
	"stencilrtl/internal/config"
	"stencilrtl/internal/diag"
	"stencilrtl/internal/firrtl"
	"stencilrtl/internal/frontend"
	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
	"stencilrtl/internal/lower"
	"stencilrtl/internal/passes"
	"stencilrtl/internal/validate"
)

var emitVerilog = backend.EmitVerilog

func main() {
	atexit.Register(removePendingOutputs)
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "compile":
		return runCompile(args[1:])
	case "lint":
		return runLint(args[1:])
	case "regmap":
		return runRegmap(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "stencilrtl: stencil kernel to FIRRTL generator\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  stencilrtl <command> [options] <kernel.yaml|dir>\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile    Lower a kernel to FIRRTL, the component graph, or Verilog\n")
	fmt.Fprintf(os.Stderr, "  lint       Check that a kernel can be lowered to hardware\n")
	fmt.Fprintf(os.Stderr, "  regmap     Print the control/status register map of a kernel\n")
}

// commonFlags are shared by every command.
type commonFlags struct {
	fs            *flag.FlagSet
	configPath    *string
	target        *string
	pipelineDepth *int
	fifoDepth     *int
	registerBase  *int
	diagFormat    *string
	verbose       *bool
}

func newFlagSet(name string) *commonFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return &commonFlags{
		fs:            fs,
		configPath:    fs.String("config", "", "configuration file (default: stencilrtl.yaml in . or $HOME/.config/stencilrtl)"),
		target:        fs.String("target", "", "circuit and top-level module name"),
		pipelineDepth: fs.Int("pipeline-depth", 0, "loop block pipeline depth in cycles"),
		fifoDepth:     fs.Int("fifo-depth", 0, "default queue depth between components"),
		registerBase:  fs.Int("register-base", 0, "bus offset of the first user register"),
		diagFormat:    fs.String("diag-format", "", "diagnostic output format (text|json)"),
		verbose:       fs.Bool("v", false, "log progress at debug level"),
	}
}

// load parses args, resolves the configuration with the flags that were
// set explicitly on top, and returns the kernel source.
func (c *commonFlags) load(args []string) (config.Config, string, error) {
	if err := c.fs.Parse(args); err != nil {
		return config.Config{}, "", err
	}
	setupLogging(*c.verbose)
	if c.fs.NArg() != 1 {
		c.fs.Usage()
		return config.Config{}, "", fmt.Errorf("%s requires exactly one kernel description", c.fs.Name())
	}
	overrides := make(map[string]any)
	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			overrides["target"] = *c.target
		case "pipeline-depth":
			overrides["pipeline_depth"] = *c.pipelineDepth
		case "fifo-depth":
			overrides["fifo_depth"] = *c.fifoDepth
		case "register-base":
			overrides["register_base"] = *c.registerBase
		case "diag-format":
			overrides["diag_format"] = *c.diagFormat
		}
	})
	cfg, err := config.Load(*c.configPath, overrides)
	if err != nil {
		return config.Config{}, "", err
	}
	slog.Debug("configuration resolved", "target", cfg.Target, "pipeline_depth", cfg.PipelineDepth,
		"fifo_depth", cfg.FIFODepth, "register_base", cfg.RegisterBase)
	return cfg, c.fs.Arg(0), nil
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runCompile(args []string) error {
	c := newFlagSet("compile")
	emit := c.fs.String("emit", "firrtl", "output format (firrtl|ir|verilog)")
	output := c.fs.String("o", "", "output path (stdout when omitted, except verilog)")
	firtool := c.fs.String("firtool", "", "path to firtool (optional, falls back to the configuration and PATH)")
	firtoolArgs := c.fs.String("firtool-args", "", "additional firtool arguments (space-separated)")
	dumpFIRRTL := c.fs.String("dump-firrtl", "", "path to dump the FIRRTL handed to firtool (optional)")
	split := c.fs.Bool("split-verilog", false, "write one Verilog file per module into the -o directory")
	keepTemps := c.fs.Bool("keep-temps", false, "keep firtool's intermediate files")

	cfg, source, err := c.load(args)
	if err != nil {
		return err
	}
	design, err := buildDesign(cfg, source)
	if err != nil {
		return err
	}
	emitOpts := firrtl.Options{RegisterBase: cfg.RegisterBase}

	switch *emit {
	case "firrtl":
		trackOutput(*output, false)
		if err := firrtl.EmitFile(design, *output, emitOpts); err != nil {
			return err
		}
	case "ir":
		trackOutput(*output, false)
		if err := withOutputWriter(*output, func(w io.Writer) error {
			ir.Dump(design, w)
			return nil
		}); err != nil {
			return err
		}
	case "verilog":
		if *output == "" || *output == "-" {
			return fmt.Errorf("verilog emission requires -o")
		}
		path := *firtool
		if path == "" {
			path = cfg.Firtool
		}
		opts := backend.Options{
			FirtoolPath:    path,
			ExtraArgs:      strings.Fields(*firtoolArgs),
			DumpFIRRTLPath: *dumpFIRRTL,
			KeepTemps:      *keepTemps,
			SplitVerilog:   *split,
			Emit:           emitOpts,
		}
		trackOutput(*output, *split)
		res, err := emitVerilog(design, *output, opts)
		if err != nil {
			return err
		}
		if len(res.AuxPaths) > 0 {
			fmt.Fprintf(os.Stderr, "additional sources written: %s\n", strings.Join(res.AuxPaths, ", "))
		}
	default:
		return fmt.Errorf("unknown emit format: %s", *emit)
	}
	commitOutputs()
	return nil
}

func runLint(args []string) error {
	c := newFlagSet("lint")
	graph := c.fs.Bool("graph", true, "also lower the kernel and check the component graph")

	cfg, source, err := c.load(args)
	if err != nil {
		return err
	}
	if *graph {
		_, err := buildDesign(cfg, source)
		return err
	}
	reporter := diag.NewReporter(os.Stderr, cfg.DiagFormat)
	_, err = loadKernel(source, reporter)
	return err
}

// loadKernel decodes and validates the kernel description at source.
func loadKernel(source string, reporter *diag.Reporter) (*kir.Kernel, error) {
	k, err := frontend.LoadKernel(frontend.LoadConfig{Sources: []string{source}}, reporter)
	if err != nil {
		return nil, err
	}
	if err := validate.CheckKernel(k, reporter); err != nil {
		return nil, err
	}
	return k, nil
}

// buildDesign runs every stage up to a checked component graph.
func buildDesign(cfg config.Config, source string) (*ir.Design, error) {
	reporter := diag.NewReporter(os.Stderr, cfg.DiagFormat)
	k, err := loadKernel(source, reporter)
	if err != nil {
		return nil, err
	}
	design, err := lower.Lower(k, lower.Options{
		Target:        cfg.Target,
		PipelineDepth: cfg.PipelineDepth,
		FIFODepth:     cfg.FIFODepth,
	}, reporter)
	if err != nil {
		return nil, err
	}
	if err := passes.Default(reporter).Run(design); err != nil {
		return nil, err
	}
	if reporter.HasErrors() {
		return nil, fmt.Errorf("analysis passes reported errors")
	}
	return design, nil
}
