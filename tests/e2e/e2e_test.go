package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type testCase struct {
	Name string
	// Modules lists modules the generated circuit must define.
	Modules []string
}

var testCases = []testCase{
	{Name: "brighten", Modules: []string{"SlaveIf", "IO_in_stream", "FB_out_stencil_stream", "IO_out_stencil_stream"}},
	{Name: "blur", Modules: []string{"LB_win_stream", "LB2D_u16_i1x1x1x1_o3x3x1x1_L8x6x1x1"}},
}

var firtoolAvailable = checkBinary("firtool")

func TestKernelsCompileToFIRRTL(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", ".."))
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			output := filepath.Join(t.TempDir(), tc.Name+".fir")
			compile(t, repoRoot, tc.Name, "-emit=firrtl", "-o", output)
			data, err := os.ReadFile(output)
			if err != nil {
				t.Fatalf("read firrtl output for %s: %v", tc.Name, err)
			}
			text := string(data)
			if !strings.Contains(text, "circuit hls_target :") {
				t.Fatalf("%s: missing circuit header:\n%s", tc.Name, text)
			}
			for _, m := range tc.Modules {
				if !strings.Contains(text, "module "+m+" :") {
					t.Fatalf("%s: module %s not emitted", tc.Name, m)
				}
			}
		})
	}
}

func TestKernelsLint(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", ".."))
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			run(t, repoRoot, "lint", kernelPath(tc.Name))
		})
	}
}

func TestKernelsCompileToVerilog(t *testing.T) {
	if !firtoolAvailable {
		t.Skip("firtool not on PATH")
	}
	repoRoot := filepath.Clean(filepath.Join("..", ".."))
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			output := filepath.Join(t.TempDir(), tc.Name+".sv")
			compile(t, repoRoot, tc.Name, "-emit=verilog", "-o", output)
			data, err := os.ReadFile(output)
			if err != nil {
				t.Fatalf("read verilog output for %s: %v", tc.Name, err)
			}
			if !strings.Contains(string(data), "module hls_target(") {
				t.Fatalf("%s: top module missing from verilog", tc.Name)
			}
		})
	}
}

func compile(t *testing.T, repoRoot, name string, args ...string) {
	t.Helper()
	args = append(append([]string{"compile"}, args...), kernelPath(name))
	run(t, repoRoot, args...)
}

func run(t *testing.T, repoRoot string, args ...string) {
	t.Helper()
	cmd := exec.Command("go", append([]string{"run", "./cmd/stencilrtl"}, args...)...)
	cmd.Dir = repoRoot
	cmd.Env = os.Environ()
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("stencilrtl %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func kernelPath(name string) string {
	return filepath.Join("tests", "e2e", name, "kernel.yaml")
}

func checkBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
