package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stencilrtl.yaml")
	body := "target: conv_top\npipeline_depth: 3\nfifo_depth: 4\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STENCILRTL_FIFO_DEPTH", "8")

	cfg, err := Load(path, map[string]any{"pipeline_depth": 2})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Target != "conv_top" {
		t.Fatalf("target from file not applied: %q", cfg.Target)
	}
	if cfg.FIFODepth != 8 {
		t.Fatalf("env override not applied: fifo_depth=%d", cfg.FIFODepth)
	}
	if cfg.PipelineDepth != 2 {
		t.Fatalf("explicit override not applied: pipeline_depth=%d", cfg.PipelineDepth)
	}
	if cfg.RegisterBase != 0x40 {
		t.Fatalf("default register base lost: %#x", cfg.RegisterBase)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := Load("", map[string]any{"pipeline_depth": 0})
	if err == nil || !strings.Contains(err.Error(), "pipeline_depth") {
		t.Fatalf("expected pipeline_depth error, got %v", err)
	}
	_, err = Load("", map[string]any{"register_base": 0x41})
	if err == nil || !strings.Contains(err.Error(), "register_base") {
		t.Fatalf("expected register_base error, got %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (Go 1.24+), which the local toolchain does not provide.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
