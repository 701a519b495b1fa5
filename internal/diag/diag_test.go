package diag

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestReporterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.SetFile("kernel.yaml")
	r.Error(Pos{Line: 3, Column: 7}, "non-serial loop")
	r.Warning(Pos{}, "unused argument")

	got := buf.String()
	if !strings.Contains(got, "kernel.yaml:3:7: error: non-serial loop") {
		t.Fatalf("missing positioned error, got %q", got)
	}
	if !strings.Contains(got, "kernel.yaml: warning: unused argument") {
		t.Fatalf("missing warning, got %q", got)
	}
	if !r.HasErrors() || r.ErrorCount() != 1 {
		t.Fatalf("expected exactly one error, got %d", r.ErrorCount())
	}
}

func TestReporterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "json")
	r.Error(Pos{File: "k.yaml", Line: 1, Column: 2}, "bad")

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode diagnostic: %v (%q)", err, buf.String())
	}
	if decoded["severity"] != "error" || decoded["message"] != "bad" || decoded["file"] != "k.yaml" {
		t.Fatalf("unexpected diagnostic %v", decoded)
	}
}

func TestReporterWarningsDoNotCountAsErrors(t *testing.T) {
	r := NewReporter(nil, "text")
	r.Warning(Pos{}, "just a warning")
	r.Note(Pos{}, "fyi")
	if r.HasErrors() {
		t.Fatalf("warnings must not count as errors")
	}
	if len(r.Diagnostics()) != 2 {
		t.Fatalf("expected two recorded diagnostics, got %d", len(r.Diagnostics()))
	}
}
