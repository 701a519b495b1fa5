package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Pos locates a diagnostic inside a kernel description. The zero value means
// "no position".
type Pos struct {
	File   string
	Line   int
	Column int
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		if p.File != "" {
			return p.File
		}
		return "-"
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Diagnostic is a single reported issue.
type Diagnostic struct {
	Severity Severity
	Pos      Pos
	Message  string
}

// Reporter collects diagnostics and writes them to an io.Writer either as
// plain text or as one JSON object per line.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	file     string
	errors   int
	warnings int
	diags    []Diagnostic
}

// NewReporter returns a reporter writing to w. format is "text" or "json";
// anything else falls back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// SetFile sets the file name used for positions that do not name one.
func (r *Reporter) SetFile(name string) {
	r.mu.Lock()
	r.file = name
	r.mu.Unlock()
}

// Error reports an error at pos.
func (r *Reporter) Error(pos Pos, msg string) {
	r.report(SeverityError, pos, msg)
}

// Errorf reports a position-less error.
func (r *Reporter) Errorf(format string, args ...any) {
	r.report(SeverityError, Pos{}, fmt.Sprintf(format, args...))
}

// Warning reports a warning at pos.
func (r *Reporter) Warning(pos Pos, msg string) {
	r.report(SeverityWarning, pos, msg)
}

// Note reports an informational message at pos.
func (r *Reporter) Note(pos Pos, msg string) {
	r.report(SeverityNote, pos, msg)
}

// HasErrors reports whether at least one error was recorded.
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// ErrorCount returns the number of recorded errors.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// Diagnostics returns a copy of everything reported so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diags...)
}

type jsonDiagnostic struct {
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

func (r *Reporter) report(sev Severity, pos Pos, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos.File == "" {
		pos.File = r.file
	}
	switch sev {
	case SeverityError:
		r.errors++
	case SeverityWarning:
		r.warnings++
	}
	r.diags = append(r.diags, Diagnostic{Severity: sev, Pos: pos, Message: msg})

	if r.format == "json" {
		data, err := json.Marshal(jsonDiagnostic{
			Severity: sev.String(),
			File:     pos.File,
			Line:     pos.Line,
			Column:   pos.Column,
			Message:  msg,
		})
		if err != nil {
			fmt.Fprintf(r.w, "%s: %s: %s\n", pos, sev, msg)
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}
	fmt.Fprintf(r.w, "%s: %s: %s\n", pos, sev, msg)
}
