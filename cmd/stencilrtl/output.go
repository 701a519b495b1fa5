package main

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// pending lists output paths created by this run that are removed if the
// process exits before they are complete. Paths that already existed are
// never tracked.
var (
	pendingMu sync.Mutex
	pending   []string
)

// trackOutput claims path for this run by creating it exclusively, as a
// directory when dir is set. A path that cannot be created, because it
// exists or otherwise, is left alone.
func trackOutput(path string, dir bool) {
	if path == "" || path == "-" {
		return
	}
	if dir {
		if err := os.Mkdir(path, 0o755); err != nil {
			return
		}
	} else {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return
		}
		f.Close()
	}
	pendingMu.Lock()
	pending = append(pending, path)
	pendingMu.Unlock()
}

func commitOutputs() {
	pendingMu.Lock()
	pending = nil
	pendingMu.Unlock()
}

// removePendingOutputs runs at exit.
func removePendingOutputs() {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	for _, path := range pending {
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("cannot remove partial output", "path", path, "err", err)
			continue
		}
		slog.Debug("removed partial output", "path", path)
	}
	pending = nil
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, cleanup, err := outputWriter(path)
	if err != nil {
		return err
	}
	if cleanup == nil {
		return fn(w)
	}
	err = fn(w)
	if closeErr := cleanup(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
