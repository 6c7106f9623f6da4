// Package applog wires up the process-wide structured logger. The approach
// -- slog writing to both stderr and an append-mode log file via
// io.MultiWriter, level gated by a verbose flag -- is lifted directly from
// gitlab.com/tinyland/lab/prompt-pulse's main.go logging setup.
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// New creates a slog.Logger that writes to both stderr and logFile. The
// directory containing logFile is created if necessary. verbose raises the
// level to Debug; otherwise Info.
func New(logFile string, verbose bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	multi := io.MultiWriter(os.Stderr, f)
	logger := slog.New(slog.NewTextHandler(multi, &slog.HandlerOptions{Level: level}))

	return logger, f.Close, nil
}
