// Package fsmonitor watches the user applications directory and its
// ".installed" subdirectory for deletions and moves of installed bundles
// (spec.md §4.9), emitting a changes_detected signal the driving code
// responds to by calling registry.ReconcileWithFilesystem() on its main
// loop. Grounded on github.com/fsnotify/fsnotify, sourced as a direct
// dependency of lburgazzoli-olm-extractor (vendored transitively by
// kaovilai-operator-sdk and upstream OLM) in the retrieved pack.
package fsmonitor

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

// Monitor wraps an fsnotify.Watcher scoped to the applications directory
// and the extracted-bundle installed directory.
type Monitor struct {
	watcher  *fsnotify.Watcher
	registry *registry.Registry
	logger   *slog.Logger

	// OnChange is invoked with the deletion/move path whenever a watched
	// path disappears and matches a registered record. The driving code
	// sets this to a closure that calls registry.ReconcileWithFilesystem()
	// on its own main loop (spec.md §4.9).
	OnChange func(path string)
}

// New creates a Monitor watching applicationsDir and installedDir.
func New(reg *registry.Registry, logger *slog.Logger, applicationsDir, installedDir string) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(applicationsDir); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(installedDir); err != nil {
		w.Close()
		return nil, err
	}
	return &Monitor{watcher: w, registry: reg, logger: logger}, nil
}

// Close stops the watcher.
func (m *Monitor) Close() error {
	return m.watcher.Close()
}

// Run consumes fsnotify events until the watcher is closed. Never crashes
// the process; every handler path catches and logs (spec.md §7).
func (m *Monitor) Run() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.logger != nil {
				m.logger.Warn("filesystem monitor error", "error", err)
			}
		}
	}
}

func (m *Monitor) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if m.matchesRecord(event.Name) {
		if m.OnChange != nil {
			m.OnChange(event.Name)
		}
	}
}

// matchesRecord reports whether path corresponds to a registered
// installation: exact match for PORTABLE, prefix match for EXTRACTED
// (spec.md §4.9).
func (m *Monitor) matchesRecord(path string) bool {
	if _, ok := m.registry.LookupByInstalledPath(path); ok {
		return true
	}
	for _, rec := range m.registry.List() {
		if rec.Mode == registry.ModeExtracted && hasPathPrefix(rec.InstalledPath, path) {
			return true
		}
	}
	return false
}

// hasPathPrefix reports whether path equals prefix or is nested under it.
func hasPathPrefix(prefix, path string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
