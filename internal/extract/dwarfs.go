package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// emptyTarArchiveSize is the byte size of a tar stream containing no
// entries (two 512-byte zero blocks), used as the no-disk-write
// compatibility signal threshold (spec.md §4.1).
const emptyTarArchiveSize = 1024

// dwarfsToolNames are the candidate binary names for the delta-filesystem
// extraction tool, tried in order at each discovered location.
var dwarfsToolNames = []string{"dwarfsextract"}

// wellKnownDwarfsDirs are per-user and system-wide locations searched for a bundled copy of
// the delta-filesystem tool, after the environment override and before
// falling back to the ambient PATH (spec.md §4.1).
func wellKnownDwarfsDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".local", "lib", "app-manager"),
		filepath.Join(home, ".local", "share", "app-manager", "tools"),
		"/usr/lib/app-manager",
		"/opt/app-manager",
	}
}

// toolFinder discovers the delta-filesystem tool once per process and logs
// its absence exactly once, per spec.md §4.1 ("absence of the delta tool is
// logged once per process and further attempts silently fail").
type toolFinder struct {
	envOverride string
	bundledDir  string
	logger      *slog.Logger

	once   sync.Once
	path   string
	found  bool
}

func newToolFinder(envOverride, bundledDir string, logger *slog.Logger) *toolFinder {
	return &toolFinder{envOverride: envOverride, bundledDir: bundledDir, logger: logger}
}

func (f *toolFinder) find() (string, bool) {
	f.once.Do(func() {
		candidates := []string{}
		if f.envOverride != "" {
			for _, name := range dwarfsToolNames {
				candidates = append(candidates, filepath.Join(f.envOverride, name))
			}
		}
		if f.bundledDir != "" {
			for _, name := range dwarfsToolNames {
				candidates = append(candidates, filepath.Join(f.bundledDir, name))
			}
		}
		for _, dir := range wellKnownDwarfsDirs() {
			for _, name := range dwarfsToolNames {
				candidates = append(candidates, filepath.Join(dir, name))
			}
		}

		for _, c := range candidates {
			if info, err := os.Stat(c); err == nil && info.Mode()&0o111 != 0 {
				f.path, f.found = c, true
				return
			}
		}

		for _, name := range dwarfsToolNames {
			if p, err := exec.LookPath(name); err == nil {
				f.path, f.found = p, true
				return
			}
		}

		if f.logger != nil {
			f.logger.Warn("delta-filesystem tool not found; dwarfs-format bundles will fail to extract")
		}
	})
	return f.path, f.found
}

// dwarfsExtract extracts the named in-bundle patterns into destDir using
// the discovered delta-filesystem tool.
func (f *toolFinder) dwarfsExtract(ctx context.Context, bundlePath, destDir string, patterns ...string) error {
	tool, ok := f.find()
	if !ok {
		return fmt.Errorf("%w: no delta-filesystem tool available", ErrExtractionFailed)
	}

	args := []string{"-i", bundlePath, "-o", destDir}
	args = append(args, patterns...)

	cmd := exec.CommandContext(ctx, tool, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtractionFailed, tool, err)
	}
	return nil
}

// dwarfsStreamProbe runs the delta-filesystem tool in tar-streaming output
// mode (writing to stdout rather than disk) and reports whether its output
// exceeds the empty-archive size, per spec.md §4.1's no-disk-write
// compatibility check.
func (f *toolFinder) dwarfsStreamProbe(ctx context.Context, bundlePath string) (bool, error) {
	tool, ok := f.find()
	if !ok {
		return false, fmt.Errorf("%w: no delta-filesystem tool available", ErrExtractionFailed)
	}

	cmd := exec.CommandContext(ctx, tool, "-i", bundlePath, "-o", "-", "-f", "tar")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	n, copyErr := io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()
	if copyErr != nil {
		return false, fmt.Errorf("%w: streaming probe: %v", ErrExtractionFailed, copyErr)
	}
	if waitErr != nil && n <= emptyTarArchiveSize {
		return false, nil
	}

	return n > emptyTarArchiveSize, nil
}
