// Package installer implements the Installation Engine: end-to-end
// install, upgrade, and uninstall of bundles, including on-disk layout
// management and preservation of user customizations across upgrades
// (spec.md §4.5). It orchestrates internal/extract, internal/bundle,
// internal/launcher, and internal/registry. The step-by-step flow with
// explicit cleanup-on-failure is grounded on the teacher's main.go command
// dispatch (sequential numbered operations, wrapped errors at each step)
// and other_examples PELF's install-time .desktop correction.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/app-manager/internal/bundle"
	"gitlab.com/tinyland/lab/app-manager/internal/extract"
	"gitlab.com/tinyland/lab/app-manager/internal/launcher"
	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

// Dirs bundles the on-disk locations the installer reads and writes,
// passed explicitly rather than held as module-level state (spec.md §9:
// "no module-level singletons").
type Dirs struct {
	ApplicationsDir string // <user-data>/applications
	InstalledDir    string // <user-data>/applications/.installed
	IconsDir        string // <user-data>/icons
	BinDir          string // ~/.local/bin
}

// Engine is the Installation Engine.
type Engine struct {
	Extractor *extract.Extractor
	Registry  *registry.Registry
	Logger    *slog.Logger
	Dirs      Dirs
}

// New creates an Engine and runs the startup migration pass over existing
// records (spec.md §4.5's "on construction" migration). Migration
// failures are logged as warnings, never returned as errors.
func New(extractor *extract.Extractor, reg *registry.Registry, logger *slog.Logger, dirs Dirs) *Engine {
	e := &Engine{Extractor: extractor, Registry: reg, Logger: logger, Dirs: dirs}
	e.migrateSelfReferences()
	return e
}

// cleanupStack runs registered actions in reverse order; used to unwind
// partial install state on failure (spec.md §4.5 steps 3-9).
type cleanupStack struct {
	actions []func()
}

func (c *cleanupStack) push(action func()) { c.actions = append(c.actions, action) }

func (c *cleanupStack) unwind() {
	for i := len(c.actions) - 1; i >= 0; i-- {
		c.actions[i]()
	}
}

// Install performs a fresh install or the install half of an upgrade.
// preserved carries customization fields to overlay on the new launcher
// when called from Upgrade; pass nil for a fresh install.
func (e *Engine) Install(ctx context.Context, bundlePath string, mode registry.InstallMode, preserved map[string]string) (rec *registry.Record, err error) {
	// Step 1: bundle metadata + precondition check.
	meta, err := bundle.Inspect(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("inspect bundle: %w", err)
	}
	if e.Registry.IsInstalled(meta.Digest) {
		return nil, ErrAlreadyInstalled
	}

	cleanup := &cleanupStack{}
	defer func() {
		if err != nil {
			cleanup.unwind()
		}
	}()

	// Step 2: initial record shell.
	rec = &registry.Record{
		ID:             meta.Digest,
		Name:           meta.DisplayName,
		Mode:           mode,
		SourceChecksum: meta.Digest,
		SourcePath:     bundlePath,
		InstalledAt:    time.Now().UnixMilli(),
	}

	scratch, err := os.MkdirTemp("", "appmgr-install-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	cleanup.push(func() { os.RemoveAll(scratch) })

	// Step 4: extract launcher + icon (before placement, so a missing
	// launcher/icon fails before anything is written to the final dirs).
	launcherPath, err := e.Extractor.ExtractLauncher(ctx, bundlePath, scratch)
	if err != nil {
		return nil, fmt.Errorf("extract launcher: %w", err)
	}
	iconPath, err := e.Extractor.ExtractIcon(ctx, bundlePath, scratch)
	if err != nil {
		return nil, fmt.Errorf("extract icon: %w", err)
	}
	entryPointPath, _ := e.Extractor.ExtractEntryPoint(ctx, bundlePath, scratch)

	launcherData, err := os.ReadFile(launcherPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted launcher: %w", err)
	}
	entry, _ := launcher.Parse(string(launcherData))

	displayName, _ := entry.GetPrimary(launcher.KeyName)
	if displayName == "" {
		displayName = meta.DisplayName
	}
	rec.Name = displayName
	rec.Version = entry.EffectiveVersion()
	terminal := entry.Bool(launcher.KeyTerminal)

	// Step 3: mode-specific placement.
	installedPath, err := e.place(ctx, bundlePath, mode, scratch, displayName, cleanup)
	if err != nil {
		return nil, fmt.Errorf("place bundle: %w", err)
	}
	rec.InstalledPath = installedPath

	// Step 5: slug.
	slug := Slug(displayName, meta.SanitizedName)

	// Step 6: rename to final slug-based name if needed.
	installedPath, err = e.renameToSlug(installedPath, slug, mode)
	if err != nil {
		return nil, fmt.Errorf("rename to slug: %w", err)
	}
	rec.InstalledPath = installedPath

	// Resolve the executable target: for EXTRACTED mode, follow the
	// AppRun -> BIN= hint if Exec points at the generic entry point.
	execValue, _ := entry.GetPrimary(launcher.KeyExec)
	execToken := launcher.ExecFirstToken(execValue)
	execArgs := strings.TrimSpace(strings.TrimPrefix(execValue, execToken))
	resolvedExec := e.resolveExecutable(execToken, installedPath, mode, entryPointPath)

	// Step 7: icon.
	finalIconPath, err := e.installIcon(iconPath, slug)
	if err != nil {
		return nil, fmt.Errorf("install icon: %w", err)
	}
	cleanup.push(func() { os.Remove(finalIconPath) })
	rec.IconPath = finalIconPath

	// Step 8: generate launcher file.
	desktopFile, err := e.writeLauncher(entry, slug, resolvedExec, execArgs, finalIconPath, installedPath, terminal, preserved)
	if err != nil {
		return nil, fmt.Errorf("write launcher: %w", err)
	}
	cleanup.push(func() { os.Remove(desktopFile) })
	rec.DesktopFile = desktopFile

	// Step 9: PATH symlink for terminal apps.
	if terminal {
		binSymlink := filepath.Join(e.Dirs.BinDir, slug)
		if err := os.MkdirAll(e.Dirs.BinDir, 0o755); err != nil {
			return nil, fmt.Errorf("create bin directory: %w", err)
		}
		os.Remove(binSymlink)
		if err := os.Symlink(resolvedExec, binSymlink); err != nil {
			return nil, fmt.Errorf("create bin symlink: %w", err)
		}
		cleanup.push(func() { os.Remove(binSymlink) })
		rec.BinSymlink = binSymlink
	}

	// Step 10: register.
	e.Registry.Register(rec)

	return rec, nil
}

// place moves (PORTABLE) or extracts (EXTRACTED) the bundle into its
// final location under a uniquified path to avoid collisions (spec.md
// §4.5 step 3). EXTRACTED bundles are self-extracted into a staging
// location and then renamed into place. PORTABLE bundles are renamed
// straight into the applications directory without staging; when that
// rename fails the file is copied there instead.
func (e *Engine) place(ctx context.Context, bundlePath string, mode registry.InstallMode, scratch, displayName string, cleanup *cleanupStack) (string, error) {
	switch mode {
	case registry.ModePortable:
		if err := os.MkdirAll(e.Dirs.ApplicationsDir, 0o755); err != nil {
			return "", err
		}
		target := uniquify(filepath.Join(e.Dirs.ApplicationsDir, displayName))
		if err := os.Rename(bundlePath, target); err != nil {
			if err := copyFile(bundlePath, target); err != nil {
				return "", err
			}
		}
		if err := os.Chmod(target, 0o755); err != nil {
			return "", err
		}
		cleanup.push(func() { os.Remove(target) })
		return target, nil

	case registry.ModeExtracted:
		staging := filepath.Join(scratch, "extracted")
		if err := os.MkdirAll(staging, 0o755); err != nil {
			return "", err
		}
		cmd := exec.CommandContext(ctx, bundlePath, "--appimage-extract")
		cmd.Dir = staging
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("self-extract: %w", err)
		}

		extractedRoot := filepath.Join(staging, "squashfs-root")
		if err := os.MkdirAll(e.Dirs.InstalledDir, 0o755); err != nil {
			return "", err
		}
		target := uniquify(filepath.Join(e.Dirs.InstalledDir, displayName))
		if err := os.Rename(extractedRoot, target); err != nil {
			return "", err
		}
		cleanup.push(func() { os.RemoveAll(target) })
		return target, nil

	default:
		return "", fmt.Errorf("unknown install mode %q", mode)
	}
}

// renameToSlug renames the installed artifact to its final slug-based
// name if that differs from its current basename (spec.md §4.5 step 6).
func (e *Engine) renameToSlug(installedPath, slug string, mode registry.InstallMode) (string, error) {
	dir := filepath.Dir(installedPath)
	current := filepath.Base(installedPath)
	if current == slug {
		return installedPath, nil
	}

	target := filepath.Join(dir, slug)
	if _, err := os.Stat(target); err == nil {
		target = uniquify(target)
	}
	if err := os.Rename(installedPath, target); err != nil {
		return installedPath, err
	}
	return target, nil
}

// resolveExecutable follows spec.md §4.3/§4.5: if Exec already points
// somewhere absolute, use it; if it's the generic entry-point script,
// resolve via BIN=; otherwise a relative token is joined to the installed
// directory for EXTRACTED bundles, and PORTABLE bundles fall back to the
// installed bundle path.
func (e *Engine) resolveExecutable(execToken, installedPath string, mode registry.InstallMode, entryPointPath string) string {
	token := launcher.StripAppdirPrefix(execToken)

	if mode == registry.ModeExtracted && launcher.IsAppRunToken(token) {
		if entryPointPath != "" {
			if script, err := os.ReadFile(entryPointPath); err == nil {
				if bin, ok := launcher.ParseBinAssignment(string(script)); ok {
					return filepath.Join(installedPath, "usr", "bin", bin)
				}
			}
		}
		return filepath.Join(installedPath, "AppRun")
	}

	installedDir := installedPath
	if mode == registry.ModePortable {
		installedDir = ""
	}
	return launcher.ResolveExecPath(token, installedDir, installedPath)
}

// installIcon copies the extracted icon into the user icons directory
// under its slug-derived name, preserving its original extension (spec.md
// §4.5 step 7).
func (e *Engine) installIcon(extractedIconPath, slug string) (string, error) {
	if err := os.MkdirAll(e.Dirs.IconsDir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(extractedIconPath)
	target := filepath.Join(e.Dirs.IconsDir, slug+ext)
	if err := copyFile(extractedIconPath, target); err != nil {
		return "", err
	}
	return target, nil
}

// writeLauncher generates the final launcher file at
// <applications>/appmanager-<slug>.desktop (spec.md §4.5 step 8).
func (e *Engine) writeLauncher(source *launcher.Entry, slug, resolvedExec, execArgs, iconPath, installedPath string, terminal bool, preserved map[string]string) (string, error) {
	quotedExec := strconv.Quote(resolvedExec)
	execLine := quotedExec
	if execArgs != "" {
		execLine = quotedExec + " " + execArgs
	}
	source.SetPrimary(launcher.KeyExec, execLine)

	iconBase := strings.TrimSuffix(filepath.Base(iconPath), filepath.Ext(iconPath))
	source.SetPrimary(launcher.KeyIcon, iconBase)

	for key, value := range preserved {
		source.SetPrimary(key, value)
	}

	source.AppendActionsEntry("Uninstall")

	if terminal {
		source.SetPrimary(launcher.KeyNoDisplay, "true")
	}

	uninstallExec := fmt.Sprintf("%s --uninstall %s", resolveSelf(), strconv.Quote(installedPath))
	source.EnsureGroup(launcher.UninstallActionGroup)
	source.Set(launcher.UninstallActionGroup, launcher.KeyExec, uninstallExec)
	source.Set(launcher.UninstallActionGroup, "Name", "Uninstall")

	path := filepath.Join(e.Dirs.ApplicationsDir, fmt.Sprintf("appmanager-%s.desktop", slug))
	if err := os.MkdirAll(e.Dirs.ApplicationsDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(source.Serialize()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func uniquify(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	dir, base := filepath.Dir(path), filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}
