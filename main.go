// app-manager is a headless engine for installing, upgrading, and
// uninstalling self-contained AppImage application bundles, with
// freedesktop.org desktop integration and a background update daemon.
//
// Usage:
//
//	app-manager                         Launch GUI / activate main window (external GUI layer)
//	app-manager <bundle-path>            Open installer UI for path (external GUI layer)
//	app-manager install <path>           Install a bundle (does not upgrade an existing install)
//	app-manager --install <path>
//	app-manager uninstall <target>       Uninstall by path or digest
//	app-manager --uninstall <target>
//	app-manager --is-installed <path>    Print "installed" or "missing"
//	app-manager --background-update      Run the background update daemon
//	app-manager --version                Print version and exit
//	app-manager --help, -h                Print help and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gitlab.com/tinyland/lab/app-manager/internal/appconfig"
	"gitlab.com/tinyland/lab/app-manager/internal/applog"
	"gitlab.com/tinyland/lab/app-manager/internal/bundle"
	"gitlab.com/tinyland/lab/app-manager/internal/daemon"
	"gitlab.com/tinyland/lab/app-manager/internal/extract"
	"gitlab.com/tinyland/lab/app-manager/internal/fsmonitor"
	"gitlab.com/tinyland/lab/app-manager/internal/installer"
	"gitlab.com/tinyland/lab/app-manager/internal/lock"
	"gitlab.com/tinyland/lab/app-manager/internal/registry"
	"gitlab.com/tinyland/lab/app-manager/internal/updater"
	"gitlab.com/tinyland/lab/app-manager/internal/xdgpaths"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// Exit codes per spec.md §6.
const (
	exitOK              = 0
	exitNotInstalled    = 1
	exitInstallFailed   = 2
	exitUninstallFailed = 3
	exitNotFound        = 4
	exitIsInstalledErr  = 5
)

func main() {
	var (
		installFlag     = flag.String("install", "", "Install a bundle (does not upgrade an existing install)")
		uninstallFlag   = flag.String("uninstall", "", "Uninstall by path or digest")
		isInstalledFlag = flag.String("is-installed", "", "Print installed or missing for a bundle path")
		backgroundFlag  = flag.Bool("background-update", false, "Run the background update daemon")
		showVersion     = flag.Bool("version", false, "Print version and exit")
		verbose         = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("app-manager %s (%s) built %s\n", version, commit, date)
		os.Exit(exitOK)
	}

	logger, closeLog, err := applog.New(xdgpaths.LogFilePath(), *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(exitInstallFailed)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	args := flag.Args()

	switch {
	case *backgroundFlag:
		runBackgroundUpdate(ctx, logger)

	case *installFlag != "":
		runInstall(ctx, logger, *installFlag)

	case *uninstallFlag != "":
		runUninstall(ctx, logger, *uninstallFlag)

	case *isInstalledFlag != "":
		runIsInstalled(*isInstalledFlag)

	case len(args) > 0 && args[0] == "install" && len(args) > 1:
		runInstall(ctx, logger, args[1])

	case len(args) > 0 && args[0] == "uninstall" && len(args) > 1:
		runUninstall(ctx, logger, args[1])

	case len(args) == 1:
		// "<bundle-path>": hands off to the external GUI's installer view.
		// The headless engine itself only exposes the verbs above.
		fmt.Printf("no GUI layer in this build; run `app-manager install %s` instead\n", args[0])

	default:
		fmt.Println("no GUI layer in this build; run `app-manager --help` for available commands")
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: app-manager [flags] [command] [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  install <path>         Install a bundle (does not upgrade an existing install)")
	fmt.Fprintln(os.Stderr, "  uninstall <target>     Uninstall by path or digest")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

// newInstallerEngine wires up the Asset Extractor, Registry, and
// Installation Engine against the standard XDG locations (spec.md §6).
func newInstallerEngine(logger *slog.Logger) (*installer.Engine, *registry.Registry, error) {
	reg, err := registry.Load(xdgpaths.RegistryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load registry: %w", err)
	}

	extractor := extract.New(logger, os.Getenv("APP_MANAGER_DWARFS_DIR"), bundledToolsDir())

	dirs := installer.Dirs{
		ApplicationsDir: xdgpaths.ApplicationsDir(),
		InstalledDir:    xdgpaths.InstalledBundlesDir(),
		IconsDir:        xdgpaths.IconsDir(),
		BinDir:          xdgpaths.BinDir(),
	}

	eng := installer.New(extractor, reg, logger, dirs)
	return eng, reg, nil
}

// withBundleLock takes the per-bundle-path process lock (spec.md §4.10)
// before running fn, releasing it on return regardless of outcome.
func withBundleLock(bundlePath string, fn func() error) error {
	l, err := lock.Acquire(xdgpaths.LockDir(), bundlePath)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

func runInstall(ctx context.Context, logger *slog.Logger, path string) {
	eng, reg, err := newInstallerEngine(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "install failed: %v\n", err)
		os.Exit(exitInstallFailed)
	}
	defer reg.Close()

	var rec *registry.Record
	err = withBundleLock(path, func() error {
		var installErr error
		rec, installErr = eng.Install(ctx, path, registry.ModePortable, nil)
		return installErr
	})
	if err == lock.ErrHeld {
		fmt.Fprintf(os.Stderr, "install failed: another instance is already handling %s\n", path)
		os.Exit(exitInstallFailed)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "install failed: %v\n", err)
		os.Exit(exitInstallFailed)
	}

	if err := reg.Persist(true); err != nil {
		fmt.Fprintf(os.Stderr, "install failed: persist registry: %v\n", err)
		os.Exit(exitInstallFailed)
	}

	fmt.Printf("installed %s (%s)\n", rec.Name, rec.Version)
	os.Exit(exitOK)
}

func runUninstall(ctx context.Context, logger *slog.Logger, target string) {
	eng, reg, err := newInstallerEngine(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uninstall failed: %v\n", err)
		os.Exit(exitUninstallFailed)
	}
	defer reg.Close()

	id := target
	lockPath := target
	if rec, ok := reg.LookupByInstalledPath(target); ok {
		id = rec.ID
		lockPath = rec.SourcePath
	} else if rec, ok := reg.LookupBySourcePath(target); ok {
		id = rec.ID
		lockPath = rec.SourcePath
	} else if rec, ok := reg.LookupByDigest(target); ok {
		lockPath = rec.SourcePath
	}

	err = withBundleLock(lockPath, func() error {
		return eng.Uninstall(ctx, id)
	})
	if err == lock.ErrHeld {
		fmt.Fprintf(os.Stderr, "uninstall failed: another instance is already handling %s\n", target)
		os.Exit(exitUninstallFailed)
	}
	if err == installer.ErrNotFound {
		fmt.Fprintf(os.Stderr, "not found: %s\n", target)
		os.Exit(exitNotFound)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "uninstall failed: %v\n", err)
		os.Exit(exitUninstallFailed)
	}

	if err := reg.Persist(true); err != nil {
		fmt.Fprintf(os.Stderr, "uninstall failed: persist registry: %v\n", err)
		os.Exit(exitUninstallFailed)
	}

	fmt.Println("uninstalled")
	os.Exit(exitOK)
}

func runIsInstalled(path string) {
	reg, err := registry.Load(xdgpaths.RegistryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitIsInstalledErr)
	}
	defer reg.Close()

	meta, err := bundle.Inspect(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitIsInstalledErr)
	}

	if reg.IsInstalled(meta.Digest) {
		fmt.Println("installed")
		os.Exit(exitOK)
	}
	fmt.Println("missing")
	os.Exit(exitNotInstalled)
}

func runBackgroundUpdate(ctx context.Context, logger *slog.Logger) {
	reg, err := registry.Load(xdgpaths.RegistryPath())
	if err != nil {
		logger.Error("load registry", "error", err)
		os.Exit(exitInstallFailed)
	}
	defer reg.Close()

	extractor := extract.New(logger, os.Getenv("APP_MANAGER_DWARFS_DIR"), bundledToolsDir())
	dirs := installer.Dirs{
		ApplicationsDir: xdgpaths.ApplicationsDir(),
		InstalledDir:    xdgpaths.InstalledBundlesDir(),
		IconsDir:        xdgpaths.IconsDir(),
		BinDir:          xdgpaths.BinDir(),
	}
	installEngine := installer.New(extractor, reg, logger, dirs)

	prober := updater.NewProber(bundle.HostArchitecture())
	updateLogger := updater.NewLogger(xdgpaths.UpdateLogPath())
	updateEngine := updater.New(prober, reg, installEngine, updateLogger, updater.Events{})

	self := resolveSelfExec()
	if cfg, err := appconfig.Load(xdgpaths.ConfigPath()); err == nil {
		if cfg.AutoCheckEnabled && !cfg.BackgroundPermissionAsked {
			if err := daemon.EnableAutostart(xdgpaths.AutostartDir(), self); err != nil {
				logger.Warn("enable autostart", "error", err)
			}
			cfg.BackgroundPermissionAsked = true
			if err := appconfig.Save(xdgpaths.ConfigPath(), cfg); err != nil {
				logger.Warn("persist background-permission bit", "error", err)
			}
		}
	}

	fsWatcher, err := newFilesystemMonitor(reg, logger)
	if err != nil {
		logger.Warn("filesystem monitor unavailable", "error", err)
	} else {
		go fsWatcher.Run()
		defer fsWatcher.Close()
	}

	d := &daemon.Daemon{
		Engine:     updateEngine,
		Registry:   reg,
		ConfigPath: xdgpaths.ConfigPath(),
		HealthPath: xdgpaths.HealthPath(),
		PIDPath:    xdgpaths.PIDPath(),
		SocketPath: xdgpaths.IPCSocketPath(),
		SelfExec:   self,
		Logger:     logger,
	}

	logger.Info("starting background update daemon")
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(exitInstallFailed)
	}
	os.Exit(exitOK)
}

// newFilesystemMonitor watches for bundles removed or moved out from under
// the registry's back and reconciles the registry in response (spec.md
// §4.9).
func newFilesystemMonitor(reg *registry.Registry, logger *slog.Logger) (*fsmonitor.Monitor, error) {
	mon, err := fsmonitor.New(reg, logger, xdgpaths.ApplicationsDir(), xdgpaths.InstalledBundlesDir())
	if err != nil {
		return nil, err
	}
	mon.OnChange = func(path string) {
		removed := reg.ReconcileWithFilesystem()
		if len(removed) > 0 {
			logger.Info("reconciled registry after filesystem change", "path", path, "removed", len(removed))
		}
	}
	return mon, nil
}

func resolveSelfExec() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			return resolved
		}
		return exe
	}
	return "app-manager"
}

// bundledToolsDir is "<dir containing the running binary>/tools", where a
// packaged build may ship its own dwarfsextract alongside the executable
// (spec.md §4.1's delta-filesystem tool search order).
func bundledToolsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "tools")
}
