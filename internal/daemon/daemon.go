// Package daemon implements the Background Update Daemon (spec.md §4.8):
// a long-lived process, entered via the --background-update CLI verb, that
// periodically probes installed bundles for updates and applies them. PID
// locking and Unix-socket status IPC are adapted (not copied verbatim) from
// the teacher's pkg/daemon/pidfile.go and pkg/daemon/ipc.go; the health file
// is adapted from pkg/daemon/health.go.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tinyland/lab/app-manager/internal/appconfig"
	"gitlab.com/tinyland/lab/app-manager/internal/registry"
	"gitlab.com/tinyland/lab/app-manager/internal/updater"
)

// tickInterval is the fixed sleep period between policy/due-checks, not to
// be confused with the user-configurable CheckInterval that decides whether
// a tick actually runs update_all (spec.md §4.8: "sleeping a fixed short
// interval (default 3600 seconds) between checks").
const tickInterval = appconfig.DefaultPollInterval

// AutostartDesktopID is the autostart launcher filename (spec.md §6).
const AutostartDesktopID = "com.github.AppManager.desktop"

// Daemon runs the background update loop and serves the status IPC socket.
type Daemon struct {
	Engine     *updater.Engine
	Registry   *registry.Registry
	ConfigPath string
	HealthPath string
	PIDPath    string
	SocketPath string
	SelfExec   string
	Logger     *slog.Logger

	server *Server
}

// Run implements spec.md §4.8's main loop: policy gate, then sleep/check
// forever until ctx is cancelled. Returns nil on a clean shutdown
// (ctx.Done(), or an explicit QUIT over IPC).
func (d *Daemon) Run(ctx context.Context) error {
	cfg, err := appconfig.Load(d.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.AutoCheckEnabled {
		d.Logger.Info("background update checks disabled, exiting")
		return nil
	}

	if err := AcquirePID(d.PIDPath); err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	defer ReleasePID(d.PIDPath)

	quit := make(chan struct{})
	d.server = NewServer(d.SocketPath, &ipcHandler{d: d, quit: quit})
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer d.server.Stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	d.writeHealth(nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case <-ticker.C:
			d.maybeTick(ctx)
		}
	}
}

// maybeTick consults the configured check interval and the last-check
// timestamp to decide whether this tick runs update_all (spec.md §4.8).
func (d *Daemon) maybeTick(ctx context.Context) {
	cfg, err := appconfig.Load(d.ConfigPath)
	if err != nil {
		d.Logger.Warn("reload config for tick", "error", err)
		return
	}

	interval := cfg.CheckInterval.Duration
	if interval <= 0 {
		interval = appconfig.DefaultPollInterval
	}
	if !cfg.LastCheck.IsZero() && time.Since(cfg.LastCheck) < interval {
		return
	}

	errs := d.Engine.UpdateAll(ctx)
	checked, updated, failed := len(errs), 0, 0
	var lastErr string
	for _, err := range errs {
		if err == nil {
			updated++
			continue
		}
		failed++
		lastErr = err.Error()
	}

	cfg.LastCheck = time.Now()
	if err := appconfig.Save(d.ConfigPath, cfg); err != nil {
		d.Logger.Warn("persist last-check timestamp", "error", err)
	}

	d.writeHealth(&tickSummary{checked: checked, updated: updated, failed: failed, lastErr: lastErr})
}

type tickSummary struct {
	checked, updated, failed int
	lastErr                  string
}

func (d *Daemon) writeHealth(summary *tickSummary) {
	status := &Status{PID: os.Getpid(), LastTickAt: time.Now().UnixMilli()}
	if summary != nil {
		status.LastCheckRanAt = status.LastTickAt
		status.Checked = summary.checked
		status.Updated = summary.updated
		status.Failed = summary.failed
		status.LastError = summary.lastErr
	}
	if err := WriteHealthFile(d.HealthPath, status); err != nil {
		d.Logger.Warn("write health file", "error", err)
	}
}

// EnableAutostart writes the desktop-autostart launcher whose Exec invokes
// "<self> --background-update" (spec.md §4.8). Idempotent.
func EnableAutostart(autostartDir, selfExec string) error {
	if err := os.MkdirAll(autostartDir, 0o755); err != nil {
		return fmt.Errorf("create autostart directory: %w", err)
	}

	content := fmt.Sprintf(
		"[Desktop Entry]\nType=Application\nName=App Manager Background Updater\nExec=%s --background-update\nNoDisplay=true\nX-GNOME-Autostart-enabled=true\n",
		selfExec,
	)
	path := filepath.Join(autostartDir, AutostartDesktopID)
	return os.WriteFile(path, []byte(content), 0o644)
}

// DisableAutostart removes the autostart launcher if present.
func DisableAutostart(autostartDir string) error {
	err := os.Remove(filepath.Join(autostartDir, AutostartDesktopID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ipcHandler implements Handler, dispatching STATUS/PROBE/QUIT to the
// running Daemon (the teacher's pkg/daemon/ipc.go HEALTH/REFRESH/QUIT
// shape, generalized here). The CLI's --is-installed does not query it.
type ipcHandler struct {
	d    *Daemon
	quit chan struct{}
}

func (h *ipcHandler) HandleCommand(cmd string, args map[string]string) (string, error) {
	switch cmd {
	case "STATUS":
		status, err := ReadHealthFile(h.d.HealthPath)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(status)
		return string(data), err

	case "PROBE":
		target := args["target"]
		rec, ok := h.d.Registry.LookupByInstalledPath(target)
		if !ok {
			rec, ok = h.d.Registry.LookupByDigest(target)
		}
		if !ok {
			return `{"installed":false}`, nil
		}
		data, err := json.Marshal(map[string]any{"installed": true, "version": rec.Version})
		return string(data), err

	case "QUIT":
		close(h.quit)
		return `{"ok":true}`, nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}
