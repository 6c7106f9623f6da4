package installer

import (
	"fmt"
	"os"

	"gitlab.com/tinyland/lab/app-manager/internal/launcher"
)

// migrateSelfReferences iterates existing records and rewrites their
// launcher's [Desktop Action Uninstall] Exec so the "<self>" portion
// matches the current resolution (spec.md §4.5: "on construction").
// Failures are logged as warnings, never returned, matching spec.md §7's
// migration-failure propagation policy.
func (e *Engine) migrateSelfReferences() {
	self := resolveSelf()

	for _, rec := range e.Registry.List() {
		if rec.DesktopFile == "" {
			continue
		}

		data, err := os.ReadFile(rec.DesktopFile)
		if err != nil {
			e.warnf("migrate self-reference for %s: read launcher: %v", rec.Name, err)
			continue
		}

		entry, warn := launcher.Parse(string(data))
		if warn != "" {
			e.warnf("migrate self-reference for %s: parse launcher: %s", rec.Name, warn)
		}
		if !entry.HasGroup(launcher.UninstallActionGroup) {
			continue
		}

		execValue, _ := entry.Get(launcher.UninstallActionGroup, launcher.KeyExec)
		rewritten := rewriteSelfInvocation(execValue, self)
		if rewritten == execValue {
			continue
		}

		entry.Set(launcher.UninstallActionGroup, launcher.KeyExec, rewritten)
		if err := os.WriteFile(rec.DesktopFile, []byte(entry.Serialize()), 0o644); err != nil {
			e.warnf("migrate self-reference for %s: write launcher: %v", rec.Name, err)
		}
	}
}

// rewriteSelfInvocation replaces the leading "<self>" token of a
// "<self> --uninstall <path>" Exec line with self, preserving everything
// from " --uninstall " on.
func rewriteSelfInvocation(execValue, self string) string {
	idx := indexOf(execValue, " --uninstall ")
	if idx < 0 {
		return execValue
	}
	return self + execValue[idx:]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (e *Engine) warnf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Warn(fmt.Sprintf(format, args...))
	}
}
