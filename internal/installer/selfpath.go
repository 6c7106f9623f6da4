package installer

import (
	"fmt"
	"os"
	"os/exec"

	"gitlab.com/tinyland/lab/app-manager/internal/launcher"
)

// resolveSelf picks the invocation app-manager should embed as "<self>" in
// a generated [Desktop Action Uninstall] group's Exec line, trying each
// option in the order spec.md §4.5 step 8 lists:
//
//  1. "flatpak run <app-id>" if running sandboxed,
//  2. the ambient app-manager binary found on PATH,
//  3. /proc/self/exe,
//  4. the literal "app-manager".
func resolveSelf() string {
	if appID, sandboxed := sandboxAppID(); sandboxed {
		return fmt.Sprintf("flatpak run %s", appID)
	}

	if path, err := exec.LookPath("app-manager"); err == nil {
		return path
	}

	if exe, err := os.Readlink("/proc/self/exe"); err == nil && exe != "" {
		return exe
	}

	return "app-manager"
}

// sandboxAppID reports whether the process is running inside a Flatpak
// sandbox (spec.md §6: FLATPAK_ID, /.flatpak-info) and, if so, the app ID
// to invoke.
func sandboxAppID() (string, bool) {
	if id := os.Getenv("FLATPAK_ID"); id != "" {
		return id, true
	}
	if data, err := os.ReadFile("/.flatpak-info"); err == nil {
		info, _ := launcher.Parse(string(data))
		if id, ok := info.Get("Application", "name"); ok && id != "" {
			return id, true
		}
	}
	return "", false
}
