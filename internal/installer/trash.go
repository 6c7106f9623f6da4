package installer

import (
	"context"
	"os/exec"
)

// trashFile moves path to the desktop trash via the ambient "gio trash"
// helper (part of glib2, present on any freedesktop.org desktop), matching
// spec.md §4.5's "moved to the user trash" wording for PORTABLE uninstalls.
// Absence of the tool, or its failure, is reported so the caller can fall
// back to direct removal.
func trashFile(ctx context.Context, path string) error {
	if _, err := exec.LookPath("gio"); err != nil {
		return err
	}
	return exec.CommandContext(ctx, "gio", "trash", path).Run()
}
