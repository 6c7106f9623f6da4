package installer

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

// Uninstall implements spec.md §4.5's Uninstall flow: remove the installed
// artifact (PORTABLE files go to the user trash when available, falling
// back to direct removal; EXTRACTED directories are removed recursively),
// delete the launcher file, the icon, and the PATH symlink, then unregister
// the record. An unknown id yields ErrNotFound; a failure to remove the
// installed artifact is wrapped in ErrUninstallFailed. Failures removing
// the launcher file, icon or PATH symlink are ignored.
func (e *Engine) Uninstall(ctx context.Context, id string) error {
	rec, ok := e.Registry.LookupByDigest(id)
	if !ok {
		return ErrNotFound
	}

	if err := e.removeArtifact(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrUninstallFailed, err)
	}

	removeIfPresent(rec.DesktopFile)
	removeIfPresent(rec.IconPath)
	removeIfPresent(rec.BinSymlink)

	e.Registry.Unregister(rec.ID)
	return nil
}

func (e *Engine) removeArtifact(ctx context.Context, rec *registry.Record) error {
	if rec.InstalledPath == "" {
		return nil
	}

	switch rec.Mode {
	case registry.ModeExtracted:
		return os.RemoveAll(rec.InstalledPath)

	case registry.ModePortable:
		if err := trashFile(ctx, rec.InstalledPath); err != nil {
			if err := os.Remove(rec.InstalledPath); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown install mode %q", rec.Mode)
	}
}

func removeIfPresent(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
