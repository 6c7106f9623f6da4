package installer

import "errors"

// Precondition and uninstall failure sentinels (spec.md §7).
var (
	ErrAlreadyInstalled = errors.New("installer: bundle already installed")
	ErrNotFound         = errors.New("installer: record not found")
	ErrUninstallFailed  = errors.New("installer: uninstall failed")
)
