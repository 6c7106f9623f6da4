package extract

import "errors"

// Sentinel errors for the extraction failure taxonomy (spec.md §7).
var (
	ErrLauncherMissing      = errors.New("extract: launcher entry missing")
	ErrIconMissing          = errors.New("extract: icon missing")
	ErrExtractionFailed     = errors.New("extract: extraction failed")
	ErrSymlinkLoop          = errors.New("extract: symlink loop detected")
	ErrSymlinkLimitExceeded = errors.New("extract: symlink hop limit exceeded")
)
