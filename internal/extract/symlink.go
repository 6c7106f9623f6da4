package extract

import (
	"context"
	"os"
	"path"
	"strings"
)

// maxSymlinkHops bounds in-bundle symlink resolution (spec.md §4.1).
const maxSymlinkHops = 5

// normalizeInBundlePath strips leading separators and rejects escape
// attempts via parent-directory references, as required when following a
// symlink target back into the bundle's file tree.
func normalizeInBundlePath(target string) (string, bool) {
	clean := path.Clean(strings.TrimLeft(target, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

// resolveSymlinkChain follows a chain of in-bundle symlinks starting from
// extractedPath (a file already extracted to disk under extractedRoot),
// re-extracting each successive target via reextract, until it reaches a
// non-symlink file or hits the hop/visited limits.
//
// reextract is called with the normalized in-bundle path of the next hop
// and must return the path on disk the target was extracted to.
func resolveSymlinkChain(ctx context.Context, extractedPath string, reextract func(ctx context.Context, inBundlePath string) (string, error)) (string, error) {
	visited := make(map[string]bool)
	current := extractedPath

	for hop := 0; ; hop++ {
		if hop >= maxSymlinkHops {
			return "", ErrSymlinkLimitExceeded
		}

		info, err := os.Lstat(current)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}

		target, err := os.Readlink(current)
		if err != nil {
			return "", err
		}

		normalized, ok := normalizeInBundlePath(target)
		if !ok {
			return "", ErrExtractionFailed
		}
		if visited[normalized] {
			return "", ErrSymlinkLoop
		}
		visited[normalized] = true

		next, err := reextract(ctx, normalized)
		if err != nil {
			return "", err
		}
		current = next
	}
}
