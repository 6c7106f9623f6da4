// Package extract implements the Asset Extractor: pulling a bundle's root
// launcher entry, icon, optional entry-point script, and optional
// app-metadata version out of its container image, plus a
// no-disk-write compatibility probe. Bundles wrap one of two container
// formats; app-manager tries the bundled compression tool (SquashFS via
// unsquashfs, offset-located with the real "--appimage-offset" AppImage
// runtime convention) first and falls back to an external delta-filesystem
// tool (dwarfsextract) discovered per spec.md §4.1's search order. This
// mirrors the subprocess-driven extraction style of other_examples PELF
// (exec.Command(bundle, flag) to pull metadata out of a bundle without a
// full unpack).
package extract

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var iconPatterns = []string{"*.png", "*.DirIcon"}
var iconExtPriority = []string{".png", ".svg"}
var appRunPatterns = []string{"AppRun", "AppRun.sh", "*.AppRun"}
var metadataPatterns = []string{"usr/share/metainfo/*.appdata.xml", "usr/share/metainfo/*.metainfo.xml"}

// SentinelIconName is the generic freedesktop icon name for an executable.
// Nothing in this package returns it: ExtractIcon fails with ErrIconMissing
// when the bundle has no root-level PNG or SVG icon.
const SentinelIconName = "application-x-executable"

// Extractor performs asset extraction against bundle files.
type Extractor struct {
	logger *slog.Logger
	dwarfs *toolFinder
}

// New creates an Extractor. envOverride and bundledDir configure
// delta-filesystem tool discovery (spec.md §4.1): envOverride comes from
// APP_MANAGER_DWARFS_DIR, bundledDir from a build-time bundled tools
// directory shipped alongside the binary.
func New(logger *slog.Logger, envOverride, bundledDir string) *Extractor {
	return &Extractor{
		logger: logger,
		dwarfs: newToolFinder(envOverride, bundledDir, logger),
	}
}

// extractPatterns tries the SquashFS path first, falling back to the
// delta-filesystem tool on failure, per spec.md §4.1's "try the first...
// fall back to the second" strategy.
func (x *Extractor) extractPatterns(ctx context.Context, bundlePath, destDir string, patterns ...string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: create scratch directory: %v", ErrExtractionFailed, err)
	}

	if err := squashfsExtract(ctx, bundlePath, destDir, patterns...); err == nil {
		return nil
	}

	return x.dwarfs.dwarfsExtract(ctx, bundlePath, destDir, patterns...)
}

// findRootLevelFile returns the first entry directly under destDir (no
// subdirectory) whose basename satisfies want.
func findRootLevelFile(destDir string, want func(name string) bool) (string, bool) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if want(e.Name()) {
			return filepath.Join(destDir, e.Name()), true
		}
	}
	return "", false
}

// ExtractLauncher extracts the root-level launcher entry (.desktop file)
// into scratch, following in-bundle symlinks per spec.md §4.1.
func (x *Extractor) ExtractLauncher(ctx context.Context, bundlePath, scratch string) (string, error) {
	destDir := filepath.Join(scratch, "launcher")
	if err := x.extractPatterns(ctx, bundlePath, destDir, "*.desktop"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLauncherMissing, err)
	}

	path, ok := findRootLevelFile(destDir, func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), ".desktop")
	})
	if !ok {
		return "", ErrLauncherMissing
	}

	resolved, err := x.resolveExtracted(ctx, bundlePath, destDir, path, "*.desktop")
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// ExtractIcon extracts the root-level icon, preferring PNG then SVG.
func (x *Extractor) ExtractIcon(ctx context.Context, bundlePath, scratch string) (string, error) {
	destDir := filepath.Join(scratch, "icon")
	if err := x.extractPatterns(ctx, bundlePath, destDir, "*.png", "*.svg"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIconMissing, err)
	}

	for _, ext := range iconExtPriority {
		if path, ok := findRootLevelFile(destDir, func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), ext)
		}); ok {
			resolved, err := x.resolveExtracted(ctx, bundlePath, destDir, path, "*"+ext)
			if err != nil {
				return "", err
			}
			return resolved, nil
		}
	}

	return "", ErrIconMissing
}

// ExtractEntryPoint extracts the AppRun entry-point script if present.
// Absence is not an error: it returns "", nil.
func (x *Extractor) ExtractEntryPoint(ctx context.Context, bundlePath, scratch string) (string, error) {
	destDir := filepath.Join(scratch, "entrypoint")
	if err := x.extractPatterns(ctx, bundlePath, destDir, appRunPatterns...); err != nil {
		return "", nil
	}

	path, ok := findRootLevelFile(destDir, func(name string) bool {
		return strings.EqualFold(name, "AppRun") || strings.EqualFold(name, "AppRun.sh")
	})
	if !ok {
		return "", nil
	}

	resolved, err := x.resolveExtracted(ctx, bundlePath, destDir, path, "AppRun")
	if err != nil {
		return "", nil
	}
	return resolved, nil
}

// appMetadata is the minimal appstream shape needed to read a release
// version out of usr/share/metainfo/*.appdata.xml.
type appMetadata struct {
	XMLName  xml.Name `xml:"component"`
	Releases struct {
		Release []struct {
			Version string `xml:"version,attr"`
		} `xml:"release"`
	} `xml:"releases"`
}

// ExtractAppMetadataVersion extracts an app-metadata XML file from a
// canonical in-bundle path and reads its first release version, if any.
func (x *Extractor) ExtractAppMetadataVersion(ctx context.Context, bundlePath, scratch string) (string, error) {
	destDir := filepath.Join(scratch, "metainfo")
	if err := x.extractPatterns(ctx, bundlePath, destDir, metadataPatterns...); err != nil {
		return "", nil
	}

	var xmlPath string
	_ = filepath.WalkDir(destDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".xml") {
			xmlPath = p
		}
		return nil
	})
	if xmlPath == "" {
		return "", nil
	}

	f, err := os.Open(xmlPath)
	if err != nil {
		return "", nil
	}
	defer f.Close()

	var meta appMetadata
	if err := xml.NewDecoder(bufio.NewReader(f)).Decode(&meta); err != nil {
		return "", nil
	}
	if len(meta.Releases.Release) == 0 {
		return "", nil
	}
	return meta.Releases.Release[0].Version, nil
}

// resolveExtracted follows symlinks from an already-extracted file back
// into the bundle, re-extracting each hop via pattern.
func (x *Extractor) resolveExtracted(ctx context.Context, bundlePath, destDir, extractedPath, pattern string) (string, error) {
	return resolveSymlinkChain(ctx, extractedPath, func(ctx context.Context, inBundlePath string) (string, error) {
		if err := x.extractPatterns(ctx, bundlePath, destDir, inBundlePath); err != nil {
			return "", fmt.Errorf("%w: re-extract symlink target %q: %v", ErrExtractionFailed, inBundlePath, err)
		}
		target := filepath.Join(destDir, inBundlePath)
		if _, err := os.Lstat(target); err != nil {
			return "", fmt.Errorf("%w: symlink target %q not found after re-extraction", ErrExtractionFailed, inBundlePath)
		}
		return target, nil
	})
}

// CheckCompatibility reports whether the bundle contains at least one
// launcher entry, one icon, and an entry-point script, without writing
// anything to disk (spec.md §4.1).
func (x *Extractor) CheckCompatibility(ctx context.Context, bundlePath string) bool {
	if entries, err := squashfsListing(ctx, bundlePath); err == nil {
		return hasLauncher(entries) && hasIcon(entries) && hasEntryPoint(entries)
	}

	ok, err := x.dwarfs.dwarfsStreamProbe(ctx, bundlePath)
	if err != nil {
		return false
	}
	return ok
}

func hasLauncher(entries []string) bool {
	for _, e := range entries {
		if strings.HasSuffix(strings.ToLower(e), ".desktop") {
			return true
		}
	}
	return false
}

func hasIcon(entries []string) bool {
	for _, e := range entries {
		lower := strings.ToLower(e)
		if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".svg") {
			return true
		}
	}
	return false
}

func hasEntryPoint(entries []string) bool {
	for _, e := range entries {
		base := filepath.Base(e)
		if strings.EqualFold(base, "AppRun") || strings.EqualFold(base, "AppRun.sh") {
			return true
		}
	}
	return false
}
