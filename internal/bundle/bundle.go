// Package bundle computes the identity of an installable application
// bundle: content digest, derived names, executable bit, target
// architecture, and any embedded update hint. The outer container of a
// bundle is always an ELF executable (a wrapper around a compressed
// filesystem image), so architecture and update-hint extraction both read
// the ELF header directly via debug/elf -- no third-party ELF reader
// appears anywhere in the retrieved example pack, so stdlib is the tool in
// evidence for this concern (see DESIGN.md).
package bundle

import (
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// ErrNotFound is returned when the bundle file does not exist.
var ErrNotFound = errors.New("bundle: not found")

// UpdateInfoSection is the ELF section name carrying the embedded update
// hint (spec.md §4.2).
const UpdateInfoSection = ".upd_info"

// maxUpdateInfoBytes caps how much of the .upd_info section we read.
const maxUpdateInfoBytes = 4096

// Metadata is everything computed about a bundle file.
type Metadata struct {
	Path          string
	Digest        string // hex-encoded SHA-256
	DisplayName   string
	SanitizedName string
	Executable    bool
	Architecture  string // "x86_64", "aarch64", "armv7l", "i686", or "" if unknown
	UpdateHint    string // contents of .upd_info, or ""
}

// archByMachine maps ELF e_machine values to the short architecture names
// spec.md §4.2 names.
var archByMachine = map[elf.Machine]string{
	elf.EM_X86_64: "x86_64",
	elf.EM_AARCH64: "aarch64",
	elf.EM_ARM:    "armv7l",
	elf.EM_386:    "i686",
}

// archAliases lists the recognized aliases for each canonical architecture
// name, used here for the host compatibility check. The asset-selection
// heuristic in internal/updater keeps its own copy of this table.
var archAliases = map[string][]string{
	"x86_64":  {"x86_64", "x86-64", "amd64", "x64"},
	"aarch64": {"aarch64", "arm64"},
	"armv7l":  {"armv7l", "armhf", "arm32"},
	"i686":    {"i686", "i386", "x86", "ia32"},
}

// Aliases returns the alias list for a canonical architecture name.
func Aliases(canonical string) []string {
	return archAliases[canonical]
}

// Inspect reads path and computes its Metadata.
func Inspect(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat bundle: %w", err)
	}

	digest, err := digestFile(path)
	if err != nil {
		return nil, fmt.Errorf("digest bundle: %w", err)
	}

	m := &Metadata{
		Path:          path,
		Digest:        digest,
		DisplayName:   DisplayName(path),
		SanitizedName: SanitizeBasename(baseNoExt(path)),
		Executable:    info.Mode()&0o111 != 0,
	}

	f, err := elf.Open(path)
	if err != nil {
		// Not every bundle path needs to be a valid ELF file at every call
		// site (e.g. probing a scratch copy); architecture/hint are simply
		// left blank rather than failing the whole inspection.
		return m, nil
	}
	defer f.Close()

	m.Architecture = archByMachine[f.Machine]
	m.UpdateHint = readUpdateInfo(f)

	return m, nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readUpdateInfo(f *elf.File) string {
	sec := f.Section(UpdateInfoSection)
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil {
		return ""
	}
	if len(data) > maxUpdateInfoBytes {
		data = data[:maxUpdateInfoBytes]
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return strings.TrimSpace(string(data))
}

// DisplayName derives a human-friendly name from a bundle filename: strips
// the ".AppImage" suffix (case-insensitive), replaces common separators
// with spaces, and capitalizes the first character.
func DisplayName(path string) string {
	name := baseNoExt(path)
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// SanitizeBasename maps every character that is not alphanumeric, dash, or
// underscore to a dash, producing a name safe for path construction.
func SanitizeBasename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// baseNoExt returns the filename at path with a trailing ".AppImage"
// (case-insensitive) suffix stripped, otherwise unmodified.
func baseNoExt(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	const suffix = ".appimage"
	if len(base) > len(suffix) && strings.EqualFold(base[len(base)-len(suffix):], suffix) {
		base = base[:len(base)-len(suffix)]
	}
	return base
}

// ArchCompatible reports whether bundleArch can run on hostArch, accepting
// the alias lists from spec.md §4.6.
func ArchCompatible(bundleArch, hostArch string) bool {
	if bundleArch == "" || hostArch == "" {
		return false
	}
	if bundleArch == hostArch {
		return true
	}
	canonicalBundle := canonicalize(bundleArch)
	canonicalHost := canonicalize(hostArch)
	return canonicalBundle != "" && canonicalBundle == canonicalHost
}

// HostArchitecture returns the canonical architecture name for the
// platform app-manager is running on, derived from runtime.GOARCH through
// the same alias table used for bundle/asset compatibility checks
// (spec.md §4.1, §4.6, §4.7).
func HostArchitecture() string {
	switch runtime.GOARCH {
	case "386":
		return "i686"
	case "arm":
		return "armv7l"
	}
	if canonical := canonicalize(runtime.GOARCH); canonical != "" {
		return canonical
	}
	return runtime.GOARCH
}

func canonicalize(arch string) string {
	lower := strings.ToLower(arch)
	for canonical, aliases := range archAliases {
		for _, alias := range aliases {
			if lower == alias {
				return canonical
			}
		}
	}
	return ""
}
