package updater

import "strings"

// Asset is a single downloadable release artifact (spec.md §3).
type Asset struct {
	Name string
	URL  string
}

// archAliases mirrors internal/bundle's alias table (spec.md §4.7); kept
// local to avoid a dependency from updater onto bundle for a four-entry
// table duplicated verbatim in the spec itself.
var archAliases = map[string][]string{
	"x86_64":  {"x86_64", "x86-64", "amd64", "x64"},
	"aarch64": {"aarch64", "arm64"},
	"armv7l":  {"armv7l", "armhf", "arm32"},
	"i686":    {"i686", "i386", "x86", "ia32"},
}

// allArchPatterns flattens every alias across every architecture, used to
// detect whether an asset name carries any recognized arch token at all.
func allArchPatterns() []string {
	var out []string
	for _, aliases := range archAliases {
		out = append(out, aliases...)
	}
	return out
}

// SelectAsset implements spec.md §4.7's asset-selection heuristic: filter
// to assets whose name or URL ends with ".appimage" (case-insensitive),
// then:
//  1. first asset matching a hostArch alias,
//  2. if hostArch is x86_64, first asset with no recognized arch token,
//  3. if exactly one candidate remains, that one,
//  4. otherwise none.
func SelectAsset(assets []Asset, hostArch string) (Asset, bool) {
	var candidates []Asset
	for _, a := range assets {
		if strings.HasSuffix(strings.ToLower(a.Name), ".appimage") || strings.HasSuffix(strings.ToLower(a.URL), ".appimage") {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return Asset{}, false
	}

	if aliases, ok := archAliases[hostArch]; ok {
		for _, a := range candidates {
			if containsAny(a.Name, aliases) || containsAny(a.URL, aliases) {
				return a, true
			}
		}
	}

	if hostArch == "x86_64" {
		patterns := allArchPatterns()
		for _, a := range candidates {
			if !containsAny(a.Name, patterns) {
				return a, true
			}
		}
	}

	if len(candidates) == 1 {
		return candidates[0], true
	}

	return Asset{}, false
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
