// Package updater implements the Update Engine: probing heterogeneous
// update sources for new releases, selecting the correct architecture
// asset, and applying updates through the Installation Engine's upgrade
// path. The worker-pool shape is grounded on the teacher's bounded-
// concurrency polling patterns in pkg/daemon; version comparison is
// hand-rolled rather than github.com/blang/semver/v4 (present elsewhere in
// the retrieved pack, e.g. kaovilai-operator-sdk and
// lburgazzoli-olm-extractor) because semver enforces strict
// three-component dotted-numeric versions, incompatible with the free-form
// channel-prefix-stripping, variable-length comparison spec.md §4.7 calls
// for (justified stdlib use, see DESIGN.md).
package updater

import "strings"

// NormalizeVersion strips any channel prefix up to the first digit, strips
// a leading v/V, and takes the longest prefix consisting of digits and
// dots (spec.md §4.7).
func NormalizeVersion(raw string) string {
	s := raw
	for i, r := range s {
		if r >= '0' && r <= '9' {
			s = s[i:]
			break
		}
		if i == len(s)-1 {
			s = ""
		}
	}
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "V")

	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	return s[:end]
}

// CompareVersions splits both normalized versions on ".", zero-pads the
// shorter, and compares part-wise numerically, returning -1, 0, or 1
// (spec.md §4.7).
func CompareVersions(a, b string) int {
	na := NormalizeVersion(a)
	nb := NormalizeVersion(b)

	pa := strings.Split(na, ".")
	pb := strings.Split(nb, ".")
	for len(pa) < len(pb) {
		pa = append(pa, "0")
	}
	for len(pb) < len(pa) {
		pb = append(pb, "0")
	}

	for i := range pa {
		ia := parseDigits(pa[i])
		ib := parseDigits(pb[i])
		if ia != ib {
			if ia < ib {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseDigits(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}
