// Package launcher implements the freedesktop.org launcher-entry (.desktop)
// format: an INI-like document of "[Group Name]" sections containing
// "Key=Value" lines, with optional localized variants ("Name[fr]=...") and
// comment lines beginning with "#". No third-party INI/desktop-file parser
// appears anywhere in the retrieved example pack, so this is a hand-rolled,
// line-preserving model in the style of other_examples PELF's
// updateDesktopFile (regex-based correction of individual lines while
// leaving the rest of the file untouched) -- generalized here to a full
// parse/mutate/serialize round trip instead of one-shot regex substitution.
package launcher

import (
	"strconv"
	"strings"
)

// PrimaryGroup is the mandatory first group of a launcher entry.
const PrimaryGroup = "Desktop Entry"

// Recognized keys in the primary group (spec.md §4.3).
const (
	KeyName           = "Name"
	KeyVersion        = "Version"
	KeyExec           = "Exec"
	KeyIcon           = "Icon"
	KeyKeywords       = "Keywords"
	KeyCategories     = "Categories"
	KeyStartupWMClass = "StartupWMClass"
	KeyTerminal       = "Terminal"
	KeyNoDisplay      = "NoDisplay"
	KeyActions        = "Actions"
	KeyHomepage       = "X-AppImage-Homepage"
	KeyUpdateURL      = "X-AppImage-UpdateURL"
	KeyAppImageVersion = "X-AppImage-Version"
)

// UninstallActionGroup is the action group app-manager appends to every
// launcher it generates (spec.md §4.5 step 8).
const UninstallActionGroup = "Desktop Action Uninstall"

// line is one physical line of a group's body: either a comment/blank line
// (kept verbatim in raw) or a key=value pair.
type line struct {
	raw   string
	key   string
	value string
	isKV  bool
}

// group is one "[Name]" section with its lines in original order.
type group struct {
	name  string
	lines []line
}

// Entry is a parsed launcher-entry document.
type Entry struct {
	groups []*group
}

// Parse reads a launcher-entry document. Parsing is total: anything that
// doesn't look like a group header, comment, blank line, or key=value pair
// is preserved as a raw line within whatever group is currently open (or
// dropped if encountered before any group header), matching the "never
// abort" contract in spec.md §4.3. warn is non-empty when non-blank content
// precedes the first group header (that content is dropped).
func Parse(data string) (entry *Entry, warn string) {
	e := &Entry{}
	var current *group

	for _, raw := range strings.Split(data, "\n") {
		trimmed := strings.TrimRight(raw, "\r")
		stripped := strings.TrimSpace(trimmed)

		if strings.HasPrefix(stripped, "[") && strings.HasSuffix(stripped, "]") {
			g := &group{name: stripped[1 : len(stripped)-1]}
			e.groups = append(e.groups, g)
			current = g
			continue
		}

		if current == nil {
			// Content before any group header is dropped; non-blank
			// content there is signalled with a warning.
			if stripped != "" {
				warn = "content preceding first group header"
			}
			continue
		}

		if stripped == "" || strings.HasPrefix(stripped, "#") {
			current.lines = append(current.lines, line{raw: trimmed})
			continue
		}

		if idx := strings.Index(trimmed, "="); idx >= 0 {
			key := strings.TrimSpace(trimmed[:idx])
			value := trimmed[idx+1:]
			current.lines = append(current.lines, line{raw: trimmed, key: key, value: value, isKV: true})
			continue
		}

		// Unrecognized line shape: keep verbatim.
		current.lines = append(current.lines, line{raw: trimmed})
	}

	if len(e.groups) == 0 {
		if warn == "" {
			warn = "no group headers found"
		}
		return &Entry{}, warn
	}

	return e, warn
}

func (e *Entry) group(name string) *group {
	for _, g := range e.groups {
		if g.name == name {
			return g
		}
	}
	return nil
}

// Get returns the unlocalized value of key in group, and whether it was
// present.
func (e *Entry) Get(groupName, key string) (string, bool) {
	g := e.group(groupName)
	if g == nil {
		return "", false
	}
	for _, l := range g.lines {
		if l.isKV && l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// GetPrimary is Get(PrimaryGroup, key).
func (e *Entry) GetPrimary(key string) (string, bool) {
	return e.Get(PrimaryGroup, key)
}

// Set writes key=value into group, preserving its position if already
// present, appending otherwise. Setting an empty value removes the key
// entirely (spec.md §4.3: "setting a field to empty removes its key rather
// than writing key=").
func (e *Entry) Set(groupName, key, value string) {
	g := e.group(groupName)
	if g == nil {
		g = &group{name: groupName}
		e.groups = append(e.groups, g)
	}

	for i, l := range g.lines {
		if l.isKV && l.key == key {
			if value == "" {
				g.lines = append(g.lines[:i], g.lines[i+1:]...)
				return
			}
			g.lines[i] = line{raw: key + "=" + value, key: key, value: value, isKV: true}
			return
		}
	}

	if value == "" {
		return
	}
	g.lines = append(g.lines, line{raw: key + "=" + value, key: key, value: value, isKV: true})
}

// SetPrimary is Set(PrimaryGroup, key, value).
func (e *Entry) SetPrimary(key, value string) {
	e.Set(PrimaryGroup, key, value)
}

// EffectiveVersion implements spec.md §4.3: X-AppImage-Version if non-empty
// anywhere in the document (a fallback search across all groups handles
// non-canonical placements), else Version from the primary group.
func (e *Entry) EffectiveVersion() string {
	for _, g := range e.groups {
		for _, l := range g.lines {
			if l.isKV && l.key == KeyAppImageVersion && l.value != "" {
				return l.value
			}
		}
	}
	if v, ok := e.GetPrimary(KeyVersion); ok {
		return v
	}
	return ""
}

// Bool parses a primary-group boolean key ("true"/"false"), defaulting to
// false on absence or unparsable content.
func (e *Entry) Bool(key string) bool {
	v, ok := e.GetPrimary(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return b
}

// EnsureGroup appends an empty group named name if it does not already
// exist, returning whether it was created.
func (e *Entry) EnsureGroup(name string) bool {
	if e.group(name) != nil {
		return false
	}
	e.groups = append(e.groups, &group{name: name})
	return true
}

// HasGroup reports whether a group of the given name exists.
func (e *Entry) HasGroup(name string) bool {
	return e.group(name) != nil
}

// AppendActionsEntry adds action to the Actions= list of the primary group
// (creating it if absent), avoiding duplicates.
func (e *Entry) AppendActionsEntry(action string) {
	existing, _ := e.GetPrimary(KeyActions)
	parts := splitSemicolon(existing)
	for _, p := range parts {
		if p == action {
			return
		}
	}
	parts = append(parts, action)
	e.SetPrimary(KeyActions, strings.Join(parts, ";")+";")
}

func splitSemicolon(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Serialize renders the document back to text, preserving comments,
// blank lines, and localized key variants verbatim and in original order
// (spec.md §8: parse(serialize(e)).to_data() == e.to_data() on recognized
// keys).
func (e *Entry) Serialize() string {
	var b strings.Builder
	for i, g := range e.groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(g.name)
		b.WriteString("]\n")
		for _, l := range g.lines {
			b.WriteString(l.raw)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
