// Package registry is the single source of truth mapping bundles to
// on-disk installation state. It persists a document of installation
// records and history entries, detects and loads the legacy flat-array
// format, and reconciles its state against the filesystem. The
// version-detection-then-decode shape and the atomic write discipline are
// grounded on the teacher's pkg/migrate/migrate.go (DetectVersion,
// mgWriteConfig's temp-file-then-rename) and pkg/daemon/health.go's
// WriteHealthFile; the in-memory Register/Get/List pattern draws on
// pkg/collectors/registry.go's thread-safe Registry.
package registry

import "encoding/json"

// InstallMode is PORTABLE or EXTRACTED (spec.md §3).
type InstallMode string

const (
	ModePortable  InstallMode = "portable"
	ModeExtracted InstallMode = "extracted"
)

// ClearedValue is the in-memory-only sentinel marking a user-editable
// field as explicitly unset. It is never serialized: a field holding this
// value is written to disk as the Go zero value (empty string), resolving
// SPEC_FULL.md's supplemented-feature #2 in favor of no on-disk
// field-presence distinction.
const ClearedValue = "\x00CLEARED\x00"

// Record is the Installation Record (spec.md §3).
type Record struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Mode   InstallMode `json:"mode"`

	SourceChecksum string `json:"source_checksum"`
	SourcePath     string `json:"source_path"`
	InstalledPath  string `json:"installed_path"`
	DesktopFile    string `json:"desktop_file"`
	IconPath       string `json:"icon_path"`
	BinSymlink     string `json:"bin_symlink,omitempty"`

	InstalledAt int64  `json:"installed_at"` // unix ms
	UpdatedAt   int64  `json:"updated_at,omitempty"`
	Version     string `json:"version,omitempty"`

	// Update-probe cache fields (spec.md §3, §4.7).
	ETag            string `json:"etag,omitempty"`
	LastModified    string `json:"last_modified,omitempty"`
	ContentLength   string `json:"content_length,omitempty"`
	LastReleaseTag  string `json:"last_release_tag,omitempty"`
	ZsyncUpdateInfo string `json:"zsync_update_info,omitempty"`

	// Paired original/custom values for user-editable launcher fields
	// (spec.md §3). The effective value is custom if non-empty and not
	// ClearedValue, else original.
	OriginalExecArgs      string `json:"original_exec_args,omitempty"`
	CustomExecArgs        string `json:"custom_exec_args,omitempty"`
	OriginalKeywords      string `json:"original_keywords,omitempty"`
	CustomKeywords        string `json:"custom_keywords,omitempty"`
	OriginalWMClass       string `json:"original_wm_class,omitempty"`
	CustomWMClass         string `json:"custom_wm_class,omitempty"`
	OriginalDisplayedName string `json:"original_displayed_name,omitempty"`
	CustomDisplayedName   string `json:"custom_displayed_name,omitempty"`
	OriginalUpdateLink    string `json:"original_update_link,omitempty"`
	CustomUpdateLink      string `json:"custom_update_link,omitempty"`
	OriginalHomepage      string `json:"original_homepage,omitempty"`
	CustomHomepage        string `json:"custom_homepage,omitempty"`
}

// MarshalJSON clears any custom_* field holding ClearedValue to the Go
// zero value before encoding, so the sentinel itself never reaches disk
// (spec.md §3 resolution: a cleared field is indistinguishable on disk
// from one that was never set). recordAlias avoids infinite recursion
// through Record's own MarshalJSON.
func (r Record) MarshalJSON() ([]byte, error) {
	type recordAlias Record
	cp := recordAlias(r)
	clear := func(s *string) {
		if *s == ClearedValue {
			*s = ""
		}
	}
	clear(&cp.CustomExecArgs)
	clear(&cp.CustomKeywords)
	clear(&cp.CustomWMClass)
	clear(&cp.CustomDisplayedName)
	clear(&cp.CustomUpdateLink)
	clear(&cp.CustomHomepage)
	return json.Marshal(cp)
}

// effective returns custom if it is non-empty and not the cleared
// sentinel, else original (spec.md §3 invariant).
func effective(original, custom string) string {
	if custom != "" && custom != ClearedValue {
		return custom
	}
	return original
}

func (r *Record) EffectiveExecArgs() string    { return effective(r.OriginalExecArgs, r.CustomExecArgs) }
func (r *Record) EffectiveKeywords() string    { return effective(r.OriginalKeywords, r.CustomKeywords) }
func (r *Record) EffectiveWMClass() string     { return effective(r.OriginalWMClass, r.CustomWMClass) }
func (r *Record) EffectiveDisplayedName() string {
	return effective(r.OriginalDisplayedName, r.CustomDisplayedName)
}
func (r *Record) EffectiveUpdateLink() string { return effective(r.OriginalUpdateLink, r.CustomUpdateLink) }
func (r *Record) EffectiveHomepage() string   { return effective(r.OriginalHomepage, r.CustomHomepage) }

// HasCustomValues reports whether any custom_* field is set to a
// non-cleared, non-empty value (used to decide whether to preserve a
// history entry on uninstall, spec.md §8).
func (r *Record) HasCustomValues() bool {
	for _, c := range []string{
		r.CustomExecArgs, r.CustomKeywords, r.CustomWMClass,
		r.CustomDisplayedName, r.CustomUpdateLink, r.CustomHomepage,
	} {
		if c != "" && c != ClearedValue {
			return true
		}
	}
	return false
}

// HistoryEntry is the custom-fields subset retained after uninstall,
// keyed by lower-cased display name (spec.md §3). It is distinguished in
// the persisted document by the absence of an "id" field.
type HistoryEntry struct {
	Name string `json:"name"`

	CustomExecArgs        string `json:"custom_exec_args,omitempty"`
	CustomKeywords        string `json:"custom_keywords,omitempty"`
	CustomWMClass         string `json:"custom_wm_class,omitempty"`
	CustomDisplayedName   string `json:"custom_displayed_name,omitempty"`
	CustomUpdateLink      string `json:"custom_update_link,omitempty"`
	CustomHomepage        string `json:"custom_homepage,omitempty"`
}

// MarshalJSON applies the same ClearedValue-to-zero-value rule as
// Record.MarshalJSON.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	type historyAlias HistoryEntry
	cp := historyAlias(h)
	clear := func(s *string) {
		if *s == ClearedValue {
			*s = ""
		}
	}
	clear(&cp.CustomExecArgs)
	clear(&cp.CustomKeywords)
	clear(&cp.CustomWMClass)
	clear(&cp.CustomDisplayedName)
	clear(&cp.CustomUpdateLink)
	clear(&cp.CustomHomepage)
	return json.Marshal(cp)
}

// historyFromRecord captures a record's custom values into a history
// entry, or returns (nil, false) if it has none worth preserving.
func historyFromRecord(r *Record) (*HistoryEntry, bool) {
	if !r.HasCustomValues() {
		return nil, false
	}
	return &HistoryEntry{
		Name:                r.Name,
		CustomExecArgs:      r.CustomExecArgs,
		CustomKeywords:      r.CustomKeywords,
		CustomWMClass:       r.CustomWMClass,
		CustomDisplayedName: r.CustomDisplayedName,
		CustomUpdateLink:    r.CustomUpdateLink,
		CustomHomepage:      r.CustomHomepage,
	}, true
}

// applyHistory overlays a history entry's custom values onto a fresh
// record being (re)installed under the same name.
func applyHistory(r *Record, h *HistoryEntry) {
	r.CustomExecArgs = h.CustomExecArgs
	r.CustomKeywords = h.CustomKeywords
	r.CustomWMClass = h.CustomWMClass
	r.CustomDisplayedName = h.CustomDisplayedName
	r.CustomUpdateLink = h.CustomUpdateLink
	r.CustomHomepage = h.CustomHomepage
}
