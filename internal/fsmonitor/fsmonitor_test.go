package fsmonitor

import (
	"path/filepath"
	"testing"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

func TestHasPathPrefix(t *testing.T) {
	cases := []struct {
		prefix, path string
		want         bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c", true},
		{"/a/b", "/a/bc", false},
		{"/a/b", "/a/c", false},
		{"", "/a/b", false},
	}
	for _, c := range cases {
		if got := hasPathPrefix(c.prefix, c.path); got != c.want {
			t.Errorf("hasPathPrefix(%q, %q) = %v, want %v", c.prefix, c.path, got, c.want)
		}
	}
}

func TestMatchesRecord(t *testing.T) {
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"))
	t.Cleanup(reg.Close)

	reg.Register(&registry.Record{ID: "1", Name: "Portable", Mode: registry.ModePortable, InstalledPath: "/apps/portable.AppImage"})
	reg.Register(&registry.Record{ID: "2", Name: "Extracted", Mode: registry.ModeExtracted, InstalledPath: "/apps/.installed/extracted"})

	m := &Monitor{registry: reg}

	if !m.matchesRecord("/apps/portable.AppImage") {
		t.Error("expected exact-match PORTABLE path to match")
	}
	if !m.matchesRecord("/apps/.installed/extracted") {
		t.Error("expected exact-match EXTRACTED root to match")
	}
	if !m.matchesRecord("/apps/.installed/extracted/usr/bin/app") {
		t.Error("expected nested EXTRACTED path to match via prefix")
	}
	if m.matchesRecord("/apps/unrelated.AppImage") {
		t.Error("unrelated path should not match")
	}
}
