package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

func newTestEngine(t *testing.T) (*Engine, Dirs) {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		ApplicationsDir: filepath.Join(root, "applications"),
		InstalledDir:    filepath.Join(root, "installed"),
		IconsDir:        filepath.Join(root, "icons"),
		BinDir:          filepath.Join(root, "bin"),
	}
	reg := registry.New(filepath.Join(root, "registry.json"))
	t.Cleanup(reg.Close)
	return &Engine{Registry: reg, Dirs: dirs}, dirs
}

func TestUniquify(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "App")
	if got := uniquify(base); got != base {
		t.Fatalf("uniquify on fresh path = %q, want %q", got, base)
	}

	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := uniquify(base)
	want := filepath.Join(dir, "App-2")
	if got != want {
		t.Fatalf("uniquify on taken path = %q, want %q", got, want)
	}
}

func TestRenameToSlug(t *testing.T) {
	e, _ := newTestEngine(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "Original Name")
	if err := os.WriteFile(src, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	renamed, err := e.renameToSlug(src, "original_name", registry.ModePortable)
	if err != nil {
		t.Fatalf("renameToSlug: %v", err)
	}
	if filepath.Base(renamed) != "original_name" {
		t.Fatalf("renamed base = %q, want original_name", filepath.Base(renamed))
	}
	if _, err := os.Stat(renamed); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
}

func TestRenameToSlugNoopWhenAlreadyNamed(t *testing.T) {
	e, _ := newTestEngine(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "already_slug")
	if err := os.WriteFile(src, []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	renamed, err := e.renameToSlug(src, "already_slug", registry.ModePortable)
	if err != nil {
		t.Fatalf("renameToSlug: %v", err)
	}
	if renamed != src {
		t.Fatalf("renameToSlug moved an already-correctly-named path: got %q", renamed)
	}
}

func TestCapturePreservedFields(t *testing.T) {
	e, dirs := newTestEngine(t)
	if err := os.MkdirAll(dirs.ApplicationsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	desktopPath := filepath.Join(dirs.ApplicationsDir, "appmanager-foo.desktop")
	data := "[Desktop Entry]\n" +
		"Name=Foo\n" +
		"Exec=\"/opt/foo/foo\"\n" +
		"X-AppImage-Homepage=https://example.com\n" +
		"Keywords=editor;text;\n"
	if err := os.WriteFile(desktopPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &registry.Record{ID: "abc", Name: "Foo", DesktopFile: desktopPath}
	preserved, err := e.capturePreservedFields(rec)
	if err != nil {
		t.Fatalf("capturePreservedFields: %v", err)
	}
	if preserved["X-AppImage-Homepage"] != "https://example.com" {
		t.Fatalf("homepage not preserved: %+v", preserved)
	}
	if preserved["Keywords"] != "editor;text;" {
		t.Fatalf("keywords not preserved: %+v", preserved)
	}
	if _, ok := preserved["Terminal"]; ok {
		t.Fatalf("unset key should not appear in preserved map: %+v", preserved)
	}
}

func TestUninstallPortableRemovesArtifactsAndUnregisters(t *testing.T) {
	e, dirs := newTestEngine(t)
	if err := os.MkdirAll(dirs.ApplicationsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dirs.IconsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	artifact := filepath.Join(dirs.ApplicationsDir, "App.AppImage")
	desktop := filepath.Join(dirs.ApplicationsDir, "appmanager-app.desktop")
	icon := filepath.Join(dirs.IconsDir, "app.png")
	for _, p := range []string{artifact, desktop, icon} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := &registry.Record{
		ID:            "digest123",
		Name:          "App",
		Mode:          registry.ModePortable,
		InstalledPath: artifact,
		DesktopFile:   desktop,
		IconPath:      icon,
	}
	e.Registry.Register(rec)

	if err := e.Uninstall(context.Background(), rec.ID); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	for _, p := range []string{artifact, desktop, icon} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err = %v", p, err)
		}
	}
	if e.Registry.IsInstalled(rec.ID) {
		t.Fatalf("record still registered after uninstall")
	}
}

func TestUninstallExtractedRemovesDirectoryRecursively(t *testing.T) {
	e, dirs := newTestEngine(t)
	if err := os.MkdirAll(dirs.InstalledDir, 0o755); err != nil {
		t.Fatal(err)
	}

	installed := filepath.Join(dirs.InstalledDir, "app")
	if err := os.MkdirAll(filepath.Join(installed, "usr", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installed, "usr", "bin", "app"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := &registry.Record{
		ID:            "digest456",
		Name:          "App",
		Mode:          registry.ModeExtracted,
		InstalledPath: installed,
	}
	e.Registry.Register(rec)

	if err := e.Uninstall(context.Background(), rec.ID); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(installed); !os.IsNotExist(err) {
		t.Fatalf("expected installed dir removed, stat err = %v", err)
	}
}

func TestUninstallNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Uninstall(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Uninstall on missing record = %v, want ErrNotFound", err)
	}
}

func TestResolveExecutablePortableAbsolute(t *testing.T) {
	e, _ := newTestEngine(t)
	got := e.resolveExecutable("/opt/app/app", "/opt/app.AppImage", registry.ModePortable, "")
	if got != "/opt/app/app" {
		t.Fatalf("resolveExecutable = %q, want /opt/app/app", got)
	}
}

func TestResolveExecutableExtractedAppRunWithBinHint(t *testing.T) {
	e, _ := newTestEngine(t)
	dir := t.TempDir()
	entryPoint := filepath.Join(dir, "AppRun")
	script := "#!/bin/sh\nHERE=\"$(dirname \"$(readlink -f \"${0}\")\")\"\nBIN=myapp\nexec \"$HERE/usr/bin/$BIN\"\n"
	if err := os.WriteFile(entryPoint, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	got := e.resolveExecutable("AppRun", "/installed/app", registry.ModeExtracted, entryPoint)
	want := filepath.Join("/installed/app", "usr", "bin", "myapp")
	if got != want {
		t.Fatalf("resolveExecutable = %q, want %q", got, want)
	}
}
