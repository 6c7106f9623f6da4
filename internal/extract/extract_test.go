package extract

import "testing"

func TestHasLauncherIconEntryPoint(t *testing.T) {
	entries := []string{
		"squashfs-root",
		"squashfs-root/hello.desktop",
		"squashfs-root/hello.png",
		"squashfs-root/AppRun",
		"squashfs-root/usr/bin/hello",
	}
	if !hasLauncher(entries) {
		t.Error("expected hasLauncher to find hello.desktop")
	}
	if !hasIcon(entries) {
		t.Error("expected hasIcon to find hello.png")
	}
	if !hasEntryPoint(entries) {
		t.Error("expected hasEntryPoint to find AppRun")
	}
}

func TestHasLauncherIconEntryPointMissing(t *testing.T) {
	entries := []string{"squashfs-root", "squashfs-root/usr/bin/hello"}
	if hasLauncher(entries) || hasIcon(entries) || hasEntryPoint(entries) {
		t.Error("expected no matches in a bundle lacking launcher/icon/AppRun")
	}
}

func TestNormalizeInBundlePath(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		wantOk   bool
	}{
		{"/usr/bin/hello", "usr/bin/hello", true},
		{"usr/bin/hello", "usr/bin/hello", true},
		{"../../etc/passwd", "", false},
		{"..", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeInBundlePath(c.in)
		if ok != c.wantOk || (ok && got != c.want) {
			t.Errorf("normalizeInBundlePath(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.wantOk)
		}
	}
}
