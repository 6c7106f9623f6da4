package launcher

import "testing"

const sampleDesktop = `[Desktop Entry]
# a comment
Name=Hello World
Name[fr]=Bonjour le monde
Exec=hello %U
Icon=hello
Version=1.0
Terminal=false
`

func TestParseGetSet(t *testing.T) {
	e, warn := Parse(sampleDesktop)
	if warn != "" {
		t.Fatalf("unexpected warning: %q", warn)
	}
	if v, ok := e.GetPrimary(KeyName); !ok || v != "Hello World" {
		t.Fatalf("GetPrimary(Name) = %q, %v", v, ok)
	}
	if v, ok := e.Get(PrimaryGroup, "Name[fr]"); !ok || v != "Bonjour le monde" {
		t.Fatalf("localized Name[fr] = %q, %v", v, ok)
	}
}

func TestRoundTrip(t *testing.T) {
	e, _ := Parse(sampleDesktop)
	out := e.Serialize()
	e2, warn := Parse(out)
	if warn != "" {
		t.Fatalf("unexpected warning on reparse: %q", warn)
	}
	for _, key := range []string{KeyName, KeyExec, KeyIcon, KeyVersion, KeyTerminal} {
		a, _ := e.GetPrimary(key)
		b, _ := e2.GetPrimary(key)
		if a != b {
			t.Errorf("round-trip mismatch for %s: %q != %q", key, a, b)
		}
	}
}

func TestSetEmptyRemovesKey(t *testing.T) {
	e, _ := Parse(sampleDesktop)
	e.SetPrimary(KeyVersion, "")
	if _, ok := e.GetPrimary(KeyVersion); ok {
		t.Fatalf("expected Version key removed after setting to empty")
	}
	if strings := e.Serialize(); containsLine(strings, "Version=") {
		t.Fatalf("serialized output still contains a Version= line:\n%s", strings)
	}
}

func containsLine(haystack, needle string) bool {
	for _, l := range splitLines(haystack) {
		if l == needle || (len(l) >= len(needle) && l[:len(needle)] == needle) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func TestEffectiveVersion(t *testing.T) {
	e, _ := Parse(sampleDesktop)
	if v := e.EffectiveVersion(); v != "1.0" {
		t.Fatalf("EffectiveVersion() = %q, want 1.0 (no X-AppImage-Version present)", v)
	}

	e.SetPrimary(KeyAppImageVersion, "2.0")
	if v := e.EffectiveVersion(); v != "2.0" {
		t.Fatalf("EffectiveVersion() = %q, want 2.0", v)
	}
}

func TestAppendActionsEntry(t *testing.T) {
	e, _ := Parse(sampleDesktop)
	e.AppendActionsEntry("Uninstall")
	v, _ := e.GetPrimary(KeyActions)
	if v != "Uninstall;" {
		t.Fatalf("Actions = %q, want Uninstall;", v)
	}
	e.AppendActionsEntry("Uninstall")
	v, _ = e.GetPrimary(KeyActions)
	if v != "Uninstall;" {
		t.Fatalf("Actions after duplicate append = %q, want Uninstall; (no dup)", v)
	}
}

func TestExecFirstToken(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"My App" --flag`, "My App"},
		{"hello %U", "hello"},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExecFirstToken(c.in); got != c.want {
			t.Errorf("ExecFirstToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStripAppdirPrefix(t *testing.T) {
	cases := []struct{ in, want string }{
		{"$APPDIR/usr/bin/app", "usr/bin/app"},
		{"${APPDIR}/usr/bin/app", "usr/bin/app"},
		{"/usr/bin/app", "/usr/bin/app"},
	}
	for _, c := range cases {
		if got := StripAppdirPrefix(c.in); got != c.want {
			t.Errorf("StripAppdirPrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsAppRunToken(t *testing.T) {
	if !IsAppRunToken("AppRun") || !IsAppRunToken("./AppRun.sh") || !IsAppRunToken("APPRUN") {
		t.Fatal("expected AppRun variants to be detected")
	}
	if IsAppRunToken("hello") {
		t.Fatal("did not expect hello to be detected as AppRun")
	}
}

func TestParseBinAssignment(t *testing.T) {
	script := "#!/bin/sh\nexport SOMETHING=1\nBIN=\"$APPDIR/usr/bin/hello\"\nexec \"$BIN\" \"$@\"\n"
	bin, ok := ParseBinAssignment(script)
	if !ok || bin != "hello" {
		t.Fatalf("ParseBinAssignment = %q, %v, want hello, true", bin, ok)
	}
}

func TestResolveExecPath(t *testing.T) {
	if got := ResolveExecPath("/abs/path", "/installed/dir", "/installed/path"); got != "/abs/path" {
		t.Fatalf("ResolveExecPath absolute = %q", got)
	}
	if got := ResolveExecPath("hello", "/installed/dir", "/installed/path"); got != "/installed/dir/hello" {
		t.Fatalf("ResolveExecPath relative+dir = %q", got)
	}
	if got := ResolveExecPath("hello", "", "/installed/path"); got != "/installed/path" {
		t.Fatalf("ResolveExecPath fallback = %q", got)
	}
}
