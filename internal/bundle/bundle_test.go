package bundle

import "testing"

func TestDisplayName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/tmp/HelloWorld-1.0-x86_64.AppImage", "HelloWorld 1 0 x86 64"},
		{"/tmp/hello_world.appimage", "Hello world"},
		{"plain", "Plain"},
		{"", ""},
	}
	for _, c := range cases {
		if got := DisplayName(c.path); got != c.want {
			t.Errorf("DisplayName(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestSanitizeBasename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello World", "Hello-World"},
		{"foo_bar-1.0", "foo_bar-1-0"},
		{"a/b\\c", "a-b-c"},
	}
	for _, c := range cases {
		if got := SanitizeBasename(c.in); got != c.want {
			t.Errorf("SanitizeBasename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestArchCompatible(t *testing.T) {
	cases := []struct {
		bundle, host string
		want         bool
	}{
		{"x86_64", "x86_64", true},
		{"x86_64", "amd64", true},
		{"amd64", "x86_64", true},
		{"aarch64", "arm64", true},
		{"armv7l", "x86_64", false},
		{"", "x86_64", false},
	}
	for _, c := range cases {
		if got := ArchCompatible(c.bundle, c.host); got != c.want {
			t.Errorf("ArchCompatible(%q, %q) = %v, want %v", c.bundle, c.host, got, c.want)
		}
	}
}

func TestInspectMissing(t *testing.T) {
	_, err := Inspect("/nonexistent/path/to/bundle.AppImage")
	if err != ErrNotFound {
		t.Fatalf("Inspect on missing file: got %v, want ErrNotFound", err)
	}
}
