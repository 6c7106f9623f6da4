package updatesource

import "testing"

func TestClassifyDeltaDirect(t *testing.T) {
	src, err := Classify("zsync|https://example.com/App.AppImage.zsync")
	if err != nil {
		t.Fatal(err)
	}
	d, ok := src.(DeltaDirect)
	if !ok || d.ManifestURL != "https://example.com/App.AppImage.zsync" {
		t.Fatalf("got %#v", src)
	}
}

func TestClassifyDeltaForge(t *testing.T) {
	src, err := Classify("gh-releases-zsync|foo|bar|v1.0|Foo-*-x86_64.AppImage.zsync")
	if err != nil {
		t.Fatal(err)
	}
	d, ok := src.(DeltaForge)
	if !ok || d.Owner != "foo" || d.Repo != "bar" || d.Tag != "v1.0" || d.Glob != "Foo-*-x86_64.AppImage.zsync" {
		t.Fatalf("got %#v", src)
	}
}

func TestClassifyGitHub(t *testing.T) {
	src, err := Classify("https://github.com/foo/bar/releases/download/v1.0/Foo-x86_64.AppImage")
	if err != nil {
		t.Fatal(err)
	}
	g, ok := src.(GitHubForge)
	if !ok || g.Owner != "foo" || g.Repo != "bar" {
		t.Fatalf("got %#v", src)
	}
	want := "https://api.github.com/repos/foo/bar/releases?per_page=10"
	if got := g.APIBase(); got != want {
		t.Fatalf("APIBase = %q, want %q", got, want)
	}
}

func TestClassifyGitLab(t *testing.T) {
	src, err := Classify("https://gitlab.com/group/sub/project/-/releases/v1/downloads/App.AppImage")
	if err != nil {
		t.Fatal(err)
	}
	g, ok := src.(GitLabForge)
	if !ok || g.ProjectPath != "group/sub/project" {
		t.Fatalf("got %#v", src)
	}
}

func TestClassifyDirectURL(t *testing.T) {
	src, err := Classify("https://example.com/files/App.AppImage")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(DirectURL); !ok {
		t.Fatalf("got %#v", src)
	}
}

func TestNormalizeGitLab(t *testing.T) {
	got, err := Normalize("https://gitlab.com/group/sub/project/-/releases/v1/downloads/App.AppImage")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://gitlab.com/group/sub/project"
	if got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	urls := []string{
		"https://gitlab.com/group/sub/project/-/releases/v1/downloads/App.AppImage",
		"https://github.com/foo/bar/releases/download/v1.0/Foo-x86_64.AppImage",
		"https://example.com/releases/download/v1/App.AppImage",
		"zsync|https://example.com/App.AppImage.zsync",
		"gh-releases-zsync|foo|bar|v1.0|Foo-*-x86_64.AppImage.zsync",
	}
	for _, u := range urls {
		once, err := Normalize(u)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", u, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)): %v", u, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", u, once, twice)
		}
	}
}
