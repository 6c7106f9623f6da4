package updater

import "testing"

func TestSelectAssetArchMatch(t *testing.T) {
	assets := []Asset{
		{Name: "Foo-x86_64.AppImage"},
		{Name: "Foo-aarch64.AppImage"},
	}
	got, ok := SelectAsset(assets, "x86_64")
	if !ok || got.Name != "Foo-x86_64.AppImage" {
		t.Fatalf("SelectAsset = %+v, %v", got, ok)
	}
}

func TestSelectAssetNoArchTokenOnX86(t *testing.T) {
	assets := []Asset{{Name: "App-1.AppImage"}, {Name: "App-2.AppImage"}}
	got, ok := SelectAsset(assets, "x86_64")
	if !ok || got.Name != "App-1.AppImage" {
		t.Fatalf("SelectAsset = %+v, %v, want first no-arch asset", got, ok)
	}

	_, ok = SelectAsset(assets, "aarch64")
	if ok {
		t.Fatal("expected MISSING_ASSET (no match) on aarch64 host for arch-less assets")
	}
}

func TestSelectAssetSingleCandidate(t *testing.T) {
	assets := []Asset{{Name: "OnlyOne.AppImage"}}
	got, ok := SelectAsset(assets, "armv7l")
	if !ok || got.Name != "OnlyOne.AppImage" {
		t.Fatalf("SelectAsset = %+v, %v", got, ok)
	}
}

func TestSelectAssetNoAppImageAssets(t *testing.T) {
	assets := []Asset{{Name: "readme.txt"}}
	if _, ok := SelectAsset(assets, "x86_64"); ok {
		t.Fatal("expected no selectable asset among non-.AppImage files")
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"Foo-*-x86_64.AppImage", "Foo-1.0-x86_64.AppImage", true},
		{"Foo-*-x86_64.AppImage", "Foo-1.0-aarch64.AppImage", false},
		{"exact.txt", "exact.txt", true},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.name); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
