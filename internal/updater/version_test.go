package updater

import "testing"

func TestNormalizeVersion(t *testing.T) {
	cases := []struct{ in, want string }{
		{"v1.2.3", "1.2.3"},
		{"V2.0", "2.0"},
		{"beta-1.5.0-rc1", "1.5.0"},
		{"1.0", "1.0"},
	}
	for _, c := range cases {
		if got := NormalizeVersion(c.in); got != c.want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.1", "1.0", 1},
		{"1.0", "1.1", -1},
		{"1.2", "1.2.1", -1},
		{"v1.2.0", "1.2", 0},
	}
	for _, c := range cases {
		if got := CompareVersions(c.a, c.b); got != c.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestCompareVersionsSymmetric(t *testing.T) {
	pairs := [][2]string{{"1.0", "2.0"}, {"1.2.3", "1.2"}, {"v3.0", "3.0.0"}}
	for _, p := range pairs {
		a, b := CompareVersions(p[0], p[1]), CompareVersions(p[1], p[0])
		if a != -b {
			t.Errorf("CompareVersions(%q,%q)=%d not symmetric with CompareVersions(%q,%q)=%d", p[0], p[1], a, p[1], p[0], b)
		}
	}
}

func TestCompareVersionsSelfEqual(t *testing.T) {
	for _, v := range []string{"1.0.0", "v2.3", "beta-4.5.6"} {
		if got := CompareVersions(v, v); got != 0 {
			t.Errorf("CompareVersions(%q, %q) = %d, want 0", v, v, got)
		}
	}
}
