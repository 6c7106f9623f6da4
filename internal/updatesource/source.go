// Package updatesource classifies an update-URL string into one of the
// tagged Update Source variants (spec.md §3, §4.6): Forge (GitHub or
// GitLab), DirectURL, or Delta (direct zsync URL or forge-release zsync
// pattern). Modeled as a Go sum type via an interface with a private
// marker method, matching spec.md §9's guidance to replace dynamic
// dispatch with a tagged union the Update Engine pattern-matches over
// (via a type switch) rather than virtual methods.
package updatesource

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is the tagged union of update sources. Concrete types:
// DeltaDirect, DeltaForge, GitHubForge, GitLabForge, DirectURL.
type Source interface {
	isSource()
}

// DeltaDirect is a raw "zsync|<url>" source: payload is an absolute URL to
// a .zsync manifest.
type DeltaDirect struct {
	ManifestURL string
}

func (DeltaDirect) isSource() {}

// DeltaForge is a "gh-releases-zsync|owner|repo|tag|glob" source: resolved
// at probe time to the matching asset of the named GitHub release.
type DeltaForge struct {
	Owner string
	Repo  string
	Tag   string
	Glob  string
}

func (DeltaForge) isSource() {}

// GitHubForge targets a GitHub repository's releases API.
type GitHubForge struct {
	Owner string
	Repo  string
}

func (GitHubForge) isSource() {}

// APIBase returns the releases-list endpoint (spec.md §4.6).
func (g GitHubForge) APIBase() string {
	return fmt.Sprintf("https://api.github.com/repos/%s/%s/releases?per_page=10", g.Owner, g.Repo)
}

// GitLabForge targets a GitLab (or GitLab-compatible) project's releases
// API.
type GitLabForge struct {
	Scheme      string
	Host        string
	ProjectPath string // URL-decoded project path, e.g. "group/sub/project"
}

func (GitLabForge) isSource() {}

// APIBase returns the releases-list endpoint (spec.md §4.6).
func (g GitLabForge) APIBase() string {
	encoded := url.QueryEscape(g.ProjectPath)
	return fmt.Sprintf("%s://%s/api/v4/projects/%s/releases?per_page=10", g.Scheme, g.Host, encoded)
}

// DirectURL is a plain downloadable asset URL with no forge/delta
// semantics.
type DirectURL struct {
	URL string
}

func (DirectURL) isSource() {}

// Classify parses raw per spec.md §4.6's classification rules, tried in
// order: DeltaDirect, DeltaForge, GitHub Forge, GitLab Forge, DirectURL.
func Classify(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("updatesource: empty update URL")
	}

	if strings.HasPrefix(raw, "zsync|") {
		return DeltaDirect{ManifestURL: strings.TrimPrefix(raw, "zsync|")}, nil
	}

	if strings.HasPrefix(raw, "gh-releases-zsync|") {
		parts := strings.Split(raw, "|")
		if len(parts) != 5 {
			return nil, fmt.Errorf("updatesource: malformed gh-releases-zsync pattern %q", raw)
		}
		return DeltaForge{Owner: parts[1], Repo: parts[2], Tag: parts[3], Glob: parts[4]}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("updatesource: parse %q: %w", raw, err)
	}

	host := strings.ToLower(u.Host)

	if host == "github.com" || strings.HasSuffix(host, ".github.com") {
		owner, repo, ok := ownerRepoFromPath(u.Path)
		if !ok {
			return nil, fmt.Errorf("updatesource: cannot derive owner/repo from %q", raw)
		}
		return GitHubForge{Owner: owner, Repo: repo}, nil
	}

	if strings.Contains(host, "gitlab") || strings.Contains(u.Path, "/-/") {
		projectPath, ok := gitlabProjectPath(u.Path)
		if !ok {
			return nil, fmt.Errorf("updatesource: cannot derive project path from %q", raw)
		}
		scheme := u.Scheme
		if scheme == "" {
			scheme = "https"
		}
		return GitLabForge{Scheme: scheme, Host: u.Host, ProjectPath: projectPath}, nil
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		return DirectURL{URL: raw}, nil
	}

	return nil, fmt.Errorf("updatesource: unrecognized update URL %q", raw)
}

// ownerRepoFromPath extracts the first two non-empty path segments of a
// github.com URL path as owner/repo.
func ownerRepoFromPath(path string) (owner, repo string, ok bool) {
	segs := splitNonEmpty(path)
	if len(segs) < 2 {
		return "", "", false
	}
	return segs[0], segs[1], true
}

// gitlabProjectPath extracts the project path portion of a GitLab URL:
// everything before a "/-/" marker, or before a trailing "/releases" if no
// marker is present.
func gitlabProjectPath(path string) (string, bool) {
	path = strings.Trim(path, "/")
	if idx := strings.Index(path, "/-/"); idx >= 0 {
		return path[:idx], path != ""
	}
	if strings.HasSuffix(path, "/releases") {
		return strings.TrimSuffix(path, "/releases"), true
	}
	return path, path != ""
}

func splitNonEmpty(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Normalize returns the canonical project base for any URL from the
// classified families: release/download/artifact suffixes are stripped,
// ".zsync" is stripped from delta URLs, and a gh-releases-zsync prefix
// resolves to its github.com project URL (spec.md §4.6). Idempotent:
// Normalize(Normalize(u)) == Normalize(u) (spec.md §8).
func Normalize(raw string) (string, error) {
	src, err := Classify(raw)
	if err != nil {
		return "", err
	}

	switch s := src.(type) {
	case DeltaDirect:
		return normalizeDirectOrDelta(strings.TrimSuffix(s.ManifestURL, ".zsync"))
	case DeltaForge:
		return fmt.Sprintf("https://github.com/%s/%s", s.Owner, s.Repo), nil
	case GitHubForge:
		return fmt.Sprintf("https://github.com/%s/%s", s.Owner, s.Repo), nil
	case GitLabForge:
		return fmt.Sprintf("%s://%s/%s", s.Scheme, s.Host, s.ProjectPath), nil
	case DirectURL:
		return normalizeDirectOrDelta(s.URL)
	default:
		return "", fmt.Errorf("updatesource: unknown source type %T", src)
	}
}

// normalizeDirectOrDelta strips a trailing ".zsync", the query and
// fragment, and every path segment from the first well-known
// release/download/artifacts marker on, yielding a stable base for
// repeated-normalization idempotence. A path with no marker segment keeps
// all its segments, including a final filename.
func normalizeDirectOrDelta(raw string) (string, error) {
	raw = strings.TrimSuffix(raw, ".zsync")

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("updatesource: parse %q: %w", raw, err)
	}

	segs := splitNonEmpty(u.Path)
	for _, marker := range []string{"releases", "download", "artifacts", "-"} {
		for i, seg := range segs {
			if seg == marker {
				segs = segs[:i]
				break
			}
		}
	}

	u.Path = "/" + strings.Join(segs, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}
