package updater

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
	"gitlab.com/tinyland/lab/app-manager/internal/updatesource"
)

// SkipReason enumerates why a probe found no actionable update (spec.md
// §4.7). Zero value SkipNone means an update is available or the probe
// failed outright.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipNoUpdateURL        SkipReason = "NO_UPDATE_URL"
	SkipUnsupportedSource  SkipReason = "UNSUPPORTED_SOURCE"
	SkipAlreadyCurrent     SkipReason = "ALREADY_CURRENT"
	SkipMissingAsset       SkipReason = "MISSING_ASSET"
	SkipAPIUnavailable     SkipReason = "API_UNAVAILABLE"
	SkipNoTrackingHeaders  SkipReason = "NO_TRACKING_HEADERS"
)

// ProbeResult is the outcome of probing a single record for updates
// (spec.md §4.7).
type ProbeResult struct {
	Record            *registry.Record
	HasUpdate         bool
	AvailableVersion  string
	SkipReason        SkipReason
	Message           string

	selectedAsset Asset
	newFingerprint string
	newTag         string
}

// ReleaseInfo is an upstream release description (spec.md §3).
type ReleaseInfo struct {
	Tag     string
	Version string
	Assets  []Asset
}

// Prober resolves upstream release/fingerprint information for a record's
// update source. Splitting this out from Engine keeps the HTTP/GitHub
// client plumbing independently testable.
type Prober struct {
	HTTPClient *http.Client
	GitHub     *github.Client
	HostArch   string
}

// NewProber builds a Prober sharing a single *http.Client across all
// workers (spec.md §5: "HTTP session — one per Update Engine instance,
// used by all worker threads; must be thread-safe" -- *http.Client is
// goroutine-safe per its documented contract).
func NewProber(hostArch string) *Prober {
	client := &http.Client{Timeout: 30 * time.Second}
	return &Prober{
		HTTPClient: client,
		GitHub:     github.NewClient(client),
		HostArch:   hostArch,
	}
}

// Probe runs the per-source-type probe algorithm of spec.md §4.7 against a
// single record.
func (p *Prober) Probe(ctx context.Context, rec *registry.Record) ProbeResult {
	updateURL := rec.EffectiveUpdateLink()
	if updateURL == "" {
		return ProbeResult{Record: rec, SkipReason: SkipNoUpdateURL, Message: "no update URL configured"}
	}

	src, err := updatesource.Classify(updateURL)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipUnsupportedSource, Message: err.Error()}
	}

	switch s := src.(type) {
	case updatesource.GitHubForge:
		return p.probeGitHubForge(ctx, rec, s)
	case updatesource.GitLabForge:
		return p.probeGitLabForge(ctx, rec, s)
	case updatesource.DeltaForge:
		return p.probeDeltaForge(ctx, rec, s)
	case updatesource.DeltaDirect:
		return p.probeDirectURL(ctx, rec, s.ManifestURL)
	case updatesource.DirectURL:
		return p.probeDirectURL(ctx, rec, s.URL)
	default:
		return ProbeResult{Record: rec, SkipReason: SkipUnsupportedSource, Message: fmt.Sprintf("unhandled source type %T", src)}
	}
}

func (p *Prober) probeGitHubForge(ctx context.Context, rec *registry.Record, src updatesource.GitHubForge) ProbeResult {
	releases, _, err := p.GitHub.Repositories.ListReleases(ctx, src.Owner, src.Repo, &github.ListOptions{PerPage: 10})
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}

	var releaseInfos []ReleaseInfo
	for _, r := range releases {
		var assets []Asset
		for _, a := range r.Assets {
			assets = append(assets, Asset{Name: a.GetName(), URL: a.GetBrowserDownloadURL()})
		}
		releaseInfos = append(releaseInfos, ReleaseInfo{
			Tag:     r.GetTagName(),
			Version: NormalizeVersion(r.GetTagName()),
			Assets:  assets,
		})
	}

	return p.evaluateForgeReleases(rec, releaseInfos)
}

func (p *Prober) probeGitLabForge(ctx context.Context, rec *registry.Record, src updatesource.GitLabForge) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.APIBase(), nil)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: fmt.Sprintf("gitlab API status %d", resp.StatusCode)}
	}

	releases, err := decodeGitLabReleases(resp)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}

	return p.evaluateForgeReleases(rec, releases)
}

// evaluateForgeReleases implements the common Forge-source logic of
// spec.md §4.7: pick the first release with a selectable asset (else the
// first release), then compare its version against the record's stored
// version.
func (p *Prober) evaluateForgeReleases(rec *registry.Record, releases []ReleaseInfo) ProbeResult {
	if len(releases) == 0 {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: "no releases returned"}
	}

	var chosen *ReleaseInfo
	var chosenAsset Asset
	for i := range releases {
		if asset, ok := SelectAsset(releases[i].Assets, p.HostArch); ok {
			chosen = &releases[i]
			chosenAsset = asset
			break
		}
	}
	if chosen == nil {
		chosen = &releases[0]
	}

	current := rec.Version
	if current == "" || chosen.Version == "" {
		if chosen.Tag == rec.LastReleaseTag {
			return ProbeResult{Record: rec, SkipReason: SkipAlreadyCurrent, Message: "tag unchanged"}
		}
	} else if CompareVersions(chosen.Version, current) <= 0 {
		return ProbeResult{Record: rec, SkipReason: SkipAlreadyCurrent, Message: "no newer version"}
	}

	if chosenAsset.URL == "" {
		return ProbeResult{Record: rec, SkipReason: SkipMissingAsset, Message: "no asset matched this host's architecture"}
	}

	return ProbeResult{
		Record:           rec,
		HasUpdate:        true,
		AvailableVersion: chosen.Version,
		selectedAsset:    chosenAsset,
		newTag:           chosen.Tag,
	}
}

func (p *Prober) probeDeltaForge(ctx context.Context, rec *registry.Record, src updatesource.DeltaForge) ProbeResult {
	release, _, err := p.GitHub.Repositories.GetReleaseByTag(ctx, src.Owner, src.Repo, src.Tag)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}

	var manifestURL string
	for _, a := range release.Assets {
		if globMatch(src.Glob, a.GetName()) {
			manifestURL = a.GetBrowserDownloadURL()
			break
		}
	}
	if manifestURL == "" {
		return ProbeResult{Record: rec, SkipReason: SkipMissingAsset, Message: "no asset matched delta glob"}
	}

	tag := strings.SplitN(src.Tag, "@", 2)[0]
	version := NormalizeVersion(tag)
	if version != "" && rec.Version != "" {
		if CompareVersions(version, rec.Version) <= 0 {
			return ProbeResult{Record: rec, SkipReason: SkipAlreadyCurrent, Message: "no newer version"}
		}
		return ProbeResult{
			Record:           rec,
			HasUpdate:        true,
			AvailableVersion: version,
			selectedAsset:    Asset{Name: src.Glob, URL: manifestURL},
			newTag:           src.Tag,
		}
	}

	return p.probeDirectURL(ctx, rec, manifestURL)
}

// probeDirectURL implements spec.md §4.7's DirectURL/fingerprint probe
// algorithm, also used as the Delta fallback when no version is
// extractable.
func (p *Prober) probeDirectURL(ctx context.Context, rec *registry.Record, targetURL string) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return ProbeResult{Record: rec, SkipReason: SkipAPIUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	fingerprint := buildFingerprint(resp.Header.Get("Last-Modified"), resp.Header.Get("Content-Length"))
	if fingerprint == "" {
		return ProbeResult{Record: rec, SkipReason: SkipNoTrackingHeaders, Message: "no Last-Modified or Content-Length"}
	}

	stored := rec.LastModified
	if stored == "" {
		stored = rec.ContentLength
	}
	storedFingerprint := buildFingerprint(rec.LastModified, rec.ContentLength)

	if storedFingerprint == "" {
		return ProbeResult{
			Record:         rec,
			SkipReason:     SkipAlreadyCurrent,
			Message:        "first observation, baseline recorded",
			newFingerprint: fingerprint,
		}
	}

	if fingerprint == storedFingerprint {
		return ProbeResult{Record: rec, SkipReason: SkipAlreadyCurrent, Message: "fingerprint unchanged"}
	}

	return ProbeResult{
		Record:         rec,
		HasUpdate:      true,
		selectedAsset:  Asset{Name: targetURL, URL: targetURL},
		newFingerprint: fingerprint,
	}
}

// buildFingerprint formats the change-detection token spec.md §4.7 and the
// GLOSSARY describe: "<last-modified>|<content-length>", or
// "size:<content-length>" with no Last-Modified, or "" with neither.
func buildFingerprint(lastModified, contentLength string) string {
	switch {
	case lastModified != "" && contentLength != "":
		return lastModified + "|" + contentLength
	case lastModified != "":
		return lastModified + "|"
	case contentLength != "":
		return "size:" + contentLength
	default:
		return ""
	}
}

// globMatch is a minimal shell-glob matcher sufficient for the single "*"
// wildcard patterns used by DeltaForge's asset glob (e.g.
// "Foo-*-x86_64.AppImage.zsync").
func globMatch(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	rest := strings.TrimPrefix(name, parts[0])
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(rest, parts[i])
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(parts[i]):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1])
}

func parseContentLength(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
