package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spachava753/buildbpy/internal/retry"
)

// ErrNotFound is returned when a release does not exist.
var ErrNotFound = errors.New("not found")

const (
	perPage    = 100
	apiVersion = "2022-11-28"
)

// Release is a GitHub release.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Draft   bool   `json:"draft"`
}

// Asset is a file attached to a release.
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// NewRelease is the body of a create-release request.
type NewRelease struct {
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish,omitempty"`
	Name            string `json:"name"`
	Body            string `json:"body"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

// Client manages the releases of one GitHub repository.
type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	repo       string
	token      string
	policy     retry.Policy
}

// NewClient creates a releases client for repo ("owner/name"). Uploads are
// retried according to policy.
func NewClient(httpClient *http.Client, apiURL, uploadURL, repo, token string, policy retry.Policy) *Client {
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		uploadURL:  strings.TrimSuffix(uploadURL, "/"),
		repo:       repo,
		token:      token,
		policy:     policy,
	}
}

// Repo returns the repository releases are published to.
func (c *Client) Repo() string {
	return c.repo
}

// ReleaseByTag returns the release for tag, or ErrNotFound.
func (c *Client) ReleaseByTag(ctx context.Context, tag string) (Release, error) {
	var rel Release
	path := fmt.Sprintf("/repos/%s/releases/tags/%s", c.repo, url.PathEscape(tag))
	err := c.do(ctx, http.MethodGet, c.apiURL+path, nil, "", http.StatusOK, &rel)
	return rel, err
}

// CreateRelease creates a release.
func (c *Client) CreateRelease(ctx context.Context, nr NewRelease) (Release, error) {
	data, err := json.Marshal(nr)
	if err != nil {
		return Release{}, fmt.Errorf("encoding release: %w", err)
	}
	var rel Release
	path := fmt.Sprintf("/repos/%s/releases", c.repo)
	err = c.do(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(data), "application/json", http.StatusCreated, &rel)
	return rel, err
}

// Releases returns every release of the repository, newest first.
func (c *Client) Releases(ctx context.Context) ([]Release, error) {
	var all []Release
	for page := 1; ; page++ {
		var releases []Release
		path := fmt.Sprintf("/repos/%s/releases?per_page=%d&page=%d", c.repo, perPage, page)
		if err := c.do(ctx, http.MethodGet, c.apiURL+path, nil, "", http.StatusOK, &releases); err != nil {
			return nil, fmt.Errorf("listing releases: %w", err)
		}
		all = append(all, releases...)
		if len(releases) < perPage {
			return all, nil
		}
	}
}

// Assets returns the assets of a release.
func (c *Client) Assets(ctx context.Context, releaseID int64) ([]Asset, error) {
	var all []Asset
	for page := 1; ; page++ {
		var assets []Asset
		path := fmt.Sprintf("/repos/%s/releases/%d/assets?per_page=%d&page=%d", c.repo, releaseID, perPage, page)
		if err := c.do(ctx, http.MethodGet, c.apiURL+path, nil, "", http.StatusOK, &assets); err != nil {
			return nil, fmt.Errorf("listing assets of release %d: %w", releaseID, err)
		}
		all = append(all, assets...)
		if len(assets) < perPage {
			return all, nil
		}
	}
}

// DeleteAsset removes an asset.
func (c *Client) DeleteAsset(ctx context.Context, assetID int64) error {
	path := fmt.Sprintf("/repos/%s/releases/assets/%d", c.repo, assetID)
	if err := c.do(ctx, http.MethodDelete, c.apiURL+path, nil, "", http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("deleting asset %d: %w", assetID, err)
	}
	return nil
}

// UploadAsset uploads the file at path to a release under its base name.
// Transient server failures are retried; the file is re-read on every attempt.
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, path string) (Asset, error) {
	name := filepath.Base(path)
	endpoint := fmt.Sprintf("%s/repos/%s/releases/%d/assets?name=%s", c.uploadURL, c.repo, releaseID, url.QueryEscape(name))

	var asset Asset
	err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		slog.Debug("uploading asset", "name", name, "release", releaseID, "attempt", attempt)
		return c.do(ctx, http.MethodPost, endpoint, f, "application/octet-stream", http.StatusCreated, &asset)
	})
	if err != nil {
		return asset, fmt.Errorf("uploading %s: %w", name, err)
	}
	return asset, nil
}

// do sends a request and decodes a JSON response into out when it is
// non-nil. A 404 becomes ErrNotFound; any other unexpected status becomes a
// *retry.StatusError.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if f, ok := body.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.Name(), err)
		}
		req.ContentLength = info.Size()
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrNotFound
	}
	if resp.StatusCode != want && !slices.Contains(okAlternatives[want], resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &retry.StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response JSON: %w", err)
	}
	return nil
}

// GitHub answers some writes with 200 where 201 is documented.
var okAlternatives = map[int][]int{
	http.StatusCreated: {http.StatusOK},
}
