package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNotFound is returned when the source host has no such object.
var ErrNotFound = errors.New("not found")

const perPage = 100

// Client reads tags, commits and branches of a GitHub repository.
type Client struct {
	httpClient *http.Client
	apiURL     string
	repo       string
	token      string
}

// NewClient creates a client for repo ("owner/name"). token may be empty;
// unauthenticated requests are subject to lower rate limits.
func NewClient(httpClient *http.Client, apiURL, repo, token string) *Client {
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		repo:       repo,
		token:      token,
	}
}

// Tags returns every tag of the repository, newest first, following pagination.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var all []Tag
	for page := 1; ; page++ {
		var tags []Tag
		path := fmt.Sprintf("/repos/%s/tags?per_page=%d&page=%d", c.repo, perPage, page)
		if err := c.getJSON(ctx, path, &tags); err != nil {
			return nil, fmt.Errorf("listing tags: %w", err)
		}
		all = append(all, tags...)
		if len(tags) < perPage {
			return all, nil
		}
	}
}

// Branches returns every branch of the repository, following pagination.
func (c *Client) Branches(ctx context.Context) ([]Branch, error) {
	var all []Branch
	for page := 1; ; page++ {
		var branches []Branch
		path := fmt.Sprintf("/repos/%s/branches?per_page=%d&page=%d", c.repo, perPage, page)
		if err := c.getJSON(ctx, path, &branches); err != nil {
			return nil, fmt.Errorf("listing branches: %w", err)
		}
		all = append(all, branches...)
		if len(branches) < perPage {
			return all, nil
		}
	}
}

// Commit looks up a commit by full or abbreviated SHA, or by branch name.
func (c *Client) Commit(ctx context.Context, ref string) (Commit, error) {
	var commit Commit
	path := fmt.Sprintf("/repos/%s/commits/%s", c.repo, url.PathEscape(ref))
	if err := c.getJSON(ctx, path, &commit); err != nil {
		return commit, fmt.Errorf("getting commit %s: %w", ref, err)
	}
	return commit, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	// GitHub answers 422 for a malformed SHA.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: HTTP %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing response JSON: %w", err)
	}
	return nil
}
