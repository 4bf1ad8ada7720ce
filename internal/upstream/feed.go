package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spachava753/buildbpy/internal/models"
)

// Feed reads the nightly build feed.
type Feed struct {
	httpClient *http.Client
	url        string
}

// NewFeed creates a feed reader for url.
func NewFeed(httpClient *http.Client, url string) *Feed {
	return &Feed{httpClient: httpClient, url: url}
}

// Builds fetches the current feed entries.
func (f *Feed) Builds(ctx context.Context) ([]models.DailyBuild, error) {
	return LoadFromURL(ctx, f.httpClient, f.url)
}

// LoadFromURL loads the nightly build feed from a remote URL.
func LoadFromURL(ctx context.Context, httpClient *http.Client, url string) ([]models.DailyBuild, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var builds []models.DailyBuild
	if err := json.Unmarshal(data, &builds); err != nil {
		return nil, fmt.Errorf("parsing feed JSON: %w", err)
	}

	return builds, nil
}
