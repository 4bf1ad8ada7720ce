package publish

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"golang.org/x/sync/errgroup"
)

var indexTemplate = template.Must(template.New("index").Parse(`<html><body>
<h1>Links for {{.Title}}</h1>
{{range .Assets}}<a href="{{.DownloadURL}}">{{.AssetName}}</a><br>
{{end}}</body></html>
`))

// CollectWheels lists the wheel assets of every release, newest release
// first. Asset listings are fetched with at most concurrency requests in
// flight.
func CollectWheels(ctx context.Context, client *Client, concurrency int) ([]models.ReleaseAsset, error) {
	releases, err := client.Releases(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("listing release assets", "repo", client.Repo(), "releases", len(releases))

	perRelease := make([][]models.ReleaseAsset, len(releases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, rel := range releases {
		if rel.Draft {
			continue
		}
		g.Go(func() error {
			assets, err := client.Assets(ctx, rel.ID)
			if err != nil {
				return err
			}
			var wheels []models.ReleaseAsset
			for _, a := range assets {
				if !strings.HasSuffix(a.Name, ".whl") {
					continue
				}
				wheels = append(wheels, models.ReleaseAsset{
					TagName:     rel.TagName,
					AssetName:   a.Name,
					DownloadURL: a.BrowserDownloadURL,
				})
			}
			slices.SortFunc(wheels, func(a, b models.ReleaseAsset) int {
				return strings.Compare(a.AssetName, b.AssetName)
			})
			perRelease[i] = wheels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.Concat(perRelease...), nil
}

// RenderIndex writes a simple package index page linking every asset.
func RenderIndex(w io.Writer, title string, assets []models.ReleaseAsset) error {
	return indexTemplate.Execute(w, struct {
		Title  string
		Assets []models.ReleaseAsset
	}{title, assets})
}

// WriteIndex collects the published wheels and writes the index page to
// path. It returns the number of wheels linked.
func WriteIndex(ctx context.Context, client *Client, path, title string, concurrency int) (int, error) {
	assets, err := CollectWheels(ctx, client, concurrency)
	if err != nil {
		return 0, models.NewError(models.ErrPublishFailed, fmt.Errorf("collecting wheels: %w", err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, models.NewError(models.ErrPublishFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.html")
	if err != nil {
		return 0, models.NewError(models.ErrPublishFailed, err)
	}
	defer os.Remove(tmp.Name())

	if err := RenderIndex(tmp, title, assets); err != nil {
		tmp.Close()
		return 0, models.NewError(models.ErrPublishFailed, fmt.Errorf("rendering index: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return 0, models.NewError(models.ErrPublishFailed, err)
	}
	if err := os.Chmod(tmp.Name(), paths.DefaultFileMode); err != nil {
		return 0, models.NewError(models.ErrPublishFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, models.NewError(models.ErrPublishFailed, err)
	}

	slog.Info("wrote package index", "path", path, "wheels", len(assets))
	return len(assets), nil
}
