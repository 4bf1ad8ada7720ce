package pipeline

import (
	"context"

	"github.com/spachava753/buildbpy/internal/publish"
)

// Index regenerates the package index from the releases of repo (the
// configured publish repository when empty) and writes it to path (the
// configured index path when empty).
func (p *Pipeline) Index(ctx context.Context, repo, path string) (int, error) {
	if path == "" {
		path = p.cfg.Publish.IndexPath
	}
	return publish.WriteIndex(ctx, p.releases(repo), path, p.cfg.Publish.IndexTitle, p.cfg.Publish.IndexConcurrency)
}
