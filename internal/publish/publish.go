package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spachava753/buildbpy/internal/models"
)

// Publisher attaches built wheels to a GitHub release.
type Publisher struct {
	client          *Client
	targetCommitish string
}

// New creates a publisher. Releases it creates point at targetCommitish of
// the publishing repository.
func New(client *Client, targetCommitish string) *Publisher {
	return &Publisher{client: client, targetCommitish: targetCommitish}
}

// Tag returns the release tag for a build: the explicit tag when one was
// built, otherwise one derived from the version, e.g. "v4.3.0-alpha.5d3c2a1b9f0e".
func Tag(explicit string, v models.VersionDescriptor) string {
	if explicit != "" {
		return explicit
	}
	tag := fmt.Sprintf("v%s-%s", v.Minor, v.Cycle)
	if v.CommitHashShort != "" {
		tag += "." + v.CommitHashShort
	}
	return tag
}

// Publish uploads wheels to the release for tag, creating the release when
// it does not exist and replacing assets of the same name. A failure part
// way through leaves already uploaded assets in place.
//
// Two publishers racing on the same new tag can both attempt to create the
// release; the loser fails with PublishFailed.
func (p *Publisher) Publish(ctx context.Context, tag string, wheels []string) ([]models.ReleaseAsset, error) {
	if len(wheels) == 0 {
		return nil, models.Errorf(models.ErrPublishFailed, "no wheels to publish")
	}

	rel, err := p.ensureRelease(ctx, tag)
	if err != nil {
		return nil, models.NewError(models.ErrPublishFailed, err)
	}

	existing, err := p.client.Assets(ctx, rel.ID)
	if err != nil {
		return nil, models.NewError(models.ErrPublishFailed, err)
	}

	var published []models.ReleaseAsset
	for _, w := range wheels {
		name := filepath.Base(w)
		for _, a := range existing {
			if a.Name != name {
				continue
			}
			slog.Info("replacing existing asset", "name", name, "tag", tag)
			if err := p.client.DeleteAsset(ctx, a.ID); err != nil {
				return published, models.NewError(models.ErrPublishFailed, err)
			}
		}

		asset, err := p.client.UploadAsset(ctx, rel.ID, w)
		if err != nil {
			return published, models.NewError(models.ErrPublishFailed, err)
		}
		slog.Info("published wheel", "name", asset.Name, "tag", tag, "url", asset.BrowserDownloadURL)
		published = append(published, models.ReleaseAsset{
			TagName:     tag,
			AssetName:   asset.Name,
			DownloadURL: asset.BrowserDownloadURL,
		})
	}
	return published, nil
}

func (p *Publisher) ensureRelease(ctx context.Context, tag string) (Release, error) {
	rel, err := p.client.ReleaseByTag(ctx, tag)
	if err == nil {
		slog.Debug("using existing release", "tag", tag, "id", rel.ID)
		return rel, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return rel, fmt.Errorf("looking up release %s: %w", tag, err)
	}

	slog.Info("creating release", "repo", p.client.Repo(), "tag", tag)
	rel, err = p.client.CreateRelease(ctx, NewRelease{
		TagName:         tag,
		TargetCommitish: p.targetCommitish,
		Name:            "bpy-" + tag,
		Body:            "Blender Python API for Blender " + tag,
	})
	if err != nil {
		return rel, fmt.Errorf("creating release %s: %w", tag, err)
	}
	return rel, nil
}
