package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spachava753/buildbpy/internal/config"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/upstream"
)

// CheckResult reports whether upstream moved since the last check.
type CheckResult struct {
	LatestTag    string `json:"latest_tag"`
	LatestCommit string `json:"latest_commit"`
	NewTag       bool   `json:"new_tag"`
	NewCommit    bool   `json:"new_commit"`
}

// Check compares the newest upstream tag and the head of main against the
// state file, and records them when either changed.
func (p *Pipeline) Check(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	source := upstream.NewClient(p.apiClient, p.cfg.Upstream.APIURL, p.cfg.Upstream.Repo, p.opts.Token)

	tags, err := source.Tags(ctx)
	if err != nil {
		return res, models.NewError(models.ErrUpstreamFailed, fmt.Errorf("listing tags: %w", err))
	}
	if len(tags) > 0 {
		res.LatestTag = tags[0].Name
	}

	head, err := source.Commit(ctx, "main")
	if err != nil {
		return res, models.NewError(models.ErrUpstreamFailed, fmt.Errorf("reading main: %w", err))
	}
	res.LatestCommit = head.SHA

	statePath := p.paths.StateFile()
	state, err := config.LoadState(statePath)
	if err != nil {
		return res, err
	}

	res.NewTag = res.LatestTag != state.LatestTag
	res.NewCommit = res.LatestCommit != state.LatestCommit
	if res.NewTag || res.NewCommit {
		state.LatestTag = res.LatestTag
		state.LatestCommit = res.LatestCommit
		if err := config.SaveState(statePath, state); err != nil {
			return res, err
		}
	}

	slog.Info("checked upstream", "latest_tag", res.LatestTag, "new_tag", res.NewTag,
		"latest_commit", res.LatestCommit, "new_commit", res.NewCommit)
	return res, nil
}
