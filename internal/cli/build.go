package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/pipeline"
)

// Represents the 'buildbpy build' command.
type BuildCmd struct {
	Tag         string `xor:"target" help:"Build an upstream release tag (e.g. v4.2.0)." placeholder:"TAG"`
	Commit      string `xor:"target" help:"Build an upstream commit." placeholder:"SHA"`
	Branch      string `xor:"target" help:"Build the head of an upstream branch." placeholder:"NAME"`
	Daily       string `xor:"target" help:"Build the newest daily whose version starts with PREFIX (e.g. 4.3)." placeholder:"PREFIX"`
	LatestDaily bool   `xor:"target" help:"Build the newest daily for this platform."`

	ClearLib    bool   `help:"Remove the native libraries before building."`
	ClearCache  bool   `help:"Remove the build directory before building."`
	Install     bool   `help:"Install the wheel into the configured Python after packaging."`
	Publish     bool   `help:"Upload the wheel to a GitHub release (needs GITHUB_TOKEN)."`
	PublishRepo string `help:"Repository to publish to, overriding the config." placeholder:"OWNER/NAME"`
	SourceDir   string `type:"path" help:"Use an existing Blender checkout instead of <root>/blender." placeholder:"DIR"`
}

// Returns the version selector given on the command line.
func (c *BuildCmd) target() models.Target {
	return models.Target{
		Tag:         c.Tag,
		Commit:      c.Commit,
		Branch:      c.Branch,
		Daily:       c.LatestDaily,
		DailyPrefix: c.Daily,
	}
}

// Executes the build command.
func (c *BuildCmd) Run(ctx context.Context) error {
	p, err := newPipeline(c.SourceDir)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, pipeline.Request{
		Target:      c.target(),
		ClearLib:    c.ClearLib,
		ClearCache:  c.ClearCache,
		Install:     c.Install,
		Publish:     c.Publish,
		PublishRepo: c.PublishRepo,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nVersion: %s (%s)\n", res.Version.Minor, res.Version.Cycle)
	fmt.Printf("Commit: %s\n", res.Commit)
	for _, w := range res.Wheels {
		fmt.Printf("Wheel: %s\n", filepath.Base(w))
	}
	if res.Tag != "" {
		fmt.Printf("Release: %s\n", res.Tag)
		for _, a := range res.Assets {
			fmt.Printf("  %s\n", a.DownloadURL)
		}
	}
	return nil
}
