package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spachava753/buildbpy/internal/paths"
	"github.com/spachava753/buildbpy/internal/pipeline"
)

// Represents the 'buildbpy check' command.
type CheckCmd struct {
	GithubOutput string `env:"GITHUB_OUTPUT" type:"path" help:"Append the results as key=value lines to FILE (set by GitHub Actions)." placeholder:"FILE"`
}

// Executes the check command.
//
// Prints new_tag, new_commit and latest_tag so a scheduled workflow can
// decide whether to build.
func (c *CheckCmd) Run(ctx context.Context) error {
	p, err := newPipeline("")
	if err != nil {
		return err
	}

	res, err := p.Check(ctx)
	if err != nil {
		return err
	}

	if err := writeCheck(os.Stdout, res); err != nil {
		return err
	}
	if c.GithubOutput == "" {
		return nil
	}

	f, err := os.OpenFile(c.GithubOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, paths.DefaultFileMode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.GithubOutput, err)
	}
	defer f.Close()
	return writeCheck(f, res)
}

func writeCheck(w io.Writer, res pipeline.CheckResult) error {
	_, err := fmt.Fprintf(w, "new_tag=%t\nnew_commit=%t\nlatest_tag=%s\n", res.NewTag, res.NewCommit, res.LatestTag)
	return err
}
