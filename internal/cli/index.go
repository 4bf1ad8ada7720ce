package cli

import (
	"context"
	"fmt"
)

// Represents the 'buildbpy index' command.
type IndexCmd struct {
	Repo   string `help:"Repository whose releases are indexed, overriding the config." placeholder:"OWNER/NAME"`
	Output string `short:"o" type:"path" help:"Where to write the index page, overriding the config." placeholder:"FILE"`
}

// Executes the index command.
func (c *IndexCmd) Run(ctx context.Context) error {
	p, err := newPipeline("")
	if err != nil {
		return err
	}

	n, err := p.Index(ctx, c.Repo, c.Output)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d wheels\n", n)
	return nil
}
