package cli

import (
	"context"
	"fmt"

	"github.com/spachava753/buildbpy/internal"
)

// Represents the 'buildbpy version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
