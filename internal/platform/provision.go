package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/models"
)

// ProvisionRequest describes where native libraries go and which
// release line they belong to.
type ProvisionRequest struct {
	RepoDir string
	LibDir  string
	SVNURL  string
	Version models.VersionDescriptor
}

// LibraryURL returns the Subversion URL of the platform library checkout.
// Release builds use the tagged library set; other cycles use trunk.
func (p Profile) LibraryURL(svnRoot string, v models.VersionDescriptor) string {
	if p.libToken == nil {
		return ""
	}
	base := strings.TrimSuffix(svnRoot, "/")
	branch := "trunk"
	if v.Cycle.IsRelease() {
		branch = fmt.Sprintf("tags/blender-%s-release", v.Major)
	}
	return fmt.Sprintf("%s/%s/lib/%s", base, branch, p.libToken(p.Arch))
}

// ProvisionDependencies fetches the native libraries into req.LibDir.
func (p Profile) ProvisionDependencies(ctx context.Context, env environment.Environment, req ProvisionRequest) error {
	if url := p.LibraryURL(req.SVNURL, req.Version); url != "" {
		slog.Info("checking out libraries", "url", url, "dest", req.LibDir)
		return environment.Run(ctx, env, nil, nil, environment.ExecOptions{},
			"svn", "checkout", url, req.LibDir)
	}

	slog.Info("fetching libraries with the update script", "repo", req.RepoDir)
	return environment.Run(ctx, env, nil, nil, environment.ExecOptions{WorkDir: req.RepoDir},
		"python3", "build_files/utils/make_update.py", "--no-blender", "--no-submodules")
}
