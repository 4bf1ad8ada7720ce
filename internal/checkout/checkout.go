package checkout

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/resolver"
)

// Coordinator brings the local source checkout to a resolved version.
type Coordinator struct {
	env     environment.Environment
	gitURL  string
	repoDir string
}

// New creates a coordinator for the checkout at repoDir, cloned from gitURL
// when absent.
func New(env environment.Environment, gitURL, repoDir string) *Coordinator {
	return &Coordinator{env: env, gitURL: gitURL, repoDir: repoDir}
}

// Checkout clones the repository if needed, fetches, moves the working tree
// to the resolved ref and verifies HEAD. It returns the checked-out SHA.
// Tag checkouts use a hard reset and discard local modifications.
func (c *Coordinator) Checkout(ctx context.Context, res resolver.Resolution) (string, error) {
	if err := c.ensureClone(ctx); err != nil {
		return "", models.NewError(models.ErrCheckoutFailed, err)
	}

	slog.Debug("fetching upstream", "repo", c.repoDir)
	if err := c.git(ctx, "fetch", "--all", "--tags"); err != nil {
		return "", models.NewError(models.ErrCheckoutFailed, fmt.Errorf("git fetch: %w", err))
	}

	var want string
	switch res.Kind {
	case models.TargetTag:
		ref := "tags/" + res.Tag
		slog.Warn("resetting working tree to tag, local changes are discarded", "tag", res.Tag, "repo", c.repoDir)
		if err := c.git(ctx, "reset", "--hard", ref); err != nil {
			return "", models.NewError(models.ErrCheckoutFailed, fmt.Errorf("git reset --hard %s: %w", ref, err))
		}
		sha, err := c.revParse(ctx, ref+"^{commit}")
		if err != nil {
			return "", models.NewError(models.ErrCheckoutFailed, err)
		}
		want = sha
	default:
		if res.Commit == "" {
			return "", models.Errorf(models.ErrCheckoutFailed, "no commit to check out for %s target", res.Kind)
		}
		slog.Debug("checking out commit", "commit", res.Commit)
		if err := c.git(ctx, "checkout", res.Commit); err != nil {
			return "", models.NewError(models.ErrCheckoutFailed, fmt.Errorf("git checkout %s: %w", res.Commit, err))
		}
		want = res.Commit
	}

	if err := c.git(ctx, "submodule", "update", "--init", "--recursive"); err != nil {
		return "", models.NewError(models.ErrCheckoutFailed, fmt.Errorf("git submodule update: %w", err))
	}

	head, err := c.revParse(ctx, "HEAD")
	if err != nil {
		return "", models.NewError(models.ErrCheckoutFailed, err)
	}
	if !strings.HasPrefix(head, want) {
		return "", models.Errorf(models.ErrCheckoutFailed, "HEAD is %s after checkout, expected %s", head, want)
	}

	slog.Info("source checked out", "repo", c.repoDir, "head", head)
	return head, nil
}

func (c *Coordinator) ensureClone(ctx context.Context) error {
	if _, err := os.Stat(c.repoDir); err == nil {
		slog.Debug("repository already cloned", "path", c.repoDir)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking repository: %w", err)
	}

	parent := filepath.Dir(c.repoDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	slog.Info("cloning repository", "url", c.gitURL, "dest", c.repoDir)
	err := environment.Run(ctx, c.env, nil, nil, environment.ExecOptions{WorkDir: parent},
		"git", "clone", "--recursive", c.gitURL, c.repoDir)
	if err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	return nil
}

func (c *Coordinator) git(ctx context.Context, args ...string) error {
	return environment.Run(ctx, c.env, nil, nil, environment.ExecOptions{WorkDir: c.repoDir}, "git", args...)
}

// revParse resolves a revision to its full SHA.
func (c *Coordinator) revParse(ctx context.Context, rev string) (string, error) {
	sha, err := environment.Output(ctx, c.env, environment.ExecOptions{WorkDir: c.repoDir}, "git", "rev-parse", rev)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", rev, err)
	}
	return sha, nil
}
