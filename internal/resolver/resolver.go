package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/upstream"
)

// SourceHost lists the upstream repository's refs.
type SourceHost interface {
	Tags(ctx context.Context) ([]upstream.Tag, error)
	Branches(ctx context.Context) ([]upstream.Branch, error)
	Commit(ctx context.Context, ref string) (upstream.Commit, error)
}

// FeedSource lists the nightly builds.
type FeedSource interface {
	Builds(ctx context.Context) ([]models.DailyBuild, error)
}

// Resolution is the outcome of the first resolution phase: enough to check
// out the source tree. Version is already complete for daily targets; for
// the others it is derived from the checked-out tree by Complete.
type Resolution struct {
	Kind    models.TargetKind
	Tag     string
	Branch  string
	Commit  string // SHA to check out; the tag's commit for tag targets
	Version *models.VersionDescriptor
}

// Resolver turns a Target into a version descriptor. It never touches the
// filesystem except to read the version header in Complete.
type Resolver struct {
	host   SourceHost
	feed   FeedSource
	filter models.FeedFilter
}

// New creates a resolver. filter selects the feed entries for this host.
func New(host SourceHost, feed FeedSource, filter models.FeedFilter) *Resolver {
	return &Resolver{host: host, feed: feed, filter: filter}
}

// Resolve validates the target against upstream.
func (r *Resolver) Resolve(ctx context.Context, target models.Target) (Resolution, error) {
	kind, err := target.Kind()
	if err != nil {
		return Resolution{}, err
	}

	switch kind {
	case models.TargetTag:
		return r.resolveTag(ctx, target.Tag)
	case models.TargetCommit:
		return r.resolveCommit(ctx, target.Commit)
	case models.TargetBranch:
		return r.resolveBranch(ctx, target.Branch)
	default:
		return r.resolveDaily(ctx, target.DailyPrefix)
	}
}

func (r *Resolver) resolveTag(ctx context.Context, tag string) (Resolution, error) {
	tags, err := r.host.Tags(ctx)
	if err != nil {
		return Resolution{}, upstreamError("listing tags", err)
	}

	for _, t := range tags {
		if t.Name == tag {
			slog.Info("resolved tag", "tag", tag, "commit", t.Commit.SHA)
			return Resolution{Kind: models.TargetTag, Tag: tag, Commit: t.Commit.SHA}, nil
		}
	}
	return Resolution{}, models.Errorf(models.ErrUnknownTag, "tag %q not found among %d upstream tags", tag, len(tags))
}

func (r *Resolver) resolveCommit(ctx context.Context, sha string) (Resolution, error) {
	commit, err := r.host.Commit(ctx, sha)
	if errors.Is(err, upstream.ErrNotFound) {
		return Resolution{}, models.Errorf(models.ErrUnknownCommit, "commit %q not found", sha)
	}
	if err != nil {
		return Resolution{}, upstreamError("looking up commit", err)
	}
	if !strings.Contains(commit.SHA, sha) {
		return Resolution{}, models.Errorf(models.ErrUnknownCommit, "commit %q resolved to unrelated %s", sha, commit.SHA)
	}

	slog.Info("resolved commit", "commit", commit.SHA)
	return Resolution{Kind: models.TargetCommit, Commit: commit.SHA}, nil
}

func (r *Resolver) resolveBranch(ctx context.Context, name string) (Resolution, error) {
	branches, err := r.host.Branches(ctx)
	if err != nil {
		return Resolution{}, upstreamError("listing branches", err)
	}

	for _, b := range branches {
		if b.Name == name {
			slog.Info("resolved branch", "branch", name, "commit", b.Commit.SHA)
			return Resolution{Kind: models.TargetBranch, Branch: name, Commit: b.Commit.SHA}, nil
		}
	}
	return Resolution{}, models.Errorf(models.ErrUnknownBranch, "branch %q not found", name)
}

func (r *Resolver) resolveDaily(ctx context.Context, prefix string) (Resolution, error) {
	builds, err := r.feed.Builds(ctx)
	if err != nil {
		return Resolution{}, upstreamError("loading daily feed", err)
	}

	build, err := SelectDaily(builds, r.filter, prefix)
	if err != nil {
		return Resolution{}, err
	}

	v, err := DailyVersion(build)
	if err != nil {
		return Resolution{}, models.NewError(models.ErrNoBuildAvailable, err)
	}

	slog.Info("resolved daily build", "version", v.Minor, "cycle", v.Cycle, "file", build.FileName)
	return Resolution{Kind: models.TargetDaily, Commit: v.CommitHash, Version: &v}, nil
}

// upstreamError categorizes a failure to reach GitHub or the feed. Context
// cancellation passes through unchanged.
func upstreamError(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.NewError(models.ErrUpstreamFailed, fmt.Errorf("%s: %w", what, err))
}

// SelectDaily picks the newest feed entry built for the host. With a
// non-empty prefix, the newest entry whose version starts with the prefix
// components is chosen; there is no fallback when none does.
func SelectDaily(builds []models.DailyBuild, filter models.FeedFilter, prefix string) (models.DailyBuild, error) {
	var matching []models.DailyBuild
	for _, b := range builds {
		if filter.Matches(b) {
			matching = append(matching, b)
		}
	}
	if len(matching) == 0 {
		return models.DailyBuild{}, models.Errorf(models.ErrNoBuildAvailable,
			"no daily build for %s/%s (.%s)", filter.Platform, filter.Architecture, filter.Extension)
	}

	slices.SortStableFunc(matching, func(a, b models.DailyBuild) int {
		if c := CompareVersions(b.Version, a.Version); c != 0 {
			return c
		}
		return cmp.Compare(b.FileMtime, a.FileMtime)
	})

	if prefix == "" {
		return matching[0], nil
	}
	for _, b := range matching {
		if b.Version == prefix || strings.HasPrefix(b.Version, prefix+".") {
			return b, nil
		}
	}
	return models.DailyBuild{}, models.Errorf(models.ErrNoBuildAvailable, "no daily build matches version %q", prefix)
}

// DailyVersion builds the descriptor of a feed entry.
func DailyVersion(b models.DailyBuild) (models.VersionDescriptor, error) {
	return models.NewVersionDescriptor(models.MajorOf(b.Version), b.Version, models.FeedCycle(b.ReleaseCycle), b.Hash, &b)
}

// CompareVersions compares dotted numeric versions, returning -1, 0 or 1.
// Non-numeric components compare lexically.
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := range max(len(pa), len(pb)) {
		var ca, cb string
		if i < len(pa) {
			ca = pa[i]
		}
		if i < len(pb) {
			cb = pb[i]
		}
		na, errA := strconv.Atoi(ca)
		nb, errB := strconv.Atoi(cb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(ca, cb); c != 0 {
			return c
		}
	}
	return 0
}

// VersionHeaderPath is the source file carrying the version macros.
const VersionHeaderPath = "source/blender/blenkernel/BKE_blender_version.h"

// Complete finishes resolution once the source tree is checked out at
// repoDir. Daily resolutions are returned unchanged.
func (r *Resolver) Complete(res Resolution, repoDir string) (models.VersionDescriptor, error) {
	if res.Version != nil {
		return *res.Version, nil
	}

	f, err := os.Open(filepath.Join(repoDir, filepath.FromSlash(VersionHeaderPath)))
	if err != nil {
		return models.VersionDescriptor{}, fmt.Errorf("opening version header: %w", err)
	}
	defer f.Close()

	h, err := ParseVersionHeader(f)
	if err != nil {
		return models.VersionDescriptor{}, err
	}

	v, err := models.NewVersionDescriptor(h.Major(), h.Minor(), models.NormalizeCycle(h.Cycle), res.Commit, nil)
	if err != nil {
		return v, err
	}
	slog.Info("resolved source version", "version", v.Minor, "cycle", v.Cycle, "commit", v.CommitHashShort)
	return v, nil
}
