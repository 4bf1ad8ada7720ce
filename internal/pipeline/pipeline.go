package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spachava753/buildbpy/internal/checkout"
	"github.com/spachava753/buildbpy/internal/config"
	"github.com/spachava753/buildbpy/internal/deps"
	"github.com/spachava753/buildbpy/internal/driver"
	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/environment/host"
	"github.com/spachava753/buildbpy/internal/fetcher"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"github.com/spachava753/buildbpy/internal/platform"
	"github.com/spachava753/buildbpy/internal/publish"
	"github.com/spachava753/buildbpy/internal/resolver"
	"github.com/spachava753/buildbpy/internal/retry"
	"github.com/spachava753/buildbpy/internal/upstream"
)

const apiTimeout = 60 * time.Second

// Options wires a Pipeline to its surroundings. Zero values select the
// host machine, the real network and the process's standard streams.
type Options struct {
	Root      string
	SourceDir string

	// Platform overrides host detection.
	Platform models.PlatformDescriptor

	Env        environment.Environment
	HTTPClient *http.Client
	Token      string

	Stdout io.Writer
	Stderr io.Writer
}

// Request selects what a build run produces.
type Request struct {
	Target      models.Target
	ClearLib    bool
	ClearCache  bool
	Install     bool
	Publish     bool
	PublishRepo string // overrides the configured publish repository
}

// Result describes a finished build.
type Result struct {
	Version models.VersionDescriptor
	Commit  string
	Binary  string
	Wheels  []string
	Tag     string
	Assets  []models.ReleaseAsset
}

// Pipeline runs builds, upstream checks and index generation against one
// build root.
type Pipeline struct {
	cfg     models.Config
	opts    Options
	profile platform.Profile
	paths   paths.BuildPaths
	env     environment.Environment

	maxDownload int64

	apiClient      *http.Client
	downloadClient *http.Client
	publishClient  *http.Client
}

// New prepares a pipeline for the host (or opts.Platform).
func New(cfg models.Config, opts Options) (*Pipeline, error) {
	desc := opts.Platform
	if desc.OS == "" {
		var err error
		if desc, err = platform.Host(); err != nil {
			return nil, err
		}
	}
	profile, err := platform.Lookup(desc)
	if err != nil {
		return nil, err
	}

	maxDownload, err := config.MaxDownloadBytes(cfg)
	if err != nil {
		return nil, models.NewError(models.ErrConfigInvalid, err)
	}

	if opts.Root == "" {
		opts.Root = paths.DefaultRoot()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	env := opts.Env
	if env == nil {
		env = host.New()
	}

	p := &Pipeline{
		cfg:     cfg,
		opts:    opts,
		profile: profile,
		paths:   paths.New(opts.Root, profile.BuildDirName(), opts.SourceDir),
		env:     env,

		maxDownload: maxDownload,
	}
	if opts.HTTPClient != nil {
		p.apiClient, p.downloadClient, p.publishClient = opts.HTTPClient, opts.HTTPClient, opts.HTTPClient
	} else {
		p.apiClient = &http.Client{Timeout: apiTimeout}
		p.downloadClient = &http.Client{Timeout: seconds(cfg.Download.TimeoutSec)}
		p.publishClient = &http.Client{Timeout: seconds(cfg.Publish.TimeoutSec)}
	}

	slog.Debug("pipeline configured", "os", profile.OS, "arch", profile.Arch, "root", p.paths.Root, "repo", p.paths.Repo)
	return p, nil
}

// Paths returns the directory layout the pipeline works in.
func (p *Pipeline) Paths() paths.BuildPaths {
	return p.paths
}

// Run executes a full build: resolve, checkout, provision, fetch, build,
// package and optionally install and publish. Every failure aborts the run;
// cancellation takes effect between stages.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if _, err := req.Target.Kind(); err != nil {
		return nil, err
	}
	if req.Publish && p.opts.Token == "" {
		return nil, models.Errorf(models.ErrConfigInvalid, "publishing requires %s", config.TokenEnv)
	}
	if err := p.paths.Ensure(); err != nil {
		return nil, fmt.Errorf("creating build root: %w", err)
	}

	feed := upstream.NewFeed(p.apiClient, p.cfg.Upstream.FeedURL)
	source := upstream.NewClient(p.apiClient, p.cfg.Upstream.APIURL, p.cfg.Upstream.Repo, p.opts.Token)
	res := resolver.New(source, feed, p.profile.FeedFilter())

	var (
		result     Result
		resolution resolver.Resolution
		err        error
	)

	err = p.stage(ctx, "resolve", func() error {
		resolution, err = res.Resolve(ctx, req.Target)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "checkout", func() error {
		result.Commit, err = checkout.New(p.env, p.cfg.Upstream.GitURL, p.paths.Repo).Checkout(ctx, resolution)
		if err != nil {
			return err
		}
		result.Version, err = res.Complete(resolution, p.paths.Repo)
		if err != nil {
			return models.NewError(models.ErrCheckoutFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "prepare", func() error {
		if req.ClearLib {
			slog.Info("clearing libraries", "dir", p.paths.Lib)
			if err := p.paths.ClearLib(); err != nil {
				return fmt.Errorf("clearing libraries: %w", err)
			}
		}
		if req.ClearCache {
			slog.Info("clearing build cache", "dir", p.paths.Build)
			if err := p.paths.ClearBuild(); err != nil {
				return fmt.Errorf("clearing build cache: %w", err)
			}
		}
		if _, err := p.profile.ApplyCompileDirectives(p.paths.Repo); err != nil {
			return models.PhaseError(models.ErrBuildFailed, "configure", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "dependencies", func() error {
		prov := deps.New(p.env, p.profile, p.cfg.Upstream.SVNURL)
		return prov.Ensure(ctx, p.paths.Repo, p.profile.LibDirectory(p.paths.Lib), result.Version)
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "fetch", func() error {
		f := fetcher.New(p.downloadClient, feed, p.profile, p.env, fetcher.Options{
			MirrorURL:   p.cfg.Upstream.MirrorURL,
			DownloadDir: p.paths.Download,
			MaxBytes:    p.maxDownload,
			VerifyHash:  p.cfg.Download.VerifyHash,
		})
		result.Binary, err = f.Fetch(ctx, result.Version, p.paths.Bin)
		return err
	})
	if err != nil {
		return nil, err
	}

	drv := driver.New(p.env, p.profile, driver.Options{
		RepoDir:     p.paths.Repo,
		BuildDir:    p.paths.Build,
		WheelOutput: p.paths.WheelOutput,
		PythonAPI:   p.paths.PythonAPI,
		LogDir:      p.paths.LogDir(),
		Python:      p.cfg.Build.Python,
		Stdout:      p.opts.Stdout,
		Stderr:      p.opts.Stderr,
	})

	if err := p.stage(ctx, "stubs", func() error { return drv.GenerateStubs(ctx, result.Binary) }); err != nil {
		return nil, err
	}
	if err := p.stage(ctx, "build", func() error { return drv.Build(ctx) }); err != nil {
		return nil, err
	}

	err = p.stage(ctx, "package", func() error {
		result.Wheels, err = drv.Package(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if req.Install {
		if err := p.stage(ctx, "install", func() error { return drv.Install(ctx, result.Wheels) }); err != nil {
			return nil, err
		}
	}

	if req.Publish {
		result.Tag = publish.Tag(resolution.Tag, result.Version)
		err = p.stage(ctx, "publish", func() error {
			pub := publish.New(p.releases(req.PublishRepo), p.cfg.Publish.TargetCommitish)
			result.Assets, err = pub.Publish(ctx, result.Tag, result.Wheels)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if err := p.record(resolution, &result, req.Publish); err != nil {
		slog.Warn("could not record build", "state", p.paths.StateFile(), "error", err)
	}

	slog.Info("build complete", "version", result.Version.String(), "cycle", result.Version.Cycle, "wheels", len(result.Wheels))
	return &result, nil
}

func (p *Pipeline) record(res resolver.Resolution, result *Result, published bool) error {
	tag := result.Tag
	if tag == "" {
		tag = res.Tag
	}
	wheels := make([]string, len(result.Wheels))
	for i, w := range result.Wheels {
		wheels[i] = filepath.Base(w)
	}
	return config.RecordBuild(p.paths.StateFile(), models.BuildRecord{
		Tag:       tag,
		Version:   result.Version.Minor,
		Cycle:     result.Version.Cycle,
		Commit:    result.Commit,
		Wheels:    wheels,
		Published: published,
		BuiltAt:   time.Now().UTC(),
	})
}

// releases returns a client for the publish repository, repo overriding
// the configured one when set.
func (p *Pipeline) releases(repo string) *publish.Client {
	if repo == "" {
		repo = p.cfg.Publish.Repo
	}
	return publish.NewClient(p.publishClient, p.cfg.Upstream.APIURL, p.cfg.Publish.UploadURL,
		repo, p.opts.Token, retry.FromConfig(p.cfg.Retry))
}

// stage runs one pipeline stage unless ctx is already done.
func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before %s: %w", name, err)
	}
	slog.Info("stage started", "stage", name)
	start := time.Now()
	if err := fn(); err != nil {
		slog.Error("stage failed", "stage", name, "error", err)
		return err
	}
	slog.Info("stage finished", "stage", name, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
