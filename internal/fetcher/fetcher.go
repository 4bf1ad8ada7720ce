package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/platform"
)

// FeedSource lists the nightly builds.
type FeedSource interface {
	Builds(ctx context.Context) ([]models.DailyBuild, error)
}

// Artifact is a reference binary archive to download.
type Artifact struct {
	URL      string
	FileName string

	// ChecksumURL points at a sha256 listing for the archive; empty when
	// none is published.
	ChecksumURL string
}

// Options configures a Fetcher.
type Options struct {
	MirrorURL   string
	DownloadDir string
	MaxBytes    int64 // zero means unlimited
	VerifyHash  bool
}

// Fetcher downloads, verifies and extracts the prebuilt Blender binary
// matching the version being built.
type Fetcher struct {
	httpClient *http.Client
	feed       FeedSource
	profile    platform.Profile
	env        environment.Environment
	opts       Options
}

// New creates a fetcher.
func New(httpClient *http.Client, feed FeedSource, profile platform.Profile, env environment.Environment, opts Options) *Fetcher {
	opts.MirrorURL = strings.TrimSuffix(opts.MirrorURL, "/")
	return &Fetcher{httpClient: httpClient, feed: feed, profile: profile, env: env, opts: opts}
}

// Locate returns the archive for v. A descriptor carrying a feed entry uses
// that entry verbatim. Release archives follow the mirror's naming scheme
// and need no network call; other cycles are looked up in the nightly feed.
func (f *Fetcher) Locate(ctx context.Context, v models.VersionDescriptor) (Artifact, error) {
	if v.Daily != nil {
		return dailyArtifact(*v.Daily), nil
	}
	if v.Cycle.IsRelease() {
		tok := f.profile.DownloadTokens(v.Cycle)
		name := fmt.Sprintf("blender-%s-%s%s%s.%s", v.Minor, tok.System, tok.Arch, tok.FileSuffix, tok.Ext)
		dir := fmt.Sprintf("%s/Blender%s", f.opts.MirrorURL, v.Major)
		return Artifact{
			URL:         dir + "/" + name,
			FileName:    name,
			ChecksumURL: fmt.Sprintf("%s/blender-%s.sha256", dir, v.Minor),
		}, nil
	}

	build, err := f.findDaily(ctx, v)
	if err != nil {
		return Artifact{}, err
	}
	return dailyArtifact(build), nil
}

func dailyArtifact(b models.DailyBuild) Artifact {
	return Artifact{URL: b.URL, FileName: b.FileName, ChecksumURL: b.URL + ".sha256"}
}

// findDaily looks up the feed entry built from the checked-out commit.
func (f *Fetcher) findDaily(ctx context.Context, v models.VersionDescriptor) (models.DailyBuild, error) {
	if v.CommitHashShort == "" {
		return models.DailyBuild{}, models.Errorf(models.ErrNoBuildAvailable, "no commit to match a %s build of %s", v.Cycle, v.Minor)
	}

	builds, err := f.feed.Builds(ctx)
	if err != nil {
		return models.DailyBuild{}, models.NewError(models.ErrDownloadFailed, err)
	}

	filter := f.profile.FeedFilter()
	for _, b := range builds {
		if filter.Matches(b) && b.Version == v.Minor && strings.Contains(b.FileName, v.CommitHashShort) {
			return b, nil
		}
	}
	return models.DailyBuild{}, models.Errorf(models.ErrNoBuildAvailable,
		"no %s build of %s for commit %s in the daily feed", v.Cycle, v.Minor, v.CommitHashShort)
}

// Download saves the artifact under the download directory and returns
// its path. The file only appears once fully written and verified.
func (f *Fetcher) Download(ctx context.Context, a Artifact) (string, error) {
	if err := os.MkdirAll(f.opts.DownloadDir, 0755); err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("creating download directory: %w", err))
	}
	dest := filepath.Join(f.opts.DownloadDir, a.FileName)

	var verifier digest.Verifier
	if f.opts.VerifyHash && a.ChecksumURL != "" {
		d, err := f.checksum(ctx, a.ChecksumURL, a.FileName)
		if err != nil {
			return "", models.NewError(models.ErrDownloadFailed, err)
		}
		if d != "" {
			verifier = d.Verifier()
		}
	}

	slog.Info("downloading reference binary", "url", a.URL)

	req, err := http.NewRequestWithContext(ctx, "GET", a.URL, nil)
	if err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("creating request: %w", err))
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("fetching %s: %w", a.URL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", models.Errorf(models.ErrDownloadFailed, "fetching %s: HTTP %d", a.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.opts.DownloadDir, "."+a.FileName+".*")
	if err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("creating temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	var w io.Writer = tmp
	if verifier != nil {
		w = io.MultiWriter(tmp, verifier)
	}

	n, err := io.Copy(w, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("writing %s: %w", a.FileName, err))
	}
	if f.opts.MaxBytes > 0 && n > f.opts.MaxBytes {
		return "", models.Errorf(models.ErrDownloadFailed, "%s exceeds the %d byte download limit", a.FileName, f.opts.MaxBytes)
	}
	if verifier != nil && !verifier.Verified() {
		return "", models.Errorf(models.ErrDownloadFailed, "%s failed sha256 verification", a.FileName)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", models.NewError(models.ErrDownloadFailed, fmt.Errorf("saving %s: %w", dest, err))
	}

	slog.Info("downloaded reference binary", "path", dest, "bytes", n, "verified", verifier != nil)
	return dest, nil
}

// checksum fetches the expected digest of fileName. A missing listing
// yields an empty digest and the download proceeds unverified.
func (f *Fetcher) checksum(ctx context.Context, url, fileName string) (digest.Digest, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching checksum: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("no checksum published, skipping verification", "url", url)
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching checksum: HTTP %d", resp.StatusCode)
	}

	hex, err := parseChecksum(io.LimitReader(resp.Body, 1<<20), fileName)
	if err != nil {
		return "", err
	}
	d, err := digest.Parse(string(digest.SHA256) + ":" + strings.ToLower(hex))
	if err != nil {
		return "", fmt.Errorf("invalid checksum for %s: %w", fileName, err)
	}
	return d, nil
}

// parseChecksum reads a sha256sum style listing. A single bare hash is
// accepted for per-file checksum files.
func parseChecksum(r io.Reader, fileName string) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) == 1:
			return fields[0], nil
		case len(fields) >= 2 && strings.TrimPrefix(fields[1], "*") == fileName:
			return fields[0], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading checksum: %w", err)
	}
	return "", fmt.Errorf("no checksum listed for %s", fileName)
}

// Extract unpacks the archive into binDir and returns the reference binary.
func (f *Fetcher) Extract(ctx context.Context, archive, binDir string) (string, error) {
	if err := f.profile.Extract(ctx, f.env, archive, binDir); err != nil {
		return "", models.NewError(models.ErrExtractionFailed, err)
	}
	exe, err := f.profile.LocateBinary(binDir)
	if err != nil {
		return "", models.NewError(models.ErrExtractionFailed, err)
	}
	return exe, nil
}

// Fetch locates, downloads and extracts the reference binary for v.
func (f *Fetcher) Fetch(ctx context.Context, v models.VersionDescriptor, binDir string) (string, error) {
	a, err := f.Locate(ctx, v)
	if err != nil {
		return "", err
	}
	archive, err := f.Download(ctx, a)
	if err != nil {
		return "", err
	}
	exe, err := f.Extract(ctx, archive, binDir)
	if err != nil {
		return "", err
	}
	slog.Info("reference binary ready", "path", exe)
	return exe, nil
}
