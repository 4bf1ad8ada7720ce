package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/util"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() models.Config {
	return models.Config{
		Upstream: models.UpstreamConfig{
			Repo:      "blender/blender",
			GitURL:    "https://github.com/blender/blender.git",
			APIURL:    "https://api.github.com",
			FeedURL:   "https://builder.blender.org/download/daily/?format=json&v=1",
			MirrorURL: "https://mirrors.ocf.berkeley.edu/blender/release",
			SVNURL:    "https://svn.blender.org/svnroot/bf-blender",
		},
		Download: models.DownloadConfig{
			TimeoutSec: 1800.0,
			MaxSize:    "4G",
			VerifyHash: true,
		},
		Build: models.BuildConfig{
			Python: defaultPython(),
		},
		Publish: models.PublishConfig{
			Repo:             "michaelgold/buildbpy",
			UploadURL:        "https://uploads.github.com",
			TargetCommitish:  "main",
			IndexPath:        "docs/index.html",
			IndexTitle:       "bpy",
			IndexConcurrency: 4,
			TimeoutSec:       600.0,
		},
		Retry: models.RetryConfig{
			MaxAttempts:    5,
			InitialDelayMs: 1000,
			MaxDelayMs:     30000,
			Multiplier:     2.0,
		},
	}
}

func defaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// LoadConfig loads buildbpy.toml from path. A missing file yields the defaults.
func LoadConfig(path string) (models.Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, models.NewError(models.ErrConfigInvalid, fmt.Errorf("reading config: %w", err))
	}

	cfg, err = ParseConfig(string(data))
	if err != nil {
		return cfg, models.NewError(models.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// ParseConfig decodes a TOML document over the defaults.
func ParseConfig(data string) (models.Config, error) {
	cfg := DefaultConfig()

	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values the pipeline cannot run without.
func Validate(cfg models.Config) error {
	if cfg.Upstream.Repo == "" || !strings.Contains(cfg.Upstream.Repo, "/") {
		return fmt.Errorf("upstream.repo must be owner/name, got %q", cfg.Upstream.Repo)
	}
	if cfg.Publish.Repo == "" || !strings.Contains(cfg.Publish.Repo, "/") {
		return fmt.Errorf("publish.repo must be owner/name, got %q", cfg.Publish.Repo)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1, got %g", cfg.Retry.Multiplier)
	}
	if _, err := MaxDownloadBytes(cfg); err != nil {
		return err
	}
	if cfg.Build.Python == "" {
		return fmt.Errorf("build.python must not be empty")
	}
	if cfg.Publish.IndexConcurrency < 1 {
		return fmt.Errorf("publish.index_concurrency must be at least 1, got %d", cfg.Publish.IndexConcurrency)
	}
	return nil
}

// MaxDownloadBytes returns the download size limit in bytes, 0 for none.
func MaxDownloadBytes(cfg models.Config) (int64, error) {
	n, err := util.ParseSize(cfg.Download.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("download.max_size: %w", err)
	}
	return n, nil
}
