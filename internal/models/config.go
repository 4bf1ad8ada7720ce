package models

// Config represents the parsed buildbpy.toml configuration.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Download DownloadConfig `toml:"download"`
	Build    BuildConfig    `toml:"build"`
	Publish  PublishConfig  `toml:"publish"`
	Retry    RetryConfig    `toml:"retry"`
}

type UpstreamConfig struct {
	Repo      string `toml:"repo"`       // default: blender/blender
	GitURL    string `toml:"git_url"`    // default: https://github.com/blender/blender.git
	APIURL    string `toml:"api_url"`    // default: https://api.github.com
	FeedURL   string `toml:"feed_url"`   // default: builder.blender.org daily JSON feed
	MirrorURL string `toml:"mirror_url"` // default: OCF release mirror
	SVNURL    string `toml:"svn_url"`    // default: https://svn.blender.org/svnroot/bf-blender
}

type DownloadConfig struct {
	TimeoutSec float64 `toml:"timeout_sec"` // default: 1800.0
	MaxSize    string  `toml:"max_size"`    // e.g. "4G"; empty or "0" for no limit
	VerifyHash bool    `toml:"verify_hash"` // default: true
}

type BuildConfig struct {
	Python string `toml:"python"` // interpreter used for stubs, packaging and install
}

type PublishConfig struct {
	Repo             string  `toml:"repo"`       // default: michaelgold/buildbpy
	UploadURL        string  `toml:"upload_url"` // default: https://uploads.github.com
	TargetCommitish  string  `toml:"target_commitish"`
	IndexPath        string  `toml:"index_path"`
	IndexTitle       string  `toml:"index_title"`
	IndexConcurrency int     `toml:"index_concurrency"`
	TimeoutSec       float64 `toml:"timeout_sec"`
}

type RetryConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialDelayMs int     `toml:"initial_delay_ms"`
	MaxDelayMs     int     `toml:"max_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
}
