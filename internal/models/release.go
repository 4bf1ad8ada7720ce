package models

import "time"

// ReleaseAsset is a published wheel. It is identified by (repo, TagName, AssetName).
type ReleaseAsset struct {
	TagName     string `json:"tag_name"`
	AssetName   string `json:"asset_name"`
	DownloadURL string `json:"download_url"`
}

// BuildRecord is one completed pipeline run.
type BuildRecord struct {
	Tag       string       `yaml:"tag,omitempty"`
	Version   string       `yaml:"version"`
	Cycle     ReleaseCycle `yaml:"cycle"`
	Commit    string       `yaml:"commit,omitempty"`
	Wheels    []string     `yaml:"wheels"`
	Published bool         `yaml:"published"`
	BuiltAt   time.Time    `yaml:"built_at"`
}

// State is the persisted record of what has been built and what upstream
// looked like at the last check.
type State struct {
	LatestTag    string        `yaml:"latest_tag"`
	LatestCommit string        `yaml:"latest_commit"`
	Builds       []BuildRecord `yaml:"builds,omitempty"`
}
