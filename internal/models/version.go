package models

import (
	"fmt"
	"strings"
)

// ReleaseCycle is the maturity stage of a Blender version.
type ReleaseCycle string

const (
	CycleRelease ReleaseCycle = "release"
	CycleRC      ReleaseCycle = "rc"
	CycleAlpha   ReleaseCycle = "alpha"
	CycleBeta    ReleaseCycle = "beta"
	CycleDaily   ReleaseCycle = "daily"
)

// NormalizeCycle maps the BLENDER_VERSION_CYCLE of the version header onto
// ReleaseCycle. Unrecognized names map to CycleDaily.
func NormalizeCycle(s string) ReleaseCycle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "release":
		return CycleRelease
	case "alpha":
		return CycleAlpha
	case "beta":
		return CycleBeta
	case "rc", "candidate":
		return CycleRC
	default:
		return CycleDaily
	}
}

// FeedCycle maps the release_cycle of a nightly feed entry onto
// ReleaseCycle. Nightlies are never release builds, so stable and lts
// branch builds map to CycleDaily along with unknown names.
func FeedCycle(s string) ReleaseCycle {
	if c := NormalizeCycle(s); c != CycleRelease {
		return c
	}
	return CycleDaily
}

// IsRelease reports whether the cycle is served from the release mirror.
func (c ReleaseCycle) IsRelease() bool {
	return c == CycleRelease
}

// VersionDescriptor identifies the exact Blender version being built.
// Construct it with NewVersionDescriptor; it is not mutated afterwards.
type VersionDescriptor struct {
	Major           string       `json:"major" yaml:"major"` // "X.Y"
	Minor           string       `json:"minor" yaml:"minor"` // "X.Y.Z"
	Cycle           ReleaseCycle `json:"cycle" yaml:"cycle"`
	CommitHash      string       `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	CommitHashShort string       `json:"commit_hash_short,omitempty" yaml:"commit_hash_short,omitempty"`
	Daily           *DailyBuild  `json:"daily,omitempty" yaml:"-"` // set for daily targets only
}

const shortHashLen = 12

// NewVersionDescriptor validates the version parts and derives the short hash.
func NewVersionDescriptor(major, minor string, cycle ReleaseCycle, commit string, daily *DailyBuild) (VersionDescriptor, error) {
	if major == "" || minor == "" {
		return VersionDescriptor{}, fmt.Errorf("version requires major and minor, got %q and %q", major, minor)
	}
	if minor != major && !strings.HasPrefix(minor, major+".") {
		return VersionDescriptor{}, fmt.Errorf("major version %q is not a prefix of %q", major, minor)
	}
	if cycle == "" {
		cycle = CycleRelease
	}
	return VersionDescriptor{
		Major:           major,
		Minor:           minor,
		Cycle:           cycle,
		CommitHash:      commit,
		CommitHashShort: ShortHash(commit),
		Daily:           daily,
	}, nil
}

// ShortHash truncates a commit hash to the 12 characters used in build names.
func ShortHash(commit string) string {
	if len(commit) > shortHashLen {
		return commit[:shortHashLen]
	}
	return commit
}

// MajorOf returns the "X.Y" prefix of a dotted version string.
func MajorOf(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

func (v VersionDescriptor) String() string {
	s := v.Minor + "-" + string(v.Cycle)
	if v.CommitHashShort != "" {
		s += "+" + v.CommitHashShort
	}
	return s
}

// DailyBuild is one entry of the builder.blender.org nightly feed.
type DailyBuild struct {
	App           string `json:"app"`
	URL           string `json:"url"`
	Version       string `json:"version"`
	Branch        string `json:"branch"`
	Patch         string `json:"patch,omitempty"`
	Hash          string `json:"hash"` // short commit hash the build was made from
	Platform      string `json:"platform"`
	Architecture  string `json:"architecture"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileMtime     int64  `json:"file_mtime"`
	FileExtension string `json:"file_extension"`
	ReleaseCycle  string `json:"release_cycle"`
}

// FeedFilter selects the feed entries built for one host.
type FeedFilter struct {
	Platform     string
	Architecture string
	Extension    string
}

// Matches reports whether b was built for the filter's host.
func (f FeedFilter) Matches(b DailyBuild) bool {
	return b.Platform == f.Platform &&
		b.Architecture == f.Architecture &&
		b.FileExtension == f.Extension
}

// TargetKind names which kind of version selector a Target carries.
type TargetKind string

const (
	TargetTag    TargetKind = "tag"
	TargetCommit TargetKind = "commit"
	TargetBranch TargetKind = "branch"
	TargetDaily  TargetKind = "daily"
)

// Target is the operator's version selector. Exactly one of Tag, Commit,
// Branch or Daily must be set. DailyPrefix implies Daily.
type Target struct {
	Tag         string
	Commit      string
	Branch      string
	Daily       bool
	DailyPrefix string
}

// Kind returns the selected target kind, failing with ErrNoTargetSpecified or
// ErrConflictingTargets when the selector is not exactly one.
func (t Target) Kind() (TargetKind, error) {
	var kinds []TargetKind
	if t.Tag != "" {
		kinds = append(kinds, TargetTag)
	}
	if t.Commit != "" {
		kinds = append(kinds, TargetCommit)
	}
	if t.Branch != "" {
		kinds = append(kinds, TargetBranch)
	}
	if t.Daily || t.DailyPrefix != "" {
		kinds = append(kinds, TargetDaily)
	}

	switch len(kinds) {
	case 0:
		return "", Errorf(ErrNoTargetSpecified, "one of tag, commit, branch or daily is required")
	case 1:
		return kinds[0], nil
	default:
		return "", Errorf(ErrConflictingTargets, "only one target may be given, got %v", kinds)
	}
}
