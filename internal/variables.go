package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Name is the program name used in usage text and directory names.
const Name = "buildbpy"

// Set with -ldflags "-X github.com/spachava753/buildbpy/internal.version=...".
// The release workflow sets all three; a binary missing any of them is a
// local build.
var (
	version   = ""
	stage     = ""
	gitCommit = ""
)

const undefined = "(undefined)"

// BuildInfo describes how the running binary was built.
type BuildInfo struct {
	Version string // without a "v" prefix
	Stage   string // branch the release workflow built from
	Commit  string
	Local   bool
}

// Build returns the link-time build information. Unset fields read
// "(undefined)".
func Build() BuildInfo {
	v := strings.TrimSpace(version)
	s := strings.TrimSpace(stage)
	c := strings.TrimSpace(gitCommit)

	return BuildInfo{
		Version: orUndefined(strings.TrimPrefix(strings.ToLower(v), "v")),
		Stage:   orUndefined(strings.ToLower(s)),
		Commit:  orUndefined(c),
		Local:   v == "" || s == "" || c == "",
	}
}

func orUndefined(s string) string {
	if s == "" {
		return undefined
	}
	return s
}

// String formats the build as "<version>[+<stage>] <commit> [<os>/<arch>]".
// Builds from main omit the stage and local builds print "(local)".
func (b BuildInfo) String() string {
	if b.Local {
		return "(local)"
	}
	v := b.Version
	if b.Stage != "main" {
		v += "+" + b.Stage
	}
	return fmt.Sprintf("%s %s [%s/%s]", v, b.Commit, runtime.GOOS, runtime.GOARCH)
}

// VersionString returns Build().String().
func VersionString() string {
	return Build().String()
}
