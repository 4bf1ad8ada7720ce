package cli

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/pipeline"
)

func parse(t *testing.T, args ...string) (*kong.Context, error) {
	t.Helper()
	prev := RootCmd
	t.Cleanup(func() { RootCmd = prev })

	parser, err := kong.New(&RootCmd, kong.Name("buildbpy"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	return parser.Parse(args)
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want models.Target
	}{
		{"tag", []string{"build", "--tag", "v4.2.0"}, models.Target{Tag: "v4.2.0"}},
		{"commit", []string{"build", "--commit", "a51f2935"}, models.Target{Commit: "a51f2935"}},
		{"branch", []string{"build", "--branch", "blender-v4.2-release"}, models.Target{Branch: "blender-v4.2-release"}},
		{"daily prefix", []string{"build", "--daily", "4.3"}, models.Target{DailyPrefix: "4.3"}},
		{"latest daily", []string{"build", "--latest-daily"}, models.Target{Daily: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := parse(t, tt.args...)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if ctx.Command() != "build" {
				t.Errorf("expected build command, got %q", ctx.Command())
			}
			if diff := cmp.Diff(tt.want, RootCmd.Build.target()); diff != "" {
				t.Errorf("target mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildFlags(t *testing.T) {
	_, err := parse(t, "--debug", "--root", "/srv/bpy", "build", "--tag", "v4.2.0",
		"--clear-lib", "--clear-cache", "--install", "--publish", "--publish-repo", "someone/bpy-wheels")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := RootCmd.Build
	if !b.ClearLib || !b.ClearCache || !b.Install || !b.Publish || b.PublishRepo != "someone/bpy-wheels" {
		t.Errorf("unexpected build flags %+v", b)
	}
	if !RootCmd.Debug || RootCmd.Root != "/srv/bpy" {
		t.Errorf("unexpected global flags debug=%v root=%q", RootCmd.Debug, RootCmd.Root)
	}
}

func TestBuildConflictingTargets(t *testing.T) {
	if _, err := parse(t, "build", "--tag", "v4.2.0", "--latest-daily"); err == nil {
		t.Error("expected an error for more than one target")
	}
}

func TestWriteCheck(t *testing.T) {
	var buf bytes.Buffer
	err := writeCheck(&buf, pipeline.CheckResult{LatestTag: "v4.2.1", NewTag: true})
	if err != nil {
		t.Fatal(err)
	}
	want := "new_tag=true\nnew_commit=false\nlatest_tag=v4.2.1\n"
	if buf.String() != want {
		t.Errorf("writeCheck() = %q, want %q", buf.String(), want)
	}
}
