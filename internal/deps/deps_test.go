package deps

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spachava753/buildbpy/internal/environment/fake"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/platform"
)

func linux(t *testing.T) platform.Profile {
	t.Helper()
	p, err := platform.Lookup(models.PlatformDescriptor{OS: models.OSLinux, Arch: "amd64"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func release(t *testing.T, major, minor string) models.VersionDescriptor {
	t.Helper()
	v, err := models.NewVersionDescriptor(major, minor, models.CycleRelease, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// captureLogs redirects the default logger for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestEnsure_Provisions(t *testing.T) {
	libDir := filepath.Join(t.TempDir(), "lib", "linux_x86_64_glibc_228")
	env := fake.New()

	p := New(env, linux(t), "https://svn.blender.org/svnroot/bf-blender")
	if err := p.Ensure(context.Background(), "/src/blender", libDir, release(t, "4.2", "4.2.0")); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	lines := env.Lines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "svn checkout https://svn.blender.org/svnroot/bf-blender/tags/blender-4.2-release/") {
		t.Errorf("unexpected commands %v", lines)
	}

	s, err := readStamp(libDir)
	if err != nil {
		t.Fatalf("readStamp: %v", err)
	}
	if s.Major != "4.2" || s.Cycle != models.CycleRelease {
		t.Errorf("unexpected stamp %+v", s)
	}
}

func TestEnsure_PresentIsNoOp(t *testing.T) {
	libDir := t.TempDir()
	env := fake.New()

	p := New(env, linux(t), "https://svn.blender.org/svnroot/bf-blender")
	if err := p.Ensure(context.Background(), "/src/blender", libDir, release(t, "4.2", "4.2.0")); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(env.Calls()) != 0 {
		t.Errorf("expected no commands for an existing library dir, got %v", env.Lines())
	}
}

func TestEnsure_StaleStampWarns(t *testing.T) {
	libDir := t.TempDir()
	if err := writeStamp(libDir, Stamp{Major: "4.1", Cycle: models.CycleRelease}); err != nil {
		t.Fatal(err)
	}
	logs := captureLogs(t)
	env := fake.New()

	p := New(env, linux(t), "https://svn.blender.org/svnroot/bf-blender")
	if err := p.Ensure(context.Background(), "/src/blender", libDir, release(t, "4.2", "4.2.0")); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(env.Calls()) != 0 {
		t.Error("a stale library dir is still not re-provisioned")
	}
	if !strings.Contains(logs.String(), "different release") {
		t.Errorf("expected a stale library warning, got logs:\n%s", logs)
	}
}

func TestEnsure_FailureCleansUp(t *testing.T) {
	libDir := filepath.Join(t.TempDir(), "lib", "linux_x86_64_glibc_228")
	env := fake.New()
	env.Handle(func(c fake.Call) (fake.Result, bool) {
		// svn creates the target before failing part way through.
		os.MkdirAll(c.Args[len(c.Args)-1], 0755)
		return fake.Result{Code: 1}, true
	})

	p := New(env, linux(t), "https://svn.blender.org/svnroot/bf-blender")
	err := p.Ensure(context.Background(), "/src/blender", libDir, release(t, "4.2", "4.2.0"))
	if models.KindOf(err) != models.ErrProvisioningFailed {
		t.Fatalf("expected provisioning_failed, got %v", err)
	}
	if _, err := os.Stat(libDir); !os.IsNotExist(err) {
		t.Error("expected partial library dir to be removed")
	}
}
