package deps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"github.com/spachava753/buildbpy/internal/platform"
	"gopkg.in/yaml.v3"
)

// StampFile records which release line the library directory was fetched for.
const StampFile = ".buildbpy-lib.yaml"

// Stamp is the content of StampFile.
type Stamp struct {
	Major string              `yaml:"major"`
	Cycle models.ReleaseCycle `yaml:"cycle"`
	URL   string              `yaml:"url,omitempty"`
}

// Provisioner makes the native libraries available before the build.
type Provisioner struct {
	env     environment.Environment
	profile platform.Profile
	svnURL  string
}

// New creates a provisioner.
func New(env environment.Environment, profile platform.Profile, svnURL string) *Provisioner {
	return &Provisioner{env: env, profile: profile, svnURL: svnURL}
}

// Ensure provisions libDir unless it already exists. An existing directory
// is trusted as-is: a stamp from another release line only produces a
// warning.
func (p *Provisioner) Ensure(ctx context.Context, repoDir, libDir string, v models.VersionDescriptor) error {
	want := Stamp{Major: v.Major, Cycle: v.Cycle, URL: p.profile.LibraryURL(p.svnURL, v)}

	if _, err := os.Stat(libDir); err == nil {
		p.checkStamp(libDir, want)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return models.NewError(models.ErrProvisioningFailed, fmt.Errorf("checking %s: %w", libDir, err))
	}

	if err := os.MkdirAll(filepath.Dir(libDir), 0755); err != nil {
		return models.NewError(models.ErrProvisioningFailed, fmt.Errorf("creating library root: %w", err))
	}

	err := p.profile.ProvisionDependencies(ctx, p.env, platform.ProvisionRequest{
		RepoDir: repoDir,
		LibDir:  libDir,
		SVNURL:  p.svnURL,
		Version: v,
	})
	if err != nil {
		// Leave no partial checkout behind so the next run retries.
		os.RemoveAll(libDir)
		return models.NewError(models.ErrProvisioningFailed, err)
	}

	if err := writeStamp(libDir, want); err != nil {
		slog.Warn("could not record library version", "dir", libDir, "error", err)
	}
	slog.Info("libraries provisioned", "dir", libDir)
	return nil
}

func (p *Provisioner) checkStamp(libDir string, want Stamp) {
	got, err := readStamp(libDir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("library directory present without stamp, skipping provisioning", "dir", libDir)
		return
	}
	if err != nil {
		slog.Warn("unreadable library stamp", "dir", libDir, "error", err)
		return
	}
	if got.Major != want.Major || got.Cycle.IsRelease() != want.Cycle.IsRelease() {
		slog.Warn("library directory was provisioned for a different release, rerun with --clear-lib to refresh it",
			"dir", libDir, "have", got.Major, "have_cycle", got.Cycle, "want", want.Major, "want_cycle", want.Cycle)
		return
	}
	slog.Debug("libraries already provisioned", "dir", libDir)
}

func readStamp(libDir string) (Stamp, error) {
	var s Stamp
	data, err := os.ReadFile(filepath.Join(libDir, StampFile))
	if err != nil {
		return s, err
	}
	err = yaml.Unmarshal(data, &s)
	return s, err
}

func writeStamp(libDir string, s Stamp) error {
	if err := os.MkdirAll(libDir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(libDir, StampFile), data, paths.DefaultFileMode)
}
