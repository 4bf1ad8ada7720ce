package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"github.com/spachava753/buildbpy/internal/platform"
)

// Build phases, in the order the pipeline runs them.
const (
	PhaseStubs   = "stubs"
	PhaseUpdate  = "update"
	PhaseBpy     = "bpy"
	PhasePackage = "package"
	PhaseInstall = "install"
)

// Options locates the directories a build reads and writes.
type Options struct {
	RepoDir     string
	BuildDir    string
	WheelOutput string
	PythonAPI   string

	// LogDir receives one <phase>.log per phase. Empty disables phase logs.
	LogDir string

	// Python is the interpreter used for stub generation, packaging and
	// install.
	Python string

	// Stdout and Stderr receive the live output of every phase in addition
	// to the phase log.
	Stdout io.Writer
	Stderr io.Writer
}

// Driver runs the Blender build and packages its output.
type Driver struct {
	env     environment.Environment
	profile platform.Profile
	opts    Options
}

// New creates a driver.
func New(env environment.Environment, profile platform.Profile, opts Options) *Driver {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	return &Driver{env: env, profile: profile, opts: opts}
}

// WheelDirectory returns where the build leaves the bpy module.
func (d *Driver) WheelDirectory() string {
	return d.profile.WheelDirectory(d.opts.BuildDir)
}

// Build runs the update phase and then the bpy phase in the source
// checkout. Both block until the tool exits and have no timeout.
func (d *Driver) Build(ctx context.Context) error {
	for _, phase := range []string{PhaseUpdate, PhaseBpy} {
		if err := d.RunPhase(ctx, phase); err != nil {
			return err
		}
	}
	return nil
}

// RunPhase runs a single make phase.
func (d *Driver) RunPhase(ctx context.Context, phase string) error {
	name, args, stdin := d.profile.Command(d.opts.RepoDir, phase)
	slog.Info("running build phase", "phase", phase, "repo", d.opts.RepoDir)
	err := d.run(ctx, phase, environment.ExecOptions{WorkDir: d.opts.RepoDir, Stdin: stdin}, name, args...)
	if err != nil {
		return models.PhaseError(models.ErrBuildFailed, phase, err)
	}
	return nil
}

// GenerateStubs dumps the Python API reference with the reference binary
// and converts it into type stubs inside the wheel directory.
func (d *Driver) GenerateStubs(ctx context.Context, blenderBin string) error {
	wheelDir := d.WheelDirectory()
	if err := os.MkdirAll(wheelDir, 0755); err != nil {
		return models.PhaseError(models.ErrBuildFailed, PhaseStubs, err)
	}

	slog.Info("generating python api reference", "binary", blenderBin, "output", d.opts.PythonAPI)
	err := d.run(ctx, PhaseStubs, environment.ExecOptions{WorkDir: d.opts.RepoDir}, blenderBin,
		"--background", "--factory-startup", "-noaudio",
		"--python", filepath.Join(d.opts.RepoDir, "doc", "python_api", "sphinx_doc_gen.py"),
		"--", "--output="+d.opts.PythonAPI)
	if err != nil {
		return models.PhaseError(models.ErrBuildFailed, PhaseStubs, fmt.Errorf("generating api reference: %w", err))
	}

	slog.Info("generating stubs", "wheel_dir", wheelDir)
	err = d.run(ctx, PhaseStubs, environment.ExecOptions{}, d.opts.Python,
		"-m", "bpystubgen", filepath.Join(d.opts.PythonAPI, "sphinx-in"), wheelDir)
	if err != nil {
		return models.PhaseError(models.ErrBuildFailed, PhaseStubs, fmt.Errorf("bpystubgen: %w", err))
	}
	return nil
}

// Package builds the wheel from the build output and returns the paths of
// the produced wheels. Wheels left over from earlier runs are removed first.
func (d *Driver) Package(ctx context.Context) ([]string, error) {
	wheelDir := d.WheelDirectory()
	for _, dir := range []string{wheelDir, d.opts.WheelOutput} {
		if err := removeWheels(dir); err != nil {
			return nil, models.NewError(models.ErrPackagingFailed, err)
		}
	}
	if err := os.MkdirAll(d.opts.WheelOutput, 0755); err != nil {
		return nil, models.NewError(models.ErrPackagingFailed, err)
	}

	script := filepath.Join(d.opts.RepoDir, "build_files", "utils", "make_bpy_wheel.py")
	slog.Info("packaging wheel", "from", wheelDir, "to", d.opts.WheelOutput)
	err := d.run(ctx, PhasePackage, environment.ExecOptions{WorkDir: d.opts.RepoDir}, d.opts.Python,
		script, wheelDir, "--output-dir", d.opts.WheelOutput)
	if err != nil {
		return nil, models.PhaseError(models.ErrPackagingFailed, PhasePackage, err)
	}

	wheels, err := filepath.Glob(filepath.Join(d.opts.WheelOutput, "*.whl"))
	if err != nil {
		return nil, models.NewError(models.ErrPackagingFailed, err)
	}
	if len(wheels) == 0 {
		return nil, models.Errorf(models.ErrPackagingFailed, "no wheel produced in %s", d.opts.WheelOutput)
	}
	slices.Sort(wheels)
	for _, w := range wheels {
		slog.Info("wheel built", "path", w)
	}
	return wheels, nil
}

// Install force-reinstalls the wheels into the configured interpreter.
func (d *Driver) Install(ctx context.Context, wheels []string) error {
	for _, w := range wheels {
		slog.Info("installing wheel", "path", w, "python", d.opts.Python)
		err := d.run(ctx, PhaseInstall, environment.ExecOptions{}, d.opts.Python,
			"-m", "pip", "install", "--force-reinstall", "--no-deps", w)
		if err != nil {
			return models.PhaseError(models.ErrPackagingFailed, PhaseInstall, err)
		}
	}
	return nil
}

// run executes a command, teeing its output to the console and to the
// phase log.
func (d *Driver) run(ctx context.Context, phase string, opts environment.ExecOptions, name string, args ...string) error {
	stdout, stderr := d.opts.Stdout, d.opts.Stderr
	if d.opts.LogDir != "" {
		if err := os.MkdirAll(d.opts.LogDir, 0755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(d.opts.LogDir, phase+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, paths.DefaultFileMode)
		if err != nil {
			return fmt.Errorf("opening phase log: %w", err)
		}
		defer f.Close()
		fmt.Fprintf(f, "$ %s\n", commandLine(name, args))
		stdout, stderr = tee(stdout, f), tee(stderr, f)
	}

	slog.Debug("exec", "phase", phase, "cmd", name, "args", args, "dir", opts.WorkDir)
	return environment.Run(ctx, d.env, stdout, stderr, opts, name, args...)
}

func tee(console io.Writer, log io.Writer) io.Writer {
	if console == nil {
		return log
	}
	return io.MultiWriter(console, log)
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func removeWheels(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "*.whl"))
	if err != nil {
		return err
	}
	for _, w := range stale {
		slog.Debug("removing stale wheel", "path", w)
		if err := os.Remove(w); err != nil {
			return fmt.Errorf("removing stale wheel: %w", err)
		}
	}
	return nil
}
