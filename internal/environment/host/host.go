package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spachava753/buildbpy/internal/environment"
)

// Environment runs commands directly on the build host.
type Environment struct{}

// New creates a host environment.
func New() *Environment {
	return &Environment{}
}

// Name returns the environment name.
func (e *Environment) Name() string {
	return "host"
}

// Exec executes a command on the host. Nil writers inherit the process's
// own stdout and stderr so long build tools stream their progress.
func (e *Environment) Exec(ctx context.Context, name string, args []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.WorkDir
	cmd.Stdin = opts.Stdin

	cmd.Stdout = stdout
	if stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = stderr
	if stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	slog.Debug("exec", "cmd", name, "args", args, "dir", opts.WorkDir)

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("command cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}
