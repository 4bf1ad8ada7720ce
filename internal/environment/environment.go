package environment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// Environment runs external tools (git, svn, make, python, hdiutil) on
// behalf of the pipeline.
type Environment interface {
	// Name returns the environment name (e.g., "host").
	Name() string

	// Exec runs name with args, streaming stdout and stderr to the provided
	// writers. A process that ran and exited non-zero reports its exit code
	// with a nil error; the error is reserved for processes that could not
	// be started or were cancelled.
	Exec(ctx context.Context, name string, args []string, stdout, stderr io.Writer, opts ExecOptions) (int, error)
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	WorkDir string
	Stdin   io.Reader
}

// Run executes a command and converts a non-zero exit into an error.
func Run(ctx context.Context, env Environment, stdout, stderr io.Writer, opts ExecOptions, name string, args ...string) error {
	code, err := env.Exec(ctx, name, args, stdout, stderr, opts)
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	if code != 0 {
		return &ExitError{Command: commandLine(name, args), Code: code}
	}
	return nil
}

// Output executes a command and returns its trimmed standard output.
func Output(ctx context.Context, env Environment, opts ExecOptions, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	code, err := env.Exec(ctx, name, args, &stdout, &stderr, opts)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	if code != 0 {
		return "", &ExitError{Command: commandLine(name, args), Code: code, Stderr: strings.TrimSpace(stderr.String())}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
