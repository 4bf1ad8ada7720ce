// Package fake provides a recording Environment for tests of code that
// drives external tools.
package fake

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/spachava753/buildbpy/internal/environment"
)

// Call is one recorded command invocation.
type Call struct {
	Name  string
	Args  []string
	Dir   string
	Env   map[string]string
	Stdin string
}

// Line returns the command and its arguments joined by spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a handled command produces.
type Result struct {
	Stdout string
	Stderr string
	Code   int
	Err    error
}

// Handler produces the result for a call. Returning ok=false falls through
// to the next handler.
type Handler func(c Call) (Result, bool)

// Environment records every call and answers with the first matching handler.
// Calls without a matching handler succeed with empty output.
type Environment struct {
	mu       sync.Mutex
	calls    []Call
	handlers []Handler
}

// New creates a fake environment.
func New(handlers ...Handler) *Environment {
	return &Environment{handlers: handlers}
}

// Handle appends a handler.
func (e *Environment) Handle(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// On registers a fixed result for calls whose command line starts with prefix.
func (e *Environment) On(prefix string, r Result) {
	e.Handle(func(c Call) (Result, bool) {
		if strings.HasPrefix(c.Line(), prefix) {
			return r, true
		}
		return Result{}, false
	})
}

// Name returns the environment name.
func (e *Environment) Name() string {
	return "fake"
}

// Exec records the call and writes the handler's output.
func (e *Environment) Exec(ctx context.Context, name string, args []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	c := Call{Name: name, Args: append([]string(nil), args...), Dir: opts.WorkDir, Env: opts.Env}
	if opts.Stdin != nil {
		data, _ := io.ReadAll(opts.Stdin)
		c.Stdin = string(data)
	}

	e.mu.Lock()
	e.calls = append(e.calls, c)
	handlers := append([]Handler(nil), e.handlers...)
	e.mu.Unlock()

	for _, h := range handlers {
		r, ok := h(c)
		if !ok {
			continue
		}
		if stdout != nil && r.Stdout != "" {
			io.WriteString(stdout, r.Stdout)
		}
		if stderr != nil && r.Stderr != "" {
			io.WriteString(stderr, r.Stderr)
		}
		return r.Code, r.Err
	}
	return 0, nil
}

// Calls returns a copy of the recorded calls.
func (e *Environment) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Lines returns the recorded command lines.
func (e *Environment) Lines() []string {
	var lines []string
	for _, c := range e.Calls() {
		lines = append(lines, c.Line())
	}
	return lines
}
