// Package process runs external commands on the local machine and captures
// their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes to close after the
// process has been killed by its context.
const waitDelay = 5 * time.Second

// Result holds the output from a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a process and waits for it to finish.
//
// A non-zero exit is reported through Result.ExitCode with a nil error. An
// error is returned only when the process could not be started or was
// interrupted by ctx; in the latter case the partial Result is returned too.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Local runs processes directly, without a shell.
type Local struct {
	env []string
}

// Option configures the local runner.
type Option func(*Local)

// WithEnv adds an environment variable on top of the inherited environment.
func WithEnv(key, value string) Option {
	return func(l *Local) {
		l.env = append(l.env, fmt.Sprintf("%s=%s", key, value))
	}
}

// New creates a new local runner.
func New(opts ...Option) *Local {
	l := &Local{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes name with args and returns its captured output.
func (l *Local) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	if len(l.env) > 0 {
		cmd.Env = append(cmd.Environ(), l.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	// Killed by the context: the exit code is meaningless
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("process interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// Command failed to start
	return nil, fmt.Errorf("failed to start %s: %w", name, err)
}

// CommandLine renders name and args as a single shell-style line, quoting any
// argument that would otherwise be split or expanded.
func CommandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(name))
	for _, arg := range args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}

// Ensure Local implements the Runner interface.
var _ Runner = (*Local)(nil)
