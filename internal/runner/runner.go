// Package runner executes external commands with captured output. Both the
// jj backend and the land workflow shell out (jj, git); this keeps the
// spawning and draining logic in one place.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds the outcome of a completed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands rooted at a working directory.
type Runner struct {
	dir string
}

// New creates a runner whose commands execute in dir.
func New(dir string) *Runner {
	return &Runner{dir: dir}
}

// Dir returns the working directory commands execute in.
func (r *Runner) Dir() string {
	return r.dir
}

// Run executes name with args and waits for it to finish. Output pipes are
// fully drained before the result is returned. A non-zero exit status is
// returned as an error that includes the command's stderr.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return res, fmt.Errorf("failed to run %s: %w", name, err)
		}
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s %s exited with code %d: %s",
			name, strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// Output runs the command and returns its stdout with surrounding
// whitespace trimmed.
func (r *Runner) Output(ctx context.Context, name string, args ...string) (string, error) {
	res, err := r.Run(ctx, name, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Proc is a command that has been started but not yet waited on.
type Proc struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

// Start launches name with args without waiting for completion. The caller
// must call Wait exactly once.
func (r *Runner) Start(ctx context.Context, name string, args ...string) (*Proc, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &Proc{cmd: cmd, stderr: &stderr}, nil
}

// Wait blocks until the process exits. A non-zero exit status is returned
// as an error including the captured stderr.
func (p *Proc) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("%s failed: %s", p.cmd.Path, strings.TrimSpace(p.stderr.String()))
	}
	return nil
}
