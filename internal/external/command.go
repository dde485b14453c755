// Package external runs the opaque helper programs convocache delegates to
// (range scanner, day builder) under a uniform exit/timeout/stderr contract.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 2 * time.Second

// Command is an external program with fixed leading arguments and a per-invocation timeout.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration

	// FailOnStderr treats any non-blank stderr as a failure even when the exit status is 0.
	FailOnStderr bool
}

// Output is what a clean run printed.
type Output struct {
	Stdout string
	Stderr string
}

// Parse splits a command line on whitespace into program and leading arguments.
// Quoting is not supported; wrap complex invocations in a script.
func Parse(cmdline string, timeout time.Duration) (*Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}
	return &Command{Path: fields[0], Args: fields[1:], Timeout: timeout}, nil
}

// String renders the command for logs.
func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Run executes the command with extra args appended. step and target only
// label the returned *core.AdapterError. Any non-clean termination is an error:
// non-zero exit, timeout, cancellation, failure to start, or (with
// FailOnStderr) diagnostic output.
func (c *Command) Run(ctx context.Context, step, target string, args ...string) (Output, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.Path, append(append([]string{}, c.Args...), args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		aerr := &core.AdapterError{Step: step, Target: target, ExitCode: -1, Stderr: out.Stderr}

		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			aerr.Err = ctx.Err()
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			aerr.TimedOut = true
			aerr.Err = fmt.Errorf("exceeded %s", c.Timeout)
		case errors.As(err, &exitErr):
			aerr.ExitCode = exitErr.ExitCode()
		default:
			aerr.Err = err
		}
		return out, aerr
	}

	if c.FailOnStderr && strings.TrimSpace(out.Stderr) != "" {
		return out, &core.AdapterError{
			Step:   step,
			Target: target,
			Stderr: out.Stderr,
			Err:    errors.New("unexpected diagnostic output"),
		}
	}

	return out, nil
}
