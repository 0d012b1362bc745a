// Package executor runs the external decision and synthesis binaries.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrNotFound is returned (wrapped) when the binary cannot be located.
var ErrNotFound = errors.New("executable not found")

// CommandResult holds the output of a single command execution.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// CommandExecutor abstracts real vs scripted command execution.
// Implementations: RealExecutor, and fakes in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, args []string) (*CommandResult, error)
}

// RealExecutor runs commands via os/exec. A non-zero Timeout bounds each run.
type RealExecutor struct {
	Timeout time.Duration
}

// Execute runs a command with the given arguments. A missing binary yields
// ErrNotFound; a non-zero exit code is reported in the result, not as an error.
func (r *RealExecutor) Execute(ctx context.Context, command string, args []string) (*CommandResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if isExecNotFound(err) {
		return nil, fmt.Errorf("execute %q: %w: %v", command, ErrNotFound, err)
	}

	res := &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if res.TimedOut {
			return res, nil
		}
		return nil, fmt.Errorf("execute command %q: %w", command, err)
	}
	return res, nil
}

// isExecNotFound returns true when the error indicates the executable was not found.
func isExecNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr)
}
