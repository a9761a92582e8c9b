package shell

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	defaultTimeout = 2 * time.Minute
	// waitDelay bounds how long output pipes held by orphaned children may delay Run.
	waitDelay = time.Second
)

// Runner runs commands with the local sh.
type Runner struct {
	logger  *slog.Logger
	workdir string
	timeout time.Duration
}

// New creates a local command runner. A zero timeout means the default of two minutes.
func New(logger *slog.Logger, workdir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Runner{
		logger:  logger.With("component", "shell-runner"),
		workdir: workdir,
		timeout: timeout,
	}
}

// Run executes command with sh -c and returns its stdout.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = r.workdir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	r.logger.DebugContext(ctx, "command finished", "command", command, "duration", time.Since(start))

	if err == nil {
		return stdout.String(), nil
	}

	cmdErr := &job.CommandError{
		Command:  command,
		ExitCode: -1,
		Stdout:   stdout.String() + stderr.String(),
		Err:      err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}

	return "", cmdErr
}
