package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CommandResult is the captured outcome of one subprocess run.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// CommandExecutor runs toolchain subprocesses with bounded time.
type CommandExecutor struct {
	Dir     string
	Env     []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewCommandExecutor creates a command executor rooted at dir.
func NewCommandExecutor(dir string, timeout time.Duration, logger *slog.Logger) *CommandExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandExecutor{Dir: dir, Timeout: timeout, Logger: logger}
}

// ExecuteCommand runs name with args, feeding stdin, and waits for it to exit.
// A non-zero exit is reported through CommandResult, not as an error; errors are
// reserved for commands that could not be started or were cut off by the timeout.
func (ce *CommandExecutor) ExecuteCommand(ctx context.Context, stdin string, name string, args ...string) (*CommandResult, error) {
	if name == "" {
		return nil, fmt.Errorf("empty command provided")
	}

	if ce.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = ce.Dir
	if len(ce.Env) > 0 {
		cmd.Env = append(cmd.Environ(), ce.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	ce.Logger.Debug("command finished",
		"command", name,
		"args", strings.Join(args, " "),
		"duration_ms", result.Duration.Milliseconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		result.ExitCode = -1
		return result, fmt.Errorf("command %s interrupted: %w", name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("command %s failed to start: %w", name, err)
	}
	return result, nil
}
