// Package runner starts child processes that share the parent's standard streams.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/deployerr"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
)

// Command describes one child process.
type Command struct {
	Name string
	Args []string
	// Env holds variables added on top of the parent environment.
	Env map[string]string
}

// Parse splits a whitespace-separated command line into a Command.
// Quoting is not supported; arguments with spaces must be appended to Args.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", deployerr.ErrValidation)
	}
	return Command{Name: fields[0], Args: fields[1:]}, nil
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExitError reports a child that ran and exited with a non-zero code.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q failed with exit code %d", e.Command, e.Code)
}

// Unwrap lets errors.Is match deployerr.ErrSubprocess.
func (e *ExitError) Unwrap() error { return deployerr.ErrSubprocess }

// Runner executes commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// DefaultShutdownGrace is how long a child may run after SIGTERM before it is killed.
const DefaultShutdownGrace = 10 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// ShutdownGrace bounds the wait after SIGTERM when the context is cancelled.
	ShutdownGrace time.Duration
	logger        *zap.Logger
	metrics       *metrics.Recorder
}

// NewExecRunner returns a runner wired to the process's own standard streams.
func NewExecRunner(logger *zap.Logger, recorder *metrics.Recorder) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		ShutdownGrace: DefaultShutdownGrace,
		logger:        logger,
		metrics:       recorder,
	}
}

// Run starts cmd and blocks until it exits.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec // commands come from operator config
	c.Stdin = r.Stdin
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	c.Env = MergeEnv(os.Environ(), cmd.Env)
	// On cancellation ask the child to stop so servers can drain; WaitDelay kills it if it does not.
	c.Cancel = func() error { return c.Process.Signal(syscall.SIGTERM) }
	c.WaitDelay = r.ShutdownGrace

	r.logger.Info("Running command", zap.String("command", cmd.Name), zap.Strings("args", cmd.Args))
	started := time.Now()
	err := c.Run()
	elapsed := time.Since(started)
	if err == nil {
		r.metrics.ObserveSubprocess(cmd.Name, metrics.OutcomeSuccess, elapsed)
		r.logger.Info("Command completed", zap.String("command", cmd.Name), zap.Duration("duration", elapsed))
		return nil
	}

	r.metrics.ObserveSubprocess(cmd.Name, metrics.OutcomeFailure, elapsed)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return &ExitError{Command: cmd.String(), Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("%w: run %q: %w", deployerr.ErrSubprocess, cmd.String(), err)
}

// MergeEnv overlays extra on base. Later keys win; extra keys are appended in sorted order.
func MergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
