// Package runner executes verification commands (tests, linters, formatters)
// inside a repository with an enforced timeout.
//
// A timeout is a normal outcome: the whole process group is killed and the
// result is reported with TimedOut set, never as an error.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/entrhq/repoman/pkg/types"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout applies when neither the check nor the runner sets one.
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxOutput caps captured stdout and stderr separately.
	DefaultMaxOutput = 1 << 20

	// waitDelay bounds how long Wait blocks on pipes held open by orphaned children.
	waitDelay = 2 * time.Second
)

// Check is one command to run.
type Check struct {
	Name     string        `yaml:"name" json:"name"`
	Command  string        `yaml:"command" json:"command"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Required bool          `yaml:"required" json:"required"`
}

// Runner runs shell commands in a working directory.
type Runner struct {
	logger    *zap.Logger
	dir       string
	shell     string
	env       []string
	timeout   time.Duration
	maxOutput int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the default timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutput sets the per-stream output cap in bytes.
func WithMaxOutput(n int64) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithEnv adds KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner for dir.
func New(dir string, opts ...Option) *Runner {
	r := &Runner{
		logger:    zap.NewNop(),
		dir:       dir,
		shell:     "sh",
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCommand runs command with timeout, naming the result after the command.
func (r *Runner) RunCommand(ctx context.Context, command string, timeout time.Duration) types.CommandResult {
	return r.Run(ctx, Check{Name: command, Command: command, Timeout: timeout, Required: true})
}

// Run executes the check and always returns a result. Start failures and
// cancellations are reported with ExitCode -1 and the Error field set.
func (r *Runner) Run(ctx context.Context, check Check) types.CommandResult {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	result := types.CommandResult{
		Name:     check.Name,
		Command:  check.Command,
		Required: check.Required,
		ExitCode: types.ExitCodeUnknown,
	}
	if check.Command == "" {
		result.Error = "empty command"
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.shell, "-c", check.Command)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: r.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, max: r.maxOutput}

	r.logger.Debug("running command", zap.String("name", check.Name), zap.String("command", check.Command), zap.Duration("timeout", timeout))
	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.Error = fmt.Sprintf("timed out after %s", timeout)
	case errors.Is(runCtx.Err(), context.Canceled):
		result.Error = "canceled"
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.Error = err.Error()
	}

	r.logger.Info("command finished",
		zap.String("name", check.Name),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// limitedWriter keeps at most max bytes and silently discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}
