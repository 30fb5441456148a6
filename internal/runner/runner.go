package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the executable, resolved through PATH.
	Name string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env map[string]string
}

// String renders the command line for logs and dry-run output.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// CommandRunner executes an external process and captures its result.
//
// Implementations must not return an error for a non-zero exit; that is
// reported through CommandResult.ExitCode. An error is returned only when
// the process could not be launched (*model.LaunchFailure) or the context
// was cancelled before launch.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (model.CommandResult, error)
}

// ExecRunner runs commands as child processes through a platform Launcher.
//
// Output is copied to the configured writers while the child runs, so a
// long docker build shows progress live, and is captured at the same time
// so callers can show the tail of a failed step afterwards.
type ExecRunner struct {
	// launcher turns a Command into an *exec.Cmd for the current OS.
	launcher Launcher

	// stdout and stderr receive the live output. io.Discard turns
	// streaming off without affecting capture.
	stdout io.Writer
	stderr io.Writer

	// stdin is forwarded to the child. Nil means no input, which keeps
	// docker compose from waiting on a prompt in scripts.
	stdin io.Reader

	logger *slog.Logger
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithOutput sets the writers the child's output is streamed to.
// Passing io.Discard for both disables streaming; output is still captured.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *ExecRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithStdin forwards a reader to the child's standard input.
func WithStdin(stdin io.Reader) Option {
	return func(r *ExecRunner) {
		r.stdin = stdin
	}
}

// WithLauncher replaces the platform launcher.
func WithLauncher(l Launcher) Option {
	return func(r *ExecRunner) {
		r.launcher = l
	}
}

// WithLogger sets the logger used for debug traces of each invocation.
func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// NewExecRunner creates a runner that streams to os.Stdout/os.Stderr by
// default.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		launcher: NewLauncher(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

// Run starts the command, streams and captures its output, and waits for it
// to exit.
func (r *ExecRunner) Run(ctx context.Context, c Command) (model.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CommandResult{}, err
	}

	r.logger.Debug("exec", "cmd", c.String(), "dir", c.Dir)

	// Step 1: resolve the executable. A missing docker binary fails here,
	// before anything is started.
	cmd, err := r.launcher.Command(ctx, c)
	if err != nil {
		return model.CommandResult{}, &model.LaunchFailure{Command: c.Name, Err: err}
	}

	// Step 2: tee the output into the live writers and the capture buffers.
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(r.stdout, &stdoutBuf)
	cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)
	cmd.Stdin = r.stdin

	if err := cmd.Start(); err != nil {
		return model.CommandResult{}, &model.LaunchFailure{Command: c.Name, Err: err}
	}

	// Step 3: wait and translate the exit status. A non-zero exit is a
	// normal result here, never an error.
	waitErr := cmd.Wait()
	result := model.CommandResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			// ExitCode is -1 when the child was killed by a signal.
			if result.ExitCode < 0 {
				result.ExitCode = signalExitCode(ctx)
			}
		default:
			// I/O copy errors after a successful start: the process ran, so
			// report a generic failure rather than a launch failure.
			result.ExitCode = 1
		}
	}

	r.logger.Debug("exit", "cmd", c.Name, "code", result.ExitCode)
	return result, nil
}

// signalExitCode maps a killed child to the conventional timeout status
// (124) when the context deadline fired, or 130 (SIGINT) otherwise.
func signalExitCode(ctx context.Context) int {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 124
	}
	return 130
}

// mergeEnv appends extra KEY=VALUE pairs to base.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
