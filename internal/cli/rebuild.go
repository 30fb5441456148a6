package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// NewRebuildCommand creates the "rebuild" cobra command.
func NewRebuildCommand(env *Env) *cobra.Command {
	var (
		strict  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rebuild <service>",
		Short: "Stop, rebuild and restart one service",
		Long: `Stop one service, rebuild its image, start it detached and wait for it
to report ready.

If any of stop, build or start fails, the remaining steps are skipped and
the command exits with the failing tool's exit code. A readiness timeout
is a warning (exit 0) unless --strict is given (exit 5).

Examples:
  stackctl rebuild backend
  stackctl rebuild frontend --strict --timeout 90s`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), env, args[0], strict, timeout)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the service does not report ready in time")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Readiness timeout (default: readiness.timeout)")

	return cmd
}

// outcomeJSON is the --json result of the rebuild command.
type outcomeJSON struct {
	Service  model.ServiceName   `json:"service"`
	Status   model.OutcomeStatus `json:"status"`
	Step     model.Step          `json:"step,omitempty"`
	ExitCode int                 `json:"exitCode,omitempty"`
	Log      []string            `json:"log,omitempty"`
	Attempts int                 `json:"attempts"`
	Elapsed  string              `json:"elapsed"`
}

func runRebuild(ctx context.Context, env *Env, service string, strictFlag bool, timeout time.Duration) error {
	s, err := newSession(env)
	if err != nil {
		return err
	}

	project, invoke, err := s.loadProject(ctx)
	if err != nil {
		return err
	}
	if !project.HasService(service) {
		return model.NewCLIError(model.ExitGeneralError, "no such service: "+service)
	}

	rp, closeProbe := s.readinessProbe(ctx, project, invoke)
	defer closeProbe()
	mgr := s.newManager(s.runner(false), invoke, rp)

	poll := s.cfg.ReadinessPoll(service)
	if timeout > 0 {
		poll.Timeout = timeout
	}

	s.ui.Info("Rebuilding %s", service)
	outcome, rebuildErr := mgr.RebuildAndRestart(ctx, service, poll)

	if outcome.Status == model.OutcomeStepFailed && outcome.Result != nil && !s.streams() {
		printTail(newPrinter(env.Stderr), *outcome.Result, 40)
	}

	if jsonOutput && outcome.Status.IsValid() {
		out := outcomeJSON{
			Service:  outcome.Service,
			Status:   outcome.Status,
			Step:     outcome.Step,
			Attempts: outcome.Attempts,
			Elapsed:  formatDuration(outcome.Elapsed),
		}
		if outcome.Result != nil {
			out.ExitCode = outcome.Result.ExitCode
			out.Log = outcome.Result.Tail(40)
		}
		if err := printJSON(env.Stdout, out); err != nil {
			return err
		}
	}
	if rebuildErr != nil {
		return rebuildErr
	}

	switch outcome.Status {
	case model.OutcomeHealthy:
		if dryRun {
			s.ui.Success("%s restarted (dry run, readiness not checked)", service)
		} else {
			s.ui.Success("%s is healthy (%d attempt(s), %s)", service, outcome.Attempts, formatDuration(outcome.Elapsed))
		}
	case model.OutcomeTimedOut:
		if s.strict(strictFlag) {
			return readinessTimeoutError([]model.ServiceName{service})
		}
		s.ui.Warn("%s did not report ready within %s; it may still be starting", service, formatDuration(poll.Timeout))
	}
	return nil
}

// runStep runs one compose command of a start sequence. A non-zero exit
// becomes *model.StepFailed for all services.
func runStep(ctx context.Context, s *session, r runner.CommandRunner, cmd runner.Command, step model.Step) error {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		if !s.streams() {
			printTail(newPrinter(s.env.Stderr), res, 40)
		}
		return &model.StepFailed{Step: step, Result: res}
	}
	return nil
}
