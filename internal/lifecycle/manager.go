// Package lifecycle restarts compose services and waits for them to report
// ready.
//
// A rebuild runs stop, build and start strictly in that order. The first
// step that exits non-zero aborts the sequence; later steps are never
// attempted. Readiness is observed by polling a ReadinessProbe with a hard
// deadline.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/shinji-kodama/stackctl/internal/compose"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// Manager drives service restarts for one compose project.
type Manager struct {
	runner runner.CommandRunner
	invoke compose.Invocation
	probe  ReadinessProbe
	clock  Clock
	logger *slog.Logger

	// parallel is forwarded to the build step.
	parallel bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithParallelBuild asks compose to build images concurrently.
func WithParallelBuild(parallel bool) Option {
	return func(m *Manager) {
		m.parallel = parallel
	}
}

// NewManager creates a Manager. probe may be nil, in which case readiness
// is reported as soon as the start step succeeds.
func NewManager(r runner.CommandRunner, invoke compose.Invocation, probe ReadinessProbe, opts ...Option) *Manager {
	m := &Manager{
		runner: r,
		invoke: invoke,
		probe:  probe,
		clock:  RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	return m
}

// step is one command of the restart sequence.
type step struct {
	name model.Step
	cmd  runner.Command
}

// RebuildAndRestart stops, rebuilds and starts service, then waits for it
// to become ready.
//
// A failing step returns an Outcome with Status OutcomeStepFailed together
// with a *model.StepFailed error. A launch failure is returned as
// *model.LaunchFailure. When readiness is not observed in time the Outcome
// has Status OutcomeTimedOut and the error is nil; the caller decides
// whether that is fatal.
func (m *Manager) RebuildAndRestart(ctx context.Context, service model.ServiceName, poll model.ReadinessPoll) (model.Outcome, error) {
	outcome := model.Outcome{Service: service}

	if err := model.ValidateServiceName(service); err != nil {
		return outcome, err
	}

	steps := []step{
		{name: model.StepStop, cmd: m.invoke.Stop(service)},
		{name: model.StepBuild, cmd: m.invoke.Build(m.parallel, service)},
		{name: model.StepStart, cmd: m.invoke.Up(service)},
	}
	for _, s := range steps {
		m.logger.Debug("running step", "service", service, "step", s.name)
		res, err := m.runner.Run(ctx, s.cmd)
		if err != nil {
			outcome.Status = model.OutcomeStepFailed
			outcome.Step = s.name
			return outcome, err
		}
		if !res.Success() {
			outcome.Status = model.OutcomeStepFailed
			outcome.Step = s.name
			outcome.Result = &res
			return outcome, &model.StepFailed{Service: service, Step: s.name, Result: res}
		}
	}

	wait, err := m.WaitReady(ctx, poll.ForService(service))
	outcome.Attempts = wait.Attempts
	outcome.Elapsed = wait.Elapsed
	if err != nil {
		return outcome, err
	}
	if wait.Ready {
		outcome.Status = model.OutcomeHealthy
	} else {
		outcome.Status = model.OutcomeTimedOut
	}
	return outcome, nil
}

// WaitReady polls the probe for poll.Service. It returns an error only for
// invalid poll parameters or a cancelled context; a timeout is reported
// through WaitResult.Ready.
func (m *Manager) WaitReady(ctx context.Context, poll model.ReadinessPoll) (WaitResult, error) {
	if m.probe == nil {
		return WaitResult{Ready: true}, nil
	}
	res, err := waitReady(ctx, m.clock, m.probe, poll, m.logger)
	if err == nil {
		m.logger.Debug("readiness wait finished", "service", poll.Service, "ready", res.Ready, "attempts", res.Attempts)
	}
	return res, err
}
