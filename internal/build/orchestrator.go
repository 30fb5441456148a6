// Package build requests container image builds for declared services.
//
// The orchestrator does not manage build concurrency itself. Passing
// parallel=true only asks docker compose to build images concurrently; the
// runtime decides how.
package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shinji-kodama/stackctl/internal/compose"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// failureLogLines bounds the partial log echoed after a failed build that
// was not streamed live.
const failureLogLines = 40

// Orchestrator builds images for services of one compose project.
type Orchestrator struct {
	runner  runner.CommandRunner
	project *compose.Project
	invoke  compose.Invocation
	logger  *slog.Logger

	// echo receives the captured build log on failure. Nil when the runner
	// already streamed output to the terminal.
	echo io.Writer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFailureEcho prints the captured partial log to w when a build fails.
// Use it when the runner does not stream output (JSON mode, quiet mode).
func WithFailureEcho(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.echo = w
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator for project.
func NewOrchestrator(r runner.CommandRunner, project *compose.Project, invoke compose.Invocation, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:  r,
		project: project,
		invoke:  invoke,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "build")
	return o
}

// Build builds images for services, or for every declared service when
// services is empty.
//
// A service that is not declared fails with *model.BuildFailure before any
// process is launched. A non-zero exit from the build tool fails with
// *model.BuildFailure wrapping its result. A process that cannot be
// launched returns *model.LaunchFailure.
func (o *Orchestrator) Build(ctx context.Context, services []model.ServiceName, parallel bool) (model.CommandResult, error) {
	if unknown := o.project.UnknownServices(services); len(unknown) > 0 {
		res := model.CommandResult{
			ExitCode: 1,
			Stderr:   fmt.Sprintf("no such service: %s\n", strings.Join(unknown, ", ")),
		}
		o.logger.Debug("refusing to build undeclared services", "services", unknown)
		return res, &model.BuildFailure{Services: services, Result: res}
	}

	o.logger.Debug("building images", "services", services, "parallel", parallel)

	res, err := o.runner.Run(ctx, o.invoke.Build(parallel, services...))
	if err != nil {
		return res, err
	}
	if !res.Success() {
		o.printPartialLog(res)
		return res, &model.BuildFailure{Services: services, Result: res}
	}
	return res, nil
}

// printPartialLog echoes the tail of a failed build's output.
func (o *Orchestrator) printPartialLog(res model.CommandResult) {
	if o.echo == nil {
		return
	}
	lines := res.Tail(failureLogLines)
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(o.echo, "--- build log (last %d lines) ---\n", len(lines))
	for _, l := range lines {
		fmt.Fprintln(o.echo, l)
	}
	fmt.Fprintln(o.echo, "---")
}
