package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimedOut reports that readiness was not observed before the deadline.
// It is a warning, not a failure, unless the caller runs in strict mode.
var ErrTimedOut = errors.New("readiness not observed before timeout")

// LaunchFailure means an external process could not be started at all:
// the executable is missing, not permitted, or the OS refused to spawn it.
// A process that starts and exits non-zero is never a LaunchFailure.
type LaunchFailure struct {
	Command string
	Err     error
}

func (e *LaunchFailure) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Command, e.Err)
}

func (e *LaunchFailure) Unwrap() error {
	return e.Err
}

// WriteFailure means the filesystem denied a write.
type WriteFailure struct {
	Path string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

// BuildFailure wraps a non-zero exit from the image build.
type BuildFailure struct {
	// Services are the services that were requested. Empty means all.
	Services []ServiceName

	// Result is the build command's captured result.
	Result CommandResult
}

func (e *BuildFailure) Error() string {
	target := "all services"
	if len(e.Services) > 0 {
		target = strings.Join(e.Services, ", ")
	}
	return fmt.Sprintf("build failed for %s (exit code %d)", target, e.Result.ExitCode)
}

// ExitCode returns the build tool's exit status, or 1 if it somehow
// reported zero.
func (e *BuildFailure) ExitCode() int {
	return nonZero(e.Result.ExitCode)
}

// StepFailed reports that one stage of a rebuild-and-restart sequence
// exited non-zero. Later stages were not attempted.
type StepFailed struct {
	Service ServiceName
	Step    Step
	Result  CommandResult
}

func (e *StepFailed) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("%s step failed for all services (exit code %d)", e.Step, e.Result.ExitCode)
	}
	return fmt.Sprintf("%s step failed for service %q (exit code %d)", e.Step, e.Service, e.Result.ExitCode)
}

// ExitCode returns the failing step's exit status, or 1.
func (e *StepFailed) ExitCode() int {
	return nonZero(e.Result.ExitCode)
}

// TraversalFailure means the build context root could not be read.
// Unreadable entries below the root are skipped and counted instead.
type TraversalFailure struct {
	Path string
	Err  error
}

func (e *TraversalFailure) Error() string {
	return fmt.Sprintf("cannot traverse %s: %v", e.Path, e.Err)
}

func (e *TraversalFailure) Unwrap() error {
	return e.Err
}

func nonZero(code int) int {
	if code == 0 {
		return int(ExitGeneralError)
	}
	return code
}
