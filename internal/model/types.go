package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ServiceName identifies a service declared in the compose file.
// There is no uniqueness invariant beyond the compose declaration itself.
type ServiceName = string

// serviceNameRegex mirrors the characters docker compose accepts in a
// service key.
var serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateServiceName checks that name could appear as a compose service key.
// Whether the service is actually declared is checked against the loaded
// project, not here.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if !serviceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid service name %q: must start with an alphanumeric character and contain only [a-zA-Z0-9._-]", name)
	}
	return nil
}

// CommandResult is the captured outcome of one external process.
// It is immutable once produced by a runner.
type CommandResult struct {
	// ExitCode is the process exit status. Zero means success.
	ExitCode int `json:"exitCode"`

	// Stdout is everything the process wrote to standard output.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is everything the process wrote to standard error.
	Stderr string `json:"stderr,omitempty"`
}

// Success reports whether the process exited with status zero.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// Combined returns stdout followed by stderr, trimmed. Used when a failure
// needs to show whatever the tool printed.
func (r CommandResult) Combined() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// Tail returns the last n lines of the combined output.
func (r CommandResult) Tail(n int) []string {
	combined := r.Combined()
	if combined == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(combined, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// ReadinessPoll describes how long to wait for a service to report ready.
//
// Polling terminates on the first successful probe or when Timeout has
// elapsed, whichever comes first. A Timeout shorter than Interval still
// results in exactly one probe attempt.
type ReadinessPoll struct {
	// Service is the compose service being watched.
	Service ServiceName `json:"service"`

	// Timeout bounds the polling window, measured after the settle delay.
	Timeout time.Duration `json:"timeout"`

	// Interval is the pause between two probe attempts.
	Interval time.Duration `json:"interval"`

	// Settle is a fixed delay before the first attempt, giving the
	// container a moment to boot.
	Settle time.Duration `json:"settle"`
}

// Validate rejects negative durations and a non-positive interval.
func (p ReadinessPoll) Validate() error {
	if p.Timeout < 0 {
		return fmt.Errorf("readiness poll: timeout %s must not be negative", p.Timeout)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("readiness poll: interval %s must be positive", p.Interval)
	}
	if p.Settle < 0 {
		return fmt.Errorf("readiness poll: settle delay %s must not be negative", p.Settle)
	}
	return nil
}

// ForService returns a copy of the poll bound to another service.
func (p ReadinessPoll) ForService(service ServiceName) ReadinessPoll {
	p.Service = service
	return p
}

// ContextEntry is one file or directory reported by the build context
// inspector. Entries are produced for diagnostics only and never persisted.
type ContextEntry struct {
	// Path is relative to the inspected root, using forward slashes.
	Path string `json:"path"`

	// SizeBytes is the file size, or for directories the total size of the
	// files below it that are part of the build context.
	SizeBytes int64 `json:"sizeBytes"`

	// IsExcludedCandidate is true when the entry matched one of the
	// exclusion patterns (node_modules, .git, ...).
	IsExcludedCandidate bool `json:"isExcludedCandidate"`
}

// PublishedPort is a host port a service publishes in the compose file.
type PublishedPort struct {
	Service  ServiceName `json:"service"`
	HostIP   string      `json:"hostIp,omitempty"`
	Port     int         `json:"port"`
	Protocol string      `json:"protocol"`
}

// String renders the port as "8000/tcp".
func (p PublishedPort) String() string {
	return fmt.Sprintf("%d/%s", p.Port, p.Protocol)
}

// Step names one stage of the rebuild-and-restart sequence.
type Step string

const (
	// StepStop stops the running service.
	StepStop Step = "stop"

	// StepBuild rebuilds the service image.
	StepBuild Step = "build"

	// StepStart starts the service detached.
	StepStart Step = "start"
)

// String returns the string representation of Step.
func (s Step) String() string {
	return string(s)
}

// OutcomeStatus is the terminal state of a rebuild-and-restart run.
type OutcomeStatus string

const (
	// OutcomeHealthy means the readiness probe succeeded within the window.
	OutcomeHealthy OutcomeStatus = "healthy"

	// OutcomeTimedOut means every step succeeded but readiness was not
	// observed before the deadline. The service may still be starting.
	OutcomeTimedOut OutcomeStatus = "timed-out"

	// OutcomeStepFailed means stop, build or start exited non-zero and the
	// sequence was aborted.
	OutcomeStepFailed OutcomeStatus = "step-failed"
)

// String returns the string representation of OutcomeStatus.
func (s OutcomeStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the predefined values.
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeHealthy, OutcomeTimedOut, OutcomeStepFailed:
		return true
	default:
		return false
	}
}

// Outcome is the result of ServiceLifecycleManager.RebuildAndRestart.
type Outcome struct {
	// Service is the service that was restarted.
	Service ServiceName `json:"service"`

	// Status is the terminal state.
	Status OutcomeStatus `json:"status"`

	// Step is the failing step. Only set when Status is OutcomeStepFailed.
	Step Step `json:"step,omitempty"`

	// Result is the failing step's command result. Only set when Status is
	// OutcomeStepFailed.
	Result *CommandResult `json:"result,omitempty"`

	// Attempts counts readiness probe attempts.
	Attempts int `json:"attempts"`

	// Elapsed is the wall time spent waiting for readiness.
	Elapsed time.Duration `json:"elapsed"`
}

// ExitCode defines the CLI exit codes. Failures that wrap an external tool's
// status (BuildFailure, StepFailed) propagate that status instead.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates the configuration or compose declaration
	// could not be loaded.
	ExitConfigInvalid ExitCode = 2

	// ExitLaunchFailed indicates an external executable could not be started.
	ExitLaunchFailed ExitCode = 3

	// ExitWriteFailed indicates a required file could not be written.
	ExitWriteFailed ExitCode = 4

	// ExitReadinessTimeout indicates readiness was not observed and strict
	// mode is enabled.
	ExitReadinessTimeout ExitCode = 5

	// ExitDockerUnavailable indicates the Docker daemon could not be reached
	// through the Engine API.
	ExitDockerUnavailable ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
