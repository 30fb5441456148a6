// Package model defines the domain types and value objects for the
// stackctl CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (CommandResult, ReadinessPoll, ContextEntry, Outcome) are
// created per invocation and discarded when the process exits. Nothing here
// has a persisted lifecycle.
//
// The package also defines exit codes (ExitCode), the error taxonomy shared by
// every component (LaunchFailure, WriteFailure, BuildFailure, StepFailed,
// TraversalFailure, ErrTimedOut) and CLIError, which carries an exit code up
// to the process boundary.
package model
