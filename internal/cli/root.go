// Package cli implements the cobra-based CLI commands for stackctl.
//
// Each subcommand (build, start, rebuild, inspect-context, status, report)
// is defined in its own file within this package. This file defines the
// root command that serves as the parent for all subcommands, the global
// flags, and the mapping from errors to process exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/lifecycle"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command results to structured JSON on stdout.
	// Human-readable progress lines move to stderr.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// dryRun prints the commands that would run instead of running them.
	dryRun bool

	// configPath is an explicit config file. Empty means stackctl.yaml (or
	// .yml/.json/.jsonc) in the project dir, if present.
	configPath string

	// projectDir is the deployment directory. Empty means the current
	// directory or the project.dir setting.
	projectDir string

	// composeFiles override compose.files.
	composeFiles []string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Env carries everything a command needs from the outside world. Tests
// replace the runner, the probe and the clock to drive commands without a
// container runtime.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Runner overrides process execution. Nil means real child processes.
	Runner runner.CommandRunner

	// Probe overrides readiness probing. Nil means the probe selected by
	// the readiness.* settings.
	Probe lifecycle.ReadinessProbe

	// Clock overrides the wall clock used while polling.
	Clock lifecycle.Clock
}

// DefaultEnv returns an Env bound to the process's stdout and stderr.
func DefaultEnv() *Env {
	return &Env{Stdout: os.Stdout, Stderr: os.Stderr}
}

// NewRootCommand creates the root command wired to the real environment.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(DefaultEnv())
}

// NewRootCommandWith creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommandWith(env *Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackctl",
		Short: "Build, start and diagnose a docker compose deployment",
		Long: `stackctl drives a multi-container docker compose project the same way on
Linux, macOS and Windows.

It bootstraps the env file, builds images, restarts services and waits for
them to report ready, and explains oversized Docker build contexts.`,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.SetOut(env.Stdout)
	rootCmd.SetErr(env.Stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&dryRun, "dry-run", false, "Print the commands that would run without running them")
	flags.StringVar(&configPath, "config", "", "Config file (default: stackctl.yaml in the project dir)")
	flags.StringVar(&projectDir, "project-dir", "", "Deployment directory (default: current directory)")
	flags.StringSliceVarP(&composeFiles, "file", "f", nil, "Compose file(s), in merge order")

	rootCmd.AddCommand(NewBuildCommand(env))
	rootCmd.AddCommand(NewStartCommand(env))
	rootCmd.AddCommand(NewRebuildCommand(env))
	rootCmd.AddCommand(NewInspectCommand(env))
	rootCmd.AddCommand(NewStatusCommand(env))
	rootCmd.AddCommand(NewReportCommand(env))

	return rootCmd
}

// Execute runs the root command and returns the process exit code. Errors
// are printed to stderr in text or JSON form.
func Execute(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}
	printError(rootCmd.ErrOrStderr(), err)
	return ExitCode(err)
}

// ExitCode translates an error into a process exit code.
//
// Failures of an external tool (build, lifecycle steps) propagate that
// tool's status. CLIError carries its own code. Anything else is 1.
func ExitCode(err error) int {
	if err == nil {
		return int(model.ExitSuccess)
	}

	var (
		cliErr   *model.CLIError
		buildErr *model.BuildFailure
		stepErr  *model.StepFailed
		launch   *model.LaunchFailure
		write    *model.WriteFailure
	)
	switch {
	case errors.As(err, &cliErr):
		return int(cliErr.Code)
	case errors.As(err, &buildErr):
		return buildErr.ExitCode()
	case errors.As(err, &stepErr):
		return stepErr.ExitCode()
	case errors.As(err, &launch):
		return int(model.ExitLaunchFailed)
	case errors.As(err, &write):
		return int(model.ExitWriteFailed)
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return int(model.ExitGeneralError)
	}
}

// printError writes err in the format selected by --json.
func printError(w io.Writer, err error) {
	message := err.Error()
	var detail error
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		detail = cliErr.Err
	}

	if jsonOutput {
		errObj := map[string]interface{}{
			"message":  message,
			"exitCode": ExitCode(err),
		}
		if detail != nil {
			errObj["detail"] = detail.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	p := newPrinter(w)
	if detail != nil {
		p.Error("%s: %v", message, detail)
	} else {
		p.Error("%s", message)
	}
}
