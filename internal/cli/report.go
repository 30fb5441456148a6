package cli

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// auditIDRegex restricts audit ids to characters that are safe to pass as
// a single argument on every platform.
var auditIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// NewReportCommand creates the "report" cobra command.
func NewReportCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <audit-id>",
		Short: "Run the configured report generator for an audit",
		Long: `Run the external report command configured in report.command with the
audit id appended as its last argument. Its output is shown as is and its
exit code becomes stackctl's exit code.

Example config:
  report:
    command: ["docker", "compose", "exec", "-T", "backend", "python", "-m", "app.report"]

Examples:
  stackctl report 2f1c9a`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), env, args[0])
		},
	}

	return cmd
}

func runReport(ctx context.Context, env *Env, auditID string) error {
	if !auditIDRegex.MatchString(auditID) {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid audit id %q: use letters, digits, '.', '_' or '-'", auditID))
	}

	s, err := newSession(env)
	if err != nil {
		return err
	}
	if len(s.cfg.Report.Command) == 0 {
		return model.NewCLIError(model.ExitConfigInvalid, "report.command is not configured")
	}

	argv := s.cfg.Report.Command
	cmd := runner.Command{
		Name: argv[0],
		Args: append(append([]string{}, argv[1:]...), auditID),
		Dir:  s.cfg.Project.Dir,
	}

	res, err := s.runner(true).Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		return model.NewCLIError(model.ExitCode(res.ExitCode),
			fmt.Sprintf("report command exited with status %d", res.ExitCode))
	}
	return nil
}
