package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/build"
	"github.com/shinji-kodama/stackctl/internal/model"
)

// NewBuildCommand creates the "build" cobra command.
func NewBuildCommand(env *Env) *cobra.Command {
	var noParallel bool

	cmd := &cobra.Command{
		Use:   "build [service...]",
		Short: "Build images for some or all services",
		Long: `Build container images for the named services, or for every service in
the compose file when none are named.

The exit code is the build tool's exit code, so a failed build can be
detected by scripts.

Examples:
  stackctl build
  stackctl build backend frontend
  stackctl build --no-parallel`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), env, args, !noParallel)
		},
	}

	cmd.Flags().BoolVar(&noParallel, "no-parallel", false, "Build images one at a time")

	return cmd
}

// buildResultJSON is the --json result of the build command.
type buildResultJSON struct {
	Services []model.ServiceName `json:"services"`
	Parallel bool                `json:"parallel"`
	ExitCode int                 `json:"exitCode"`
	Log      []string            `json:"log,omitempty"`
}

func runBuild(ctx context.Context, env *Env, services []string, parallel bool) error {
	s, err := newSession(env)
	if err != nil {
		return err
	}
	if !s.cfg.Build.Parallel {
		parallel = false
	}

	project, invoke, err := s.loadProject(ctx)
	if err != nil {
		return err
	}

	opts := []build.Option{build.WithLogger(s.logger)}
	if !s.streams() {
		opts = append(opts, build.WithFailureEcho(env.Stderr))
	}
	orch := build.NewOrchestrator(s.runner(false), project, invoke, opts...)

	s.ui.Info("Building %s", formatServices(services))
	res, buildErr := orch.Build(ctx, services, parallel)

	if jsonOutput {
		out := buildResultJSON{Services: services, Parallel: parallel, ExitCode: res.ExitCode}
		if len(out.Services) == 0 {
			out.Services = project.Services
		}
		if buildErr != nil {
			out.Log = res.Tail(40)
		}
		if err := printJSON(env.Stdout, out); err != nil {
			return err
		}
	}
	if buildErr != nil {
		return buildErr
	}

	s.ui.Success("Built %s", formatServices(services))
	return nil
}
