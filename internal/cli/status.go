package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/probe"
)

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [service...]",
		Short: "Show whether services currently report ready",
		Long: `Probe each service once with the configured readiness signal and report
whether it is ready. Nothing is started or stopped.

Examples:
  stackctl status
  stackctl status backend --json`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), env, args)
		},
	}

	return cmd
}

// serviceStatusJSON is one entry of the --json result of status.
type serviceStatusJSON struct {
	Service model.ServiceName `json:"service"`
	Ready   bool              `json:"ready"`
	Probe   string            `json:"probe"`
	Detail  string            `json:"detail,omitempty"`
}

func runStatus(ctx context.Context, env *Env, services []string) error {
	s, err := newSession(env)
	if err != nil {
		return err
	}

	project, invoke, err := s.loadProject(ctx)
	if err != nil {
		return err
	}
	if unknown := project.UnknownServices(services); len(unknown) > 0 {
		return model.NewCLIError(model.ExitGeneralError, "no such service: "+formatServices(unknown))
	}
	if len(services) == 0 {
		services = project.Services
	}

	rp, closeProbe := s.readinessProbe(ctx, project, invoke)
	defer closeProbe()

	describe := func(svc string) string {
		if r, ok := rp.(*probe.Router); ok {
			return r.Describe(svc)
		}
		return "custom"
	}

	results := make([]serviceStatusJSON, 0, len(services))
	for _, svc := range services {
		st := serviceStatusJSON{Service: svc, Probe: "none"}
		if rp != nil {
			st.Probe = describe(svc)
			ready, err := rp.Ready(ctx, svc)
			st.Ready = ready && err == nil
			if err != nil {
				st.Detail = err.Error()
			}
		}
		results = append(results, st)
	}

	if jsonOutput {
		return printJSON(env.Stdout, results)
	}

	p := newPrinter(env.Stdout)
	p.Info("Project %s (%s)", project.Name, project.Dir)
	for _, st := range results {
		switch {
		case st.Ready:
			p.Success("%-20s ready (%s)", st.Service, st.Probe)
		case st.Detail != "":
			p.Warn("%-20s not ready (%s): %s", st.Service, st.Probe, st.Detail)
		default:
			p.Warn("%-20s not ready (%s)", st.Service, st.Probe)
		}
	}
	return nil
}
