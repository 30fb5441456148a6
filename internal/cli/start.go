package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/build"
	"github.com/shinji-kodama/stackctl/internal/envfile"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/port"
)

// NewStartCommand creates the "start" cobra command.
//
// start brings the whole deployment up from any state: it makes sure the
// env file exists, stops what is running, rebuilds every image, starts the
// containers detached and waits for them to report ready.
func NewStartCommand(env *Env) *cobra.Command {
	var (
		strict  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Bootstrap, rebuild and start the whole deployment",
		Long: `Start the whole deployment.

The command creates the env file from its template (or with empty default
keys) when it is missing, stops all services, builds every image, starts
the containers detached, then waits for the services to report ready.

A readiness timeout is reported as a warning and the command still exits 0,
because services may simply be slow to boot. Use --strict to turn it into
exit code 5.

Examples:
  stackctl start
  stackctl start --strict --timeout 2m`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), env, strict, timeout)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when a service does not report ready in time")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Readiness timeout per service (default: readiness.timeout)")

	return cmd
}

// startResultJSON is the --json result of the start command.
type startResultJSON struct {
	EnvFile       envfile.Result        `json:"envFile"`
	MissingKeys   []string              `json:"missingKeys"`
	PortConflicts []model.PublishedPort `json:"portConflicts"`
	Services      []serviceReadyJSON    `json:"services"`
}

type serviceReadyJSON struct {
	Service  model.ServiceName `json:"service"`
	Ready    bool              `json:"ready"`
	Attempts int               `json:"attempts"`
	Elapsed  string            `json:"elapsed"`
}

func runStart(ctx context.Context, env *Env, strictFlag bool, timeout time.Duration) error {
	s, err := newSession(env)
	if err != nil {
		return err
	}

	result := startResultJSON{
		MissingKeys:   []string{},
		PortConflicts: []model.PublishedPort{},
		Services:      []serviceReadyJSON{},
	}

	// Step 1: make sure the env file exists before compose reads it.
	envPath := s.cfg.Resolve(s.cfg.Env.Path)
	res, err := bootstrapEnv(s, envPath)
	if err != nil {
		return err
	}
	result.EnvFile = res

	missing, err := envfile.MissingKeys(envPath, s.cfg.Env.Keys)
	if err != nil {
		s.logger.Debug("could not check env file keys", "error", err)
	}
	for _, k := range missing {
		s.ui.Warn("%s is not set in %s", k, filepath.Base(envPath))
	}
	if missing != nil {
		result.MissingKeys = missing
	}

	project, invoke, err := s.loadProject(ctx)
	if err != nil {
		return err
	}

	// A bad readiness.services list is a config error; report it before
	// anything is stopped.
	services := s.cfg.Readiness.Services
	if len(services) == 0 {
		services = project.Services
	}
	if unknown := project.UnknownServices(services); len(unknown) > 0 {
		return model.NewCLIError(model.ExitConfigInvalid, "readiness.services names undeclared services: "+formatServices(unknown))
	}

	r := s.runner(false)

	// Step 2: stop everything so images can be replaced.
	s.ui.Info("Stopping services")
	if err := runStep(ctx, s, r, invoke.Stop(), model.StepStop); err != nil {
		return err
	}

	// Step 3: a host port held by another process would fail `up` only
	// after the build, so report it now.
	if !dryRun {
		for _, p := range port.NewScanner().Conflicts(project.Ports) {
			s.ui.Warn("host port %s for %s is already in use", p, p.Service)
			result.PortConflicts = append(result.PortConflicts, p)
		}
	}

	// Step 4: build every image.
	s.ui.Info("Building all services")
	buildOpts := []build.Option{build.WithLogger(s.logger)}
	if !s.streams() {
		buildOpts = append(buildOpts, build.WithFailureEcho(env.Stderr))
	}
	orch := build.NewOrchestrator(r, project, invoke, buildOpts...)
	if _, err := orch.Build(ctx, nil, s.cfg.Build.Parallel); err != nil {
		return err
	}

	// Step 5: start detached.
	s.ui.Info("Starting services")
	if err := runStep(ctx, s, r, invoke.Up(), model.StepStart); err != nil {
		return err
	}

	// Step 6: wait for readiness. A dry run started nothing, so there is
	// nothing to wait for.
	if dryRun {
		s.ui.Success("Deployment started (dry run, readiness not checked)")
		if jsonOutput {
			return printJSON(env.Stdout, result)
		}
		return nil
	}

	rp, closeProbe := s.readinessProbe(ctx, project, invoke)
	defer closeProbe()
	mgr := s.newManager(r, invoke, rp)

	var notReady []model.ServiceName
	for i, svc := range services {
		poll := s.cfg.ReadinessPoll(svc)
		if timeout > 0 {
			poll.Timeout = timeout
		}
		// The settle delay is for the stack as a whole.
		if i > 0 {
			poll.Settle = 0
		}

		wait, err := mgr.WaitReady(ctx, poll)
		if err != nil {
			return err
		}
		result.Services = append(result.Services, serviceReadyJSON{
			Service:  svc,
			Ready:    wait.Ready,
			Attempts: wait.Attempts,
			Elapsed:  formatDuration(wait.Elapsed),
		})
		if wait.Ready {
			s.ui.Success("%s is ready", svc)
			continue
		}
		notReady = append(notReady, svc)
		s.ui.Warn("%s did not report ready within %s; it may still be starting", svc, formatDuration(poll.Timeout))
		if wait.LastErr != nil {
			s.logger.Debug("last readiness probe error", "service", svc, "error", wait.LastErr)
		}
	}

	if jsonOutput {
		if err := printJSON(env.Stdout, result); err != nil {
			return err
		}
	}
	if len(notReady) > 0 && s.strict(strictFlag) {
		return readinessTimeoutError(notReady)
	}
	if len(notReady) == 0 {
		s.ui.Success("Deployment started")
	} else {
		s.ui.Warn("Deployment started; %d service(s) not ready yet", len(notReady))
	}
	return nil
}

// bootstrapEnv creates the env file if needed. A dry run only reports what
// would happen.
func bootstrapEnv(s *session, envPath string) (envfile.Result, error) {
	if dryRun {
		if _, err := os.Stat(envPath); errors.Is(err, fs.ErrNotExist) {
			s.ui.Info("Would create %s", envPath)
		}
		return envfile.Result{Path: envPath, Source: envfile.SourceExisting}, nil
	}

	res, err := envfile.EnsureEnvFile(envPath, s.cfg.Resolve(s.cfg.Env.Template), s.cfg.Env.Keys)
	if err != nil {
		return res, err
	}
	if res.Created {
		s.ui.Success("Created %s from %s", filepath.Base(envPath), res.Source)
	}
	return res, nil
}
