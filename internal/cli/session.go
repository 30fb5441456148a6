package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shinji-kodama/stackctl/internal/compose"
	"github.com/shinji-kodama/stackctl/internal/config"
	"github.com/shinji-kodama/stackctl/internal/docker"
	"github.com/shinji-kodama/stackctl/internal/envfile"
	"github.com/shinji-kodama/stackctl/internal/lifecycle"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/probe"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// session is the per-invocation state shared by the subcommands: the
// resolved configuration, the logger and the output channels.
type session struct {
	env    *Env
	cfg    *config.Config
	logger *slog.Logger

	// ui receives human-readable status lines. It is stdout in text mode
	// and stderr in JSON mode, so stdout stays machine-readable.
	ui *printer
}

// newSession loads configuration and applies the global flags.
func newSession(env *Env) (*session, error) {
	cfg, err := config.Load(configPath, projectDir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to load configuration", err)
	}
	if len(composeFiles) > 0 {
		cfg.Compose.Files = composeFiles
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger := newLogger(env.Stderr, level, cfg.Log.Format)

	ui := newPrinter(env.Stdout)
	if jsonOutput {
		ui = newPrinter(env.Stderr)
	}

	s := &session{env: env, cfg: cfg, logger: logger, ui: ui}
	if cfg.File != "" {
		logger.Debug("loaded config file", "path", cfg.File)
	}
	return s, nil
}

// newLogger builds the stderr logger from the log.* settings.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// streams reports whether tool output reaches the terminal as it runs.
// In JSON mode it is captured only, and shown on failure.
func (s *session) streams() bool {
	return !jsonOutput
}

// runner returns the CommandRunner for user-visible tool invocations.
// force streams output even in JSON mode.
func (s *session) runner(force bool) runner.CommandRunner {
	if dryRun {
		w := s.env.Stdout
		if jsonOutput {
			w = s.env.Stderr
		}
		return runner.NewDryRunner(w)
	}
	if s.env.Runner != nil {
		return s.env.Runner
	}
	if force || s.streams() {
		return runner.NewExecRunner(
			runner.WithOutput(s.env.Stdout, s.env.Stderr),
			runner.WithStdin(os.Stdin),
			runner.WithLogger(s.logger),
		)
	}
	return runner.NewExecRunner(runner.WithOutput(io.Discard, io.Discard), runner.WithLogger(s.logger))
}

// quietRunner returns a runner whose output is captured but never shown,
// for commands whose output is parsed (compose ps).
func (s *session) quietRunner() runner.CommandRunner {
	if s.env.Runner != nil {
		return s.env.Runner
	}
	return runner.NewExecRunner(runner.WithOutput(io.Discard, io.Discard), runner.WithLogger(s.logger))
}

// interpolationEnv merges the env file under the process environment, the
// precedence docker compose uses.
func (s *session) interpolationEnv() map[string]string {
	vars, err := envfile.Read(s.cfg.Resolve(s.cfg.Env.Path))
	if err != nil {
		s.logger.Debug("env file not used for interpolation", "error", err)
		vars = map[string]string{}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	return vars
}

// loadProject reads the compose declaration.
func (s *session) loadProject(ctx context.Context) (*compose.Project, compose.Invocation, error) {
	p, err := compose.Load(ctx, compose.Options{
		Dir:         s.cfg.Project.Dir,
		Files:       s.cfg.Compose.Files,
		ProjectName: s.cfg.Compose.ProjectName,
		Environment: s.interpolationEnv(),
	})
	if err != nil {
		return nil, compose.Invocation{}, model.WrapCLIError(model.ExitConfigInvalid, "failed to load compose declaration", err)
	}
	s.logger.Debug("loaded compose project", "name", p.Name, "files", p.Files, "services", p.Services)
	return p, compose.ForProject(s.cfg.Compose.Binary, p), nil
}

// readinessProbe selects the probe configured by readiness.probe, wrapped
// with the per-service HTTP and TCP overrides. The returned close function
// releases the Docker client, if one was opened.
//
// A dry run never probes: nothing was started.
func (s *session) readinessProbe(ctx context.Context, p *compose.Project, invoke compose.Invocation) (lifecycle.ReadinessProbe, func()) {
	noop := func() {}
	if s.env.Probe != nil {
		return s.env.Probe, noop
	}
	if dryRun {
		return nil, noop
	}

	var fallback lifecycle.ReadinessProbe
	closeFn := noop
	switch s.cfg.Readiness.Probe {
	case "docker":
		c, err := s.dockerClient(ctx)
		if err != nil {
			s.logger.Warn("Docker Engine API unavailable, using docker compose ps", "error", err)
			fallback = probe.NewComposePS(s.quietRunner(), invoke)
			break
		}
		fallback = docker.NewServiceProbe(c, p.Name)
		closeFn = func() { _ = c.Close() }
	case "compose":
		fallback = probe.NewComposePS(s.quietRunner(), invoke)
	case "none":
		// Only services with an HTTP or TCP override are probed.
	}

	return probe.Select(fallback, s.cfg.Readiness.HTTP, s.cfg.Readiness.TCP), closeFn
}

// dockerClient connects to the daemon and verifies it answers.
func (s *session) dockerClient(ctx context.Context) (*docker.Client, error) {
	c, err := docker.NewClient(s.cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	s.logger.Debug("connected to Docker daemon")
	return c, nil
}

// newManager builds a lifecycle manager bound to this session.
func (s *session) newManager(r runner.CommandRunner, invoke compose.Invocation, rp lifecycle.ReadinessProbe) *lifecycle.Manager {
	opts := []lifecycle.Option{
		lifecycle.WithLogger(s.logger),
		lifecycle.WithParallelBuild(s.cfg.Build.Parallel),
	}
	if s.env.Clock != nil {
		opts = append(opts, lifecycle.WithClock(s.env.Clock))
	}
	return lifecycle.NewManager(r, invoke, rp, opts...)
}

// strict reports whether a readiness timeout should fail the command.
func (s *session) strict(flag bool) bool {
	return flag || s.cfg.Readiness.Strict
}

// readinessTimeoutError is returned in strict mode.
func readinessTimeoutError(services []model.ServiceName) error {
	return model.WrapCLIError(
		model.ExitReadinessTimeout,
		fmt.Sprintf("readiness not observed for %s", formatServices(services)),
		model.ErrTimedOut,
	)
}
