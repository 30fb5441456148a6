package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/stackctl/internal/lifecycle"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner/runnertest"
)

const testCompose = `name: seo
services:
  backend:
    build: ./backend
  frontend:
    build: ./frontend
    depends_on: [backend]
`

// instantClock never waits; Sleep only moves time forward.
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return ctx.Err()
}

// newProject creates a deployment directory. os.MkdirTemp is used rather
// than t.TempDir so the path never contains words like "build" or "stop"
// that the fake runner matches on.
func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "stackctl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	if _, ok := files["compose.yaml"]; !ok {
		files["compose.yaml"] = testCompose
		files["backend/Dockerfile"] = "FROM python:3.12-slim\n"
		files["frontend/Dockerfile"] = "FROM node:20-alpine\n"
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// testEnv returns an Env with a fake runner, an always-ready probe and an
// instant clock.
func testEnv(fake *runnertest.Fake) *Env {
	return &Env{
		Runner: fake,
		Probe: lifecycle.ProbeFunc(func(context.Context, model.ServiceName) (bool, error) {
			return true, nil
		}),
		Clock: &instantClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
}

// execute runs the CLI with args and returns the exit code and output.
func execute(t *testing.T, env *Env, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env.Stdout = &stdout
	env.Stderr = &stderr

	root := NewRootCommandWith(env)
	root.SetArgs(args)
	code := Execute(context.Background(), root)
	return code, stdout.String(), stderr.String()
}

// TestBuild_Success checks the compose command line and the success line
// for a plain build of every service.
func TestBuild_Success(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, stdout, _ := execute(t, testEnv(fake), "--project-dir", dir, "build")
	require.Equal(t, 0, code)

	require.Len(t, fake.Calls(), 1)
	call := fake.Calls()[0]
	assert.Equal(t, "docker", call.Name)
	assert.Equal(t, dir, call.Dir)
	assert.True(t, strings.HasSuffix(fake.Lines()[0], "build --parallel"), fake.Lines()[0])
	assert.Contains(t, fake.Lines()[0], "-p seo")
	assert.Contains(t, stdout, "✓ Built all services")
}

// TestBuild_FailurePropagatesExitCode checks that a failing build tool
// makes the CLI exit with the tool's status.
func TestBuild_FailurePropagatesExitCode(t *testing.T) {
	tests := []struct {
		name     string
		toolExit int
		wantCode int
	}{
		{name: "exit 1", toolExit: 1, wantCode: 1},
		{name: "exit 17", toolExit: 17, wantCode: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newProject(t, map[string]string{})
			fake := runnertest.NewFake().On("build", model.CommandResult{ExitCode: tt.toolExit, Stderr: "failed to solve"})

			code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "build", "backend")
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stderr, "build failed for backend")
		})
	}
}

// TestBuild_UnknownService verifies that an undeclared service fails the
// build without running anything.
func TestBuild_UnknownService(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "build", "db")
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "build failed for db")
	assert.Empty(t, fake.Calls())
}

// TestBuild_NoParallel checks that --no-parallel drops the --parallel
// flag and keeps the service order.
func TestBuild_NoParallel(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, _, _ := execute(t, testEnv(fake), "--project-dir", dir, "build", "--no-parallel", "backend", "frontend")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasSuffix(fake.Lines()[0], "build backend frontend"), fake.Lines()[0])
	assert.False(t, fake.CalledWith("--parallel"))
}

// TestBuild_JSONFailureIncludesLog verifies the --json result of a failed
// build of all services, including the captured log tail.
func TestBuild_JSONFailureIncludesLog(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake().On("build", model.CommandResult{ExitCode: 2, Stderr: "requirements.txt not found"})

	code, stdout, stderr := execute(t, testEnv(fake), "--project-dir", dir, "--json", "build")
	assert.Equal(t, 2, code)

	var out buildResultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	assert.Equal(t, []string{"backend", "frontend"}, out.Services)
	assert.Equal(t, 2, out.ExitCode)
	assert.Contains(t, out.Log, "requirements.txt not found")

	// The partial log is echoed because nothing was streamed, and the
	// error is reported as JSON.
	assert.Contains(t, stderr, "requirements.txt not found")
	assert.Contains(t, stderr, `"exitCode": 2`)
}

// TestBuild_DryRun checks that --dry-run prints the compose command
// instead of running it.
func TestBuild_DryRun(t *testing.T) {
	dir := newProject(t, map[string]string{})
	env := testEnv(nil)
	env.Runner = nil

	code, stdout, _ := execute(t, env, "--project-dir", dir, "--dry-run", "build", "backend")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "+ (cd "+dir+") docker compose -p seo -f ")
	assert.Contains(t, stdout, "build --parallel backend")
}

// TestBuild_ComposeFileFlag verifies that -f replaces the default compose
// file and is resolved against the project dir.
func TestBuild_ComposeFileFlag(t *testing.T) {
	dir := newProject(t, map[string]string{
		"deploy/prod.yml": "services:\n  api:\n    image: alpine\n",
	})
	fake := runnertest.NewFake()

	code, _, _ := execute(t, testEnv(fake), "--project-dir", dir, "-f", "deploy/prod.yml", "build", "api")
	require.Equal(t, 0, code)
	assert.Contains(t, fake.Lines()[0], filepath.Join(dir, "deploy", "prod.yml"))
}

// TestBuild_InvalidCompose checks that a broken compose file exits with
// the config-invalid code.
func TestBuild_InvalidCompose(t *testing.T) {
	dir := newProject(t, map[string]string{"compose.yaml": "services: [unterminated"})

	code, _, stderr := execute(t, testEnv(runnertest.NewFake()), "--project-dir", dir, "build")
	assert.Equal(t, int(model.ExitConfigInvalid), code)
	assert.Contains(t, stderr, "failed to load compose declaration")
}

// TestInvalidConfig checks that a failed config validation exits with
// the config-invalid code and names the setting.
func TestInvalidConfig(t *testing.T) {
	dir := newProject(t, map[string]string{"stackctl.yaml": "readiness:\n  probe: carrier-pigeon\n"})

	code, _, stderr := execute(t, testEnv(runnertest.NewFake()), "--project-dir", dir, "build")
	assert.Equal(t, int(model.ExitConfigInvalid), code)
	assert.Contains(t, stderr, "readiness.probe")
}

// TestRebuild_StepFailureStopsSequence verifies the exit code and that no
// later step ran.
func TestRebuild_StepFailureStopsSequence(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake().On("stop backend", model.CommandResult{ExitCode: 7, Stderr: "cannot stop"})

	code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "rebuild", "backend")
	assert.Equal(t, 7, code)
	assert.Contains(t, stderr, "stop step failed")
	assert.Len(t, fake.Calls(), 1)
	assert.False(t, fake.CalledWith("up -d"))
}

// TestRebuild_Healthy verifies the stop, build, up order and the --json
// outcome of a successful rebuild.
func TestRebuild_Healthy(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, stdout, _ := execute(t, testEnv(fake), "--project-dir", dir, "--json", "rebuild", "frontend")
	require.Equal(t, 0, code)

	var out outcomeJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	assert.Equal(t, model.OutcomeHealthy, out.Status)
	assert.Equal(t, "frontend", out.Service)
	assert.Equal(t, 1, out.Attempts)

	lines := fake.Lines()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "stop frontend"))
	assert.True(t, strings.HasSuffix(lines[1], "build --parallel frontend"))
	assert.True(t, strings.HasSuffix(lines[2], "up -d frontend"))
}

// TestRebuild_ReadinessTimeout is lenient by default and fails with exit
// code 5 under --strict.
func TestRebuild_ReadinessTimeout(t *testing.T) {
	notReady := lifecycle.ProbeFunc(func(context.Context, model.ServiceName) (bool, error) {
		return false, errors.New("connection refused")
	})

	t.Run("lenient", func(t *testing.T) {
		dir := newProject(t, map[string]string{})
		env := testEnv(runnertest.NewFake())
		env.Probe = notReady

		code, stdout, _ := execute(t, env, "--project-dir", dir, "rebuild", "backend", "--timeout", "10s")
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "⚠ backend did not report ready within 10s")
	})

	t.Run("strict", func(t *testing.T) {
		dir := newProject(t, map[string]string{})
		env := testEnv(runnertest.NewFake())
		env.Probe = notReady

		code, _, stderr := execute(t, env, "--project-dir", dir, "rebuild", "backend", "--strict")
		assert.Equal(t, int(model.ExitReadinessTimeout), code)
		assert.Contains(t, stderr, "readiness not observed for backend")
	})

	t.Run("strict from config", func(t *testing.T) {
		dir := newProject(t, map[string]string{"stackctl.yaml": "readiness:\n  strict: true\n"})
		env := testEnv(runnertest.NewFake())
		env.Probe = notReady

		code, _, _ := execute(t, env, "--project-dir", dir, "rebuild", "backend")
		assert.Equal(t, int(model.ExitReadinessTimeout), code)
	})
}

// TestRebuild_UnknownService verifies that an undeclared service fails
// before any command runs.
func TestRebuild_UnknownService(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "rebuild", "db")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no such service: db")
	assert.Empty(t, fake.Calls())
}

// TestStart_FullSequence bootstraps the env file and runs stop, build and
// up in order.
func TestStart_FullSequence(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake()

	code, stdout, _ := execute(t, testEnv(fake), "--project-dir", dir, "start")
	require.Equal(t, 0, code)

	lines := fake.Lines()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], " stop"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " build --parallel"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], " up -d"), lines[2])

	envPath := filepath.Join(dir, ".env")
	content, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Equal(t, "API_KEY=\"\"\nSECRET_KEY=\"\"\n", string(content))
	if runtime.GOOS != "windows" {
		info, err := os.Stat(envPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	assert.Contains(t, stdout, "✓ Created .env from defaults")
	assert.Contains(t, stdout, "⚠ API_KEY is not set in .env")
	assert.Contains(t, stdout, "✓ backend is ready")
	assert.Contains(t, stdout, "✓ frontend is ready")
	assert.Contains(t, stdout, "✓ Deployment started")
}

// TestStart_KeepsExistingEnvFile checks that an existing env file is left
// untouched and produces no missing-key warnings.
func TestStart_KeepsExistingEnvFile(t *testing.T) {
	dir := newProject(t, map[string]string{
		".env":         "API_KEY=abc\nSECRET_KEY=def\n",
		".env.example": "API_KEY=\n",
	})

	code, stdout, _ := execute(t, testEnv(runnertest.NewFake()), "--project-dir", dir, "start")
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "Created")
	assert.NotContains(t, stdout, "is not set")

	content, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "API_KEY=abc\nSECRET_KEY=def\n", string(content))
}

// TestStart_BuildFailureSkipsUp verifies that a failed build ends start
// with the build's exit code before up runs.
func TestStart_BuildFailureSkipsUp(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake().On("build --parallel", model.CommandResult{ExitCode: 2})

	code, _, _ := execute(t, testEnv(fake), "--project-dir", dir, "start")
	assert.Equal(t, 2, code)
	assert.False(t, fake.CalledWith("up -d"))
}

// TestStart_LaunchFailure checks that a missing docker binary exits with
// the launch-failure code.
func TestStart_LaunchFailure(t *testing.T) {
	dir := newProject(t, map[string]string{})
	fake := runnertest.NewFake().OnError("compose", &model.LaunchFailure{Command: "docker", Err: errors.New("executable file not found")})

	code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "start")
	assert.Equal(t, int(model.ExitLaunchFailed), code)
	assert.Contains(t, stderr, "executable file not found")
}

// TestStart_ReadinessScopeAndStrict verifies that only readiness.services
// are waited for and that --strict turns a timeout into exit code 5.
func TestStart_ReadinessScopeAndStrict(t *testing.T) {
	var probed []string
	env := testEnv(runnertest.NewFake())
	env.Probe = lifecycle.ProbeFunc(func(_ context.Context, svc model.ServiceName) (bool, error) {
		probed = append(probed, svc)
		return svc == "backend", nil
	})
	dir := newProject(t, map[string]string{"stackctl.yaml": "readiness:\n  services: [frontend]\n  timeout: 4s\n"})

	code, _, _ := execute(t, env, "--project-dir", dir, "start")
	assert.Equal(t, 0, code, "readiness is advisory by default")
	assert.NotContains(t, probed, "backend")
	assert.Len(t, probed, 3, "attempts at 0s, 2s and 4s")

	probed = nil
	code, _, _ = execute(t, env, "--project-dir", dir, "start", "--strict")
	assert.Equal(t, int(model.ExitReadinessTimeout), code)
}

// TestStart_UnknownReadinessServiceStopsNothing checks that a bad
// readiness.services entry fails before the deployment is touched.
func TestStart_UnknownReadinessServiceStopsNothing(t *testing.T) {
	dir := newProject(t, map[string]string{"stackctl.yaml": "readiness:\n  services: [db]\n"})
	fake := runnertest.NewFake()

	code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "start")
	assert.Equal(t, int(model.ExitConfigInvalid), code)
	assert.Contains(t, stderr, "readiness.services names undeclared services: db")
	assert.Empty(t, fake.Calls())
}

// TestStart_DryRunSkipsReadiness checks that a dry run neither writes the
// env file nor waits for readiness.
func TestStart_DryRunSkipsReadiness(t *testing.T) {
	dir := newProject(t, map[string]string{})
	env := testEnv(nil)
	env.Runner = nil
	env.Probe = lifecycle.ProbeFunc(func(context.Context, model.ServiceName) (bool, error) {
		t.Error("readiness must not be probed in a dry run")
		return false, nil
	})

	code, stdout, _ := execute(t, env, "--project-dir", dir, "--dry-run", "start")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "docker compose -p seo")
	assert.Contains(t, stdout, "Deployment started (dry run, readiness not checked)")
	assert.NotContains(t, stdout, "is ready")

	_, err := os.Stat(filepath.Join(dir, ".env"))
	assert.True(t, os.IsNotExist(err), "a dry run must not create the env file")
}

// TestStart_JSON verifies the --json result of start and that progress
// lines move to stderr.
func TestStart_JSON(t *testing.T) {
	dir := newProject(t, map[string]string{".env": "API_KEY=x\n"})

	code, stdout, stderr := execute(t, testEnv(runnertest.NewFake()), "--project-dir", dir, "--json", "start")
	require.Equal(t, 0, code)

	var out startResultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	assert.False(t, out.EnvFile.Created)
	assert.Equal(t, []string{"SECRET_KEY"}, out.MissingKeys)
	require.Len(t, out.Services, 2)
	assert.True(t, out.Services[0].Ready)

	// Progress lines go to stderr so stdout stays parseable.
	assert.Contains(t, stderr, "SECRET_KEY is not set")
}

// TestInspect_AlwaysExitsZero covers a readable and an unreadable root.
func TestInspect_AlwaysExitsZero(t *testing.T) {
	t.Run("suspicious dir", func(t *testing.T) {
		dir := newProject(t, map[string]string{"web/node_modules/react/index.js": "module.exports = {}"})

		code, stdout, _ := execute(t, testEnv(nil), "--project-dir", dir, "inspect-context")
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "web/node_modules/")
		assert.Contains(t, stdout, "No .dockerignore found")
	})

	t.Run("ignored", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"web/node_modules/react/index.js": "module.exports = {}",
			".dockerignore":                   "node_modules\n",
		})

		code, stdout, _ := execute(t, testEnv(nil), "--project-dir", dir, "--json", "inspect-context")
		assert.Equal(t, 0, code)

		var report struct {
			SuspiciousDirs []model.ContextEntry `json:"suspiciousDirs"`
			IgnoreRules    []string             `json:"ignoreRules"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &report), stdout)
		assert.Empty(t, report.SuspiciousDirs)
		assert.Equal(t, []string{"node_modules"}, report.IgnoreRules)
	})

	t.Run("missing root", func(t *testing.T) {
		dir := newProject(t, map[string]string{})

		code, stdout, _ := execute(t, testEnv(nil), "--project-dir", dir, "inspect-context", filepath.Join(dir, "nope"))
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "⚠ cannot inspect")
	})
}

// TestStatus checks the --json status snapshot for a ready and a failing
// service.
func TestStatus(t *testing.T) {
	dir := newProject(t, map[string]string{})
	env := testEnv(runnertest.NewFake())
	env.Probe = lifecycle.ProbeFunc(func(_ context.Context, svc model.ServiceName) (bool, error) {
		if svc == "backend" {
			return true, nil
		}
		return false, errors.New("no containers")
	})

	code, stdout, _ := execute(t, env, "--project-dir", dir, "--json", "status")
	require.Equal(t, 0, code)

	var out []serviceStatusJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	require.Len(t, out, 2)
	assert.Equal(t, serviceStatusJSON{Service: "backend", Ready: true, Probe: "custom"}, out[0])
	assert.Equal(t, "no containers", out[1].Detail)
	assert.False(t, out[1].Ready)
}

// TestStatus_UnknownService verifies that an undeclared service is
// rejected.
func TestStatus_UnknownService(t *testing.T) {
	dir := newProject(t, map[string]string{})

	code, _, _ := execute(t, testEnv(runnertest.NewFake()), "--project-dir", dir, "status", "db")
	assert.Equal(t, 1, code)
}

// TestReport covers the report command: missing configuration, exit code
// propagation with the audit id appended, and id validation.
func TestReport(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		dir := newProject(t, map[string]string{})
		fake := runnertest.NewFake()

		code, _, stderr := execute(t, testEnv(fake), "--project-dir", dir, "report", "a1")
		assert.Equal(t, int(model.ExitConfigInvalid), code)
		assert.Contains(t, stderr, "report.command")
		assert.Empty(t, fake.Calls())
	})

	t.Run("exit code propagates", func(t *testing.T) {
		dir := newProject(t, map[string]string{"stackctl.yaml": "report:\n  command: [python, -m, app.report]\n"})
		fake := runnertest.NewFake().On("app.report", model.CommandResult{ExitCode: 3})

		code, _, _ := execute(t, testEnv(fake), "--project-dir", dir, "report", "audit-42")
		assert.Equal(t, 3, code)
		assert.Equal(t, []string{"python -m app.report audit-42"}, fake.Lines())
		assert.Equal(t, dir, fake.Calls()[0].Dir)
	})

	t.Run("invalid audit id", func(t *testing.T) {
		code, _, _ := execute(t, testEnv(runnertest.NewFake()), "report", "../etc")
		assert.Equal(t, 1, code)
	})
}

// TestExitCode verifies the mapping from error types to process exit
// codes.
func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"generic", errors.New("boom"), 1},
		{"cli error", model.NewCLIError(model.ExitConfigInvalid, "bad"), 2},
		{"launch", &model.LaunchFailure{Command: "docker", Err: errors.New("nope")}, 3},
		{"write", &model.WriteFailure{Path: ".env", Err: errors.New("read-only")}, 4},
		{"build", &model.BuildFailure{Result: model.CommandResult{ExitCode: 9}}, 9},
		{"step", &model.StepFailed{Step: model.StepStart, Result: model.CommandResult{ExitCode: 0}}, 1},
		{"cancelled", context.Canceled, 130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
