package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/stackctl/internal/probe"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_Defaults verifies the values used when no file or env override
// is present.
func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Project.Dir)
	assert.Equal(t, "docker", cfg.Compose.Binary)
	assert.Empty(t, cfg.Compose.Files)
	assert.Equal(t, ".env", cfg.Env.Path)
	assert.Equal(t, ".env.example", cfg.Env.Template)
	assert.Equal(t, []string{"API_KEY", "SECRET_KEY"}, cfg.Env.Keys)
	assert.True(t, cfg.Build.Parallel)
	assert.Equal(t, 60*time.Second, cfg.Readiness.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Readiness.Interval)
	assert.Equal(t, 5*time.Second, cfg.Readiness.Settle)
	assert.Equal(t, "docker", cfg.Readiness.Probe)
	assert.False(t, cfg.Readiness.Strict)
	assert.Contains(t, cfg.Inspect.Exclude, "node_modules")
	assert.Equal(t, ".dockerignore", cfg.Inspect.IgnoreFile)
	assert.Equal(t, 20, cfg.Inspect.Top)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.File)
}

// TestLoad_YAMLFile checks that a stackctl.yaml in the project dir is picked
// up without --config.
func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stackctl.yaml", `
compose:
  files: [docker-compose.yml, docker-compose.prod.yml]
  project_name: seo
readiness:
  timeout: 90s
  probe: compose
  services: [backend]
  http:
    backend: http://localhost:8000/health
build:
  parallel: false
`)

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "stackctl.yaml"), cfg.File)
	assert.Equal(t, []string{"docker-compose.yml", "docker-compose.prod.yml"}, cfg.Compose.Files)
	assert.Equal(t, "seo", cfg.Compose.ProjectName)
	assert.Equal(t, 90*time.Second, cfg.Readiness.Timeout)
	assert.Equal(t, "compose", cfg.Readiness.Probe)
	assert.Equal(t, []string{"backend"}, cfg.Readiness.Services)
	assert.Equal(t, "http://localhost:8000/health", cfg.Readiness.HTTP["backend"])
	assert.False(t, cfg.Build.Parallel)
}

// TestLoad_JSONCFile verifies that comments and trailing commas are accepted
// in JSON config files.
func TestLoad_JSONCFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.jsonc", `{
  // keep the build serial on small laptops
  "build": {"parallel": false},
  "inspect": {
    "top": 5, /* fewer rows */
  },
}`)

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	assert.False(t, cfg.Build.Parallel)
	assert.Equal(t, 5, cfg.Inspect.Top)
}

// TestLoad_EnvOverride checks that STACKCTL_* variables override the
// defaults.
func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STACKCTL_READINESS_TIMEOUT", "15s")
	t.Setenv("STACKCTL_READINESS_STRICT", "true")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Readiness.Timeout)
	assert.True(t, cfg.Readiness.Strict)
}

// TestLoad_MissingExplicitFile verifies that a --config path that does not
// exist is an error, unlike a missing default file.
func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

// TestLoad_ParseError verifies that a malformed config file is reported
// as a parse error.
func TestLoad_ParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stackctl.yaml", "readiness: [unterminated")

	_, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// TestValidate covers the values rejected before any command runs.
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Compose:   ComposeConfig{Binary: "docker"},
			Readiness: ReadinessConfig{Interval: time.Second, Timeout: time.Minute, Probe: "docker"},
			Inspect:   InspectConfig{Top: 20},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty binary", func(c *Config) { c.Compose.Binary = "" }},
		{"zero interval", func(c *Config) { c.Readiness.Interval = 0 }},
		{"negative timeout", func(c *Config) { c.Readiness.Timeout = -time.Second }},
		{"unknown probe", func(c *Config) { c.Readiness.Probe = "carrier-pigeon" }},
		{"zero top", func(c *Config) { c.Inspect.Top = 0 }},
		{"bad service", func(c *Config) { c.Readiness.Services = []string{"bad name"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

// TestResolveAndReadinessPoll checks path resolution against the project
// dir and the poll parameters built for a service.
func TestResolveAndReadinessPoll(t *testing.T) {
	cfg := &Config{
		Project:   ProjectConfig{Dir: "/srv/app"},
		Readiness: ReadinessConfig{Timeout: time.Minute, Interval: 2 * time.Second, Settle: 5 * time.Second},
	}

	assert.Equal(t, filepath.Join("/srv/app", ".env"), cfg.Resolve(".env"))
	assert.Equal(t, "/etc/app.env", cfg.Resolve("/etc/app.env"))
	assert.Equal(t, "", cfg.Resolve(""))

	poll := cfg.ReadinessPoll("backend")
	assert.Equal(t, "backend", poll.Service)
	assert.Equal(t, time.Minute, poll.Timeout)
	assert.Equal(t, 2*time.Second, poll.Interval)
	assert.Equal(t, 5*time.Second, poll.Settle)
}

// TestLoad_OverrideKeysKeepRouting checks that a mixed-case service name in
// readiness.http still reaches its HTTP probe. viper lowercases map keys,
// so the router has to match them case-insensitively.
func TestLoad_OverrideKeysKeepRouting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stackctl.yaml", `
readiness:
  http:
    Backend: http://localhost:8000/health
  tcp:
    PostgresDB: localhost:5432
`)

	cfg, err := Load("", dir)
	require.NoError(t, err)

	r := probe.Select(nil, cfg.Readiness.HTTP, cfg.Readiness.TCP)
	assert.Equal(t, "http http://localhost:8000/health", r.Describe("Backend"))
	assert.Equal(t, "tcp localhost:5432", r.Describe("PostgresDB"))
}
