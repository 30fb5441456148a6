// Package config loads stackctl settings from defaults, an optional config
// file and STACKCTL_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the cli package.
//
// Config files may be YAML or JSON. JSON files are allowed to carry
// comments and trailing commas (JSONC); they are normalised with
// github.com/tidwall/jsonc before viper reads them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// STACKCTL_READINESS_TIMEOUT=90s.
const EnvPrefix = "STACKCTL"

// DefaultFileNames are probed in the project directory when no --config
// flag is given.
var DefaultFileNames = []string{"stackctl.yaml", "stackctl.yml", "stackctl.json", "stackctl.jsonc"}

// Config holds all application configuration.
type Config struct {
	Project   ProjectConfig   `mapstructure:"project"`
	Compose   ComposeConfig   `mapstructure:"compose"`
	Env       EnvConfig       `mapstructure:"env"`
	Build     BuildConfig     `mapstructure:"build"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Inspect   InspectConfig   `mapstructure:"inspect"`
	Report    ReportConfig    `mapstructure:"report"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

// ProjectConfig locates the deployment.
type ProjectConfig struct {
	// Dir is the directory holding the compose file and the env file.
	Dir string `mapstructure:"dir"`
}

// ComposeConfig controls how docker compose is invoked.
type ComposeConfig struct {
	// Binary is the container CLI. Compose is invoked as "<binary> compose".
	Binary string `mapstructure:"binary"`

	// Files are compose files relative to the project dir. Empty means
	// the compose defaults (compose.yaml, docker-compose.yml, ...).
	Files []string `mapstructure:"files"`

	// ProjectName overrides the compose project name.
	ProjectName string `mapstructure:"project_name"`
}

// EnvConfig describes the secret-bearing env file.
type EnvConfig struct {
	Path     string   `mapstructure:"path"`
	Template string   `mapstructure:"template"`
	Keys     []string `mapstructure:"keys"`
}

// BuildConfig holds image build options.
type BuildConfig struct {
	Parallel bool `mapstructure:"parallel"`
}

// ReadinessConfig holds health polling options.
type ReadinessConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
	Settle   time.Duration `mapstructure:"settle"`

	// Probe selects the default readiness signal: "docker" (Engine API),
	// "compose" (docker compose ps) or "none".
	Probe string `mapstructure:"probe"`

	// Services limits which services `start` waits for. Empty means all.
	Services []string `mapstructure:"services"`

	// HTTP maps a service to a URL whose 2xx/3xx response means ready.
	HTTP map[string]string `mapstructure:"http"`

	// TCP maps a service to a host:port that must accept connections.
	TCP map[string]string `mapstructure:"tcp"`

	// Strict escalates a readiness timeout to a non-zero exit.
	Strict bool `mapstructure:"strict"`
}

// InspectConfig holds build context inspection options.
type InspectConfig struct {
	Exclude    []string `mapstructure:"exclude"`
	IgnoreFile string   `mapstructure:"ignore_file"`
	Top        int      `mapstructure:"top"`
}

// ReportConfig describes the external report generator. The command is
// run with the audit id appended and its output is shown verbatim.
type ReportConfig struct {
	Command []string `mapstructure:"command"`
}

// DockerConfig holds Docker Engine client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReadinessPoll builds the poll parameters for one service.
func (c *Config) ReadinessPoll(service string) model.ReadinessPoll {
	return model.ReadinessPoll{
		Service:  service,
		Timeout:  c.Readiness.Timeout,
		Interval: c.Readiness.Interval,
		Settle:   c.Readiness.Settle,
	}
}

// Resolve returns path joined onto the project dir unless it is absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Project.Dir, path)
}

// Validate checks the values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.Compose.Binary == "" {
		return fmt.Errorf("compose.binary must not be empty")
	}
	if c.Readiness.Interval <= 0 {
		return fmt.Errorf("readiness.interval must be positive, got %s", c.Readiness.Interval)
	}
	if c.Readiness.Timeout < 0 {
		return fmt.Errorf("readiness.timeout must not be negative, got %s", c.Readiness.Timeout)
	}
	switch c.Readiness.Probe {
	case "docker", "compose", "none":
	default:
		return fmt.Errorf("readiness.probe must be one of docker, compose, none; got %q", c.Readiness.Probe)
	}
	if c.Inspect.Top <= 0 {
		return fmt.Errorf("inspect.top must be positive, got %d", c.Inspect.Top)
	}
	for _, s := range c.Readiness.Services {
		if err := model.ValidateServiceName(s); err != nil {
			return fmt.Errorf("readiness.services: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project.dir", ".")
	v.SetDefault("compose.binary", "docker")
	v.SetDefault("compose.files", []string{})
	v.SetDefault("compose.project_name", "")
	v.SetDefault("env.path", ".env")
	v.SetDefault("env.template", ".env.example")
	v.SetDefault("env.keys", []string{"API_KEY", "SECRET_KEY"})
	v.SetDefault("build.parallel", true)
	v.SetDefault("readiness.timeout", "60s")
	v.SetDefault("readiness.interval", "2s")
	v.SetDefault("readiness.settle", "5s")
	v.SetDefault("readiness.probe", "docker")
	v.SetDefault("readiness.services", []string{})
	v.SetDefault("readiness.strict", false)
	v.SetDefault("inspect.exclude", []string{
		"node_modules", ".git", "__pycache__", ".venv", "venv",
		".next", "dist", "build", ".pytest_cache", ".mypy_cache",
	})
	v.SetDefault("inspect.ignore_file", ".dockerignore")
	v.SetDefault("inspect.top", 20)
	v.SetDefault("report.command", []string{})
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load loads configuration from file and environment.
//
// configPath is the --config flag; when empty, DefaultFileNames are probed
// in projectDir. A missing default file is fine. A missing explicit file or
// a file that fails to parse is an error.
func Load(configPath, projectDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// The --project-dir flag beats the file and the environment.
	if projectDir != "" {
		v.Set("project.dir", projectDir)
	}

	file := configPath
	if file == "" {
		file = findDefaultFile(v.GetString("project.dir"))
	}
	if file != "" {
		if err := readFile(v, file); err != nil {
			return nil, err
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = file

	if cfg.Project.Dir == "" {
		cfg.Project.Dir = "."
	}
	abs, err := filepath.Abs(cfg.Project.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir %q: %w", cfg.Project.Dir, err)
	}
	cfg.Project.Dir = abs

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// findDefaultFile returns the first default config file present in dir.
func findDefaultFile(dir string) string {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// readFile reads a config file into v. JSON and JSONC files are stripped
// of comments first, since viper's JSON decoder rejects them.
func readFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "json", "jsonc":
		v.SetConfigType("json")
		data = jsonc.ToJSON(data)
	case "yaml", "yml", "":
		v.SetConfigType("yaml")
	default:
		v.SetConfigType(ext)
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
