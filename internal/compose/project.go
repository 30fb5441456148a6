// Package compose knows about the compose declaration: which files make up
// the project, which services it declares, and how to phrase a
// `docker compose` invocation against it.
//
// Files are parsed with gopkg.in/yaml.v3 first (for a clear syntax error)
// and then loaded with github.com/compose-spec/compose-go/v2, the same
// loader docker compose itself uses, so interpolation, includes and
// profiles resolve exactly as they will at runtime.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// ErrNoComposeFile is returned when no compose file is configured and none
// of the default names exist in the project dir.
var ErrNoComposeFile = errors.New("no compose file found")

// Options locates the compose declaration.
type Options struct {
	// Dir is the project directory. Relative compose paths resolve here.
	Dir string

	// Files are explicit compose files. Empty means the compose defaults.
	Files []string

	// ProjectName overrides the name compose would derive.
	ProjectName string

	// Environment is used for ${VAR} interpolation. Process environment
	// and env-file values are merged by the caller.
	Environment map[string]string
}

// Project is the subset of the compose declaration stackctl needs.
type Project struct {
	// Name is the compose project name (containers are labelled with it).
	Name string `json:"name"`

	// Dir is the absolute project directory.
	Dir string `json:"dir"`

	// Files are the absolute compose file paths, in merge order.
	Files []string `json:"files"`

	// Services are the declared service names, sorted.
	Services []string `json:"services"`

	// Ports are the fixed host ports published by services, sorted by
	// service and port. Ports left to the runtime to pick are omitted.
	Ports []model.PublishedPort `json:"ports,omitempty"`
}

// HasService reports whether name is declared.
func (p *Project) HasService(name string) bool {
	for _, s := range p.Services {
		if s == name {
			return true
		}
	}
	return false
}

// UnknownServices returns the names that are not declared, preserving order.
func (p *Project) UnknownServices(names []string) []string {
	var unknown []string
	for _, n := range names {
		if !p.HasService(n) {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// Load reads and validates the compose declaration.
func Load(ctx context.Context, opts Options) (*Project, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir %q: %w", opts.Dir, err)
	}

	files, err := ResolveFiles(dir, opts.Files)
	if err != nil {
		return nil, err
	}

	configFiles := make([]types.ConfigFile, 0, len(files))
	for _, f := range files {
		cf, err := readConfigFile(f)
		if err != nil {
			return nil, err
		}
		configFiles = append(configFiles, cf)
	}

	name := opts.ProjectName
	explicitName := name != ""
	if !explicitName {
		name = loader.NormalizeProjectName(filepath.Base(dir))
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		WorkingDir:  dir,
		ConfigFiles: configFiles,
		Environment: types.Mapping(opts.Environment),
	}, func(o *loader.Options) {
		// A top-level `name:` in the file wins over the directory name,
		// but not over an explicit --project-name style setting.
		o.SetProjectName(name, explicitName)
		o.Profiles = []string{"*"}
		// env_file entries are read by compose at runtime; a missing .env
		// must not stop `build` or `inspect-context` before bootstrap.
		o.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, fmt.Errorf("invalid compose declaration: %w", err)
	}

	services := make([]string, 0, len(project.Services))
	for svc := range project.Services {
		services = append(services, svc)
	}
	sort.Strings(services)

	var ports []model.PublishedPort
	for _, svc := range services {
		ports = append(ports, publishedPorts(svc, project.Services[svc].Ports)...)
	}

	return &Project{
		Name:     project.Name,
		Dir:      dir,
		Files:    files,
		Services: services,
		Ports:    ports,
	}, nil
}

// publishedPorts expands a service's port mappings into fixed host ports.
// A published range such as "8000-8002" yields one entry per port.
func publishedPorts(service string, cfgs []types.ServicePortConfig) []model.PublishedPort {
	var out []model.PublishedPort
	for _, c := range cfgs {
		if c.Published == "" {
			continue
		}
		lo, hi, ok := parsePortRange(c.Published)
		if !ok {
			continue
		}
		proto := c.Protocol
		if proto == "" {
			proto = "tcp"
		}
		for p := lo; p <= hi; p++ {
			out = append(out, model.PublishedPort{Service: service, HostIP: c.HostIP, Port: p, Protocol: proto})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// parsePortRange parses "8000" or "8000-8002".
func parsePortRange(s string) (int, int, bool) {
	loStr, hiStr, isRange := strings.Cut(s, "-")
	lo, err := strconv.Atoi(loStr)
	if err != nil || lo < 1 || lo > 65535 {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil || hi < lo || hi > 65535 {
		return 0, 0, false
	}
	return lo, hi, true
}

// ResolveFiles returns absolute compose file paths. Explicit files must
// exist; without them the first compose default present in dir is used.
func ResolveFiles(dir string, files []string) ([]string, error) {
	if len(files) > 0 {
		out := make([]string, 0, len(files))
		for _, f := range files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(dir, f)
			}
			if _, err := os.Stat(f); err != nil {
				return nil, fmt.Errorf("compose file %s: %w", f, err)
			}
			out = append(out, f)
		}
		return out, nil
	}

	for _, name := range cli.DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return []string{path}, nil
		}
	}
	return nil, fmt.Errorf("%w in %s (looked for %s)", ErrNoComposeFile, dir, strings.Join(cli.DefaultFileNames, ", "))
}

// readConfigFile loads one compose file, rejecting YAML syntax errors before
// compose-go gets to them.
func readConfigFile(path string) (types.ConfigFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return types.ConfigFile{}, fmt.Errorf("failed to read compose file: %w", err)
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return types.ConfigFile{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if dict == nil {
		return types.ConfigFile{}, fmt.Errorf("compose file %s is empty", path)
	}

	return types.ConfigFile{
		Filename: path,
		Content:  content,
	}, nil
}
