package compose

import (
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// Invocation phrases `docker compose` commands for one project.
type Invocation struct {
	// Binary is the container CLI, normally "docker".
	Binary string

	// ProjectName is passed as -p when set.
	ProjectName string

	// Files are passed as -f in order. Later files override earlier ones.
	Files []string

	// Dir is the working directory for the command.
	Dir string

	// Env is injected into the compose process environment.
	Env map[string]string
}

// ForProject creates an Invocation for a loaded project.
func ForProject(binary string, p *Project) Invocation {
	return Invocation{
		Binary:      binary,
		ProjectName: p.Name,
		Files:       p.Files,
		Dir:         p.Dir,
	}
}

// Command builds the runner command for `<binary> compose <global flags> <args...>`.
func (i Invocation) Command(args ...string) runner.Command {
	all := buildComposeArgs(i.ProjectName, i.Files)
	all = append(all, args...)
	return runner.Command{
		Name: i.Binary,
		Args: all,
		Dir:  i.Dir,
		Env:  i.Env,
	}
}

// Build returns `compose build [--parallel] [services...]`.
func (i Invocation) Build(parallel bool, services ...string) runner.Command {
	args := []string{"build"}
	if parallel {
		args = append(args, "--parallel")
	}
	return i.Command(append(args, services...)...)
}

// Stop returns `compose stop [services...]`.
func (i Invocation) Stop(services ...string) runner.Command {
	return i.Command(append([]string{"stop"}, services...)...)
}

// Up returns `compose up -d [services...]`.
func (i Invocation) Up(services ...string) runner.Command {
	return i.Command(append([]string{"up", "-d"}, services...)...)
}

// PS returns `compose ps --all --format json [services...]`.
func (i Invocation) PS(services ...string) runner.Command {
	return i.Command(append([]string{"ps", "--all", "--format", "json"}, services...)...)
}

// buildComposeArgs constructs the global arguments for docker compose.
// Each compose file is specified with a -f flag; docker compose merges
// them in the order given.
func buildComposeArgs(projectName string, composeFiles []string) []string {
	args := make([]string, 0, len(composeFiles)*2+3)
	args = append(args, "compose")
	if projectName != "" {
		args = append(args, "-p", projectName)
	}
	for _, f := range composeFiles {
		args = append(args, "-f", f)
	}
	return args
}
