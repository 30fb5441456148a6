//go:build !windows

package runner

import (
	"context"
	"os"
	"os/exec"
)

// unixLauncher starts processes directly, inheriting the process group so
// Ctrl-C in the terminal reaches docker compose as well.
type unixLauncher struct {
	lookPath LookPathFunc
}

// NewLauncher returns the launcher for the current platform.
func NewLauncher() Launcher {
	return &unixLauncher{lookPath: exec.LookPath}
}

func (l *unixLauncher) Command(ctx context.Context, c Command) (*exec.Cmd, error) {
	path, err := l.lookPath(c.Name)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	return cmd, nil
}
