//go:build windows

package runner

import (
	"context"
	"os"
	"os/exec"
	"syscall"
)

// windowsLauncher resolves executables through PATHEXT (docker.exe,
// docker-compose.cmd) and keeps child console windows hidden.
type windowsLauncher struct {
	lookPath LookPathFunc
}

// NewLauncher returns the launcher for the current platform.
func NewLauncher() Launcher {
	return &windowsLauncher{lookPath: exec.LookPath}
}

func (l *windowsLauncher) Command(ctx context.Context, c Command) (*exec.Cmd, error) {
	path, err := l.lookPath(c.Name)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd, nil
}
