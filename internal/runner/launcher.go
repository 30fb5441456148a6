package runner

import (
	"context"
	"os/exec"
)

// Launcher prepares a child process for the current platform.
//
// It resolves the executable (so a missing binary surfaces as a launch
// failure before anything runs) and applies platform-specific process
// attributes. There is one implementation per target OS.
type Launcher interface {
	Command(ctx context.Context, c Command) (*exec.Cmd, error)
}

// LookPathFunc resolves an executable name to a path.
type LookPathFunc func(file string) (string, error)
