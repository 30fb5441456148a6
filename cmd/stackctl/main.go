// Package main is the entry point for the stackctl CLI.
//
// All functionality lives in the internal/cli package. Build-time variables
// (version, commit, date) are injected via ldflags and default to "dev",
// "none" and "unknown" during development.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shinji-kodama/stackctl/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Ctrl-C (or SIGTERM from a supervisor) cancels the context: running
	// child processes are killed and readiness polling stops. Go defines
	// syscall.SIGTERM on Windows too, where it is simply never delivered.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Execute(ctx, cli.NewRootCommand())
	stop()
	os.Exit(code)
}
