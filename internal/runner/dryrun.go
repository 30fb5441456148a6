package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// DryRunner prints each command instead of executing it and reports
// success. It lets users preview what a start or rebuild would do.
type DryRunner struct {
	out io.Writer
}

// NewDryRunner creates a DryRunner that prints to out.
func NewDryRunner(out io.Writer) *DryRunner {
	return &DryRunner{out: out}
}

// Run prints "+ <command>" and returns exit code 0.
func (d *DryRunner) Run(ctx context.Context, c Command) (model.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CommandResult{}, err
	}
	if c.Dir != "" {
		fmt.Fprintf(d.out, "+ (cd %s) %s\n", c.Dir, c.String())
	} else {
		fmt.Fprintf(d.out, "+ %s\n", c.String())
	}
	return model.CommandResult{}, nil
}
