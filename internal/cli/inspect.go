package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/stackctl/internal/buildctx"
)

// NewInspectCommand creates the "inspect-context" cobra command.
//
// The command is diagnostic only: it never changes files and always exits
// 0, even when the directory cannot be read.
func NewInspectCommand(env *Env) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "inspect-context [dir]",
		Short: "Explain what makes a Docker build context large",
		Long: `Walk a build context directory (default: the project dir) and report
the largest files, directories such as node_modules or .git that are not
excluded by .dockerignore, and the ignore rules in effect.

Examples:
  stackctl inspect-context
  stackctl inspect-context ./backend --top 10`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runInspect(env, dir, top)
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "Number of largest files to list (default: inspect.top)")

	return cmd
}

func runInspect(env *Env, dir string, top int) error {
	s, err := newSession(env)
	if err != nil {
		return err
	}

	root := s.cfg.Project.Dir
	if dir != "" {
		root = dir
	}
	if top <= 0 {
		top = s.cfg.Inspect.Top
	}

	report, err := buildctx.Inspect(root, buildctx.Options{
		Exclude:    s.cfg.Inspect.Exclude,
		IgnoreFile: s.cfg.Inspect.IgnoreFile,
		Top:        top,
	})
	if err != nil {
		s.ui.Warn("cannot inspect %s: %v", root, err)
		if jsonOutput {
			return printJSON(env.Stdout, map[string]interface{}{
				"root":  root,
				"error": err.Error(),
			})
		}
		return nil
	}

	if jsonOutput {
		return printJSON(env.Stdout, report)
	}
	printInspectText(newPrinter(env.Stdout), report, s.cfg.Inspect.IgnoreFile)
	return nil
}

// printInspectText renders the report for humans.
func printInspectText(p *printer, r *buildctx.Report, ignoreFile string) {
	p.Info("Build context %s: %d files, %s", r.Root, r.FileCount, formatSize(r.TotalBytes))

	p.Info("Largest files:")
	if len(r.LargestFiles) == 0 {
		p.Plain("(none)")
	}
	for _, e := range r.LargestFiles {
		p.Plain("%10s  %s", formatSize(e.SizeBytes), e.Path)
	}

	if len(r.SuspiciousDirs) == 0 {
		p.Success("No commonly excluded directories in the context")
	} else {
		p.Warn("Directories that are usually excluded but are part of the context:")
		for _, e := range r.SuspiciousDirs {
			p.Plain("%10s  %s/", formatSize(e.SizeBytes), e.Path)
		}
	}

	switch {
	case ignoreFile == "":
	case !r.IgnoreFileFound:
		p.Warn("No %s found", ignoreFile)
	case len(r.IgnoreRules) == 0:
		p.Info("%s has no rules", ignoreFile)
	default:
		p.Info("%s rules:", ignoreFile)
		for _, rule := range r.IgnoreRules {
			p.Plain("%s", rule)
		}
	}

	for _, w := range r.Warnings {
		p.Warn("%s", w)
	}
	if r.Skipped > 0 {
		p.Warn("%d entries could not be read and were skipped", r.Skipped)
	}
}
