// Package buildctx reports what would be sent to the Docker daemon as a
// build context, so oversized contexts can be diagnosed.
//
// Inspection is read-only. It lists the largest files and flags
// directories such as node_modules or .git that are usually meant to be
// excluded but are not covered by the ignore file.
package buildctx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// DefaultTop is the number of largest files reported when Options.Top is
// not positive.
const DefaultTop = 20

// Options configures an inspection.
type Options struct {
	// Exclude holds base-name patterns of directories that should normally
	// be kept out of a build context ("node_modules", ".git", "*.egg-info").
	Exclude []string

	// IgnoreFile is the ignore file name relative to the root. Empty means
	// no ignore file is consulted.
	IgnoreFile string

	// Top limits LargestFiles.
	Top int
}

// Report is the result of one inspection.
type Report struct {
	// Root is the inspected directory as given.
	Root string `json:"root"`

	// LargestFiles holds at most Top files in descending size order.
	LargestFiles []model.ContextEntry `json:"largestFiles"`

	// SuspiciousDirs holds exclude-pattern directories that are still part
	// of the context, in descending size order.
	SuspiciousDirs []model.ContextEntry `json:"suspiciousDirs"`

	// IgnoreRules are the rules read from the ignore file, in file order.
	IgnoreRules []string `json:"ignoreRules"`

	// IgnoreFileFound is false when the ignore file does not exist.
	IgnoreFileFound bool `json:"ignoreFileFound"`

	// TotalBytes and FileCount summarise the files that are in the context.
	TotalBytes int64 `json:"totalBytes"`
	FileCount  int   `json:"fileCount"`

	// Skipped counts entries that could not be read.
	Skipped int `json:"skipped"`

	// Warnings are non-fatal problems, such as an invalid ignore rule.
	Warnings []string `json:"warnings,omitempty"`
}

// Inspect walks rootDir and builds a Report.
//
// Paths covered by the ignore file are not part of the context and are
// neither counted nor descended into. Unreadable entries below the root
// are counted in Skipped. An unreadable root returns
// *model.TraversalFailure.
func Inspect(rootDir string, opts Options) (*Report, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, &model.TraversalFailure{Path: rootDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &model.TraversalFailure{Path: rootDir, Err: fmt.Errorf("not a directory")}
	}

	top := opts.Top
	if top <= 0 {
		top = DefaultTop
	}

	report := &Report{
		Root:           rootDir,
		LargestFiles:   []model.ContextEntry{},
		SuspiciousDirs: []model.ContextEntry{},
		IgnoreRules:    []string{},
	}

	matcher, err := loadIgnoreFile(rootDir, opts.IgnoreFile, report)
	if err != nil {
		return nil, err
	}

	var (
		files      []model.ContextEntry
		suspicious []*model.ContextEntry
		open       *model.ContextEntry
	)

	walkErr := filepath.WalkDir(rootDir, func(p string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(rootDir, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			if err != nil {
				return &model.TraversalFailure{Path: rootDir, Err: err}
			}
			return nil
		}
		if err != nil {
			report.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if matcher != nil {
			covered, mErr := matcher.MatchesOrParentMatches(rel)
			if mErr != nil {
				return mErr
			}
			if covered {
				if d.IsDir() && !reincludesBelow(matcher, rel) {
					return fs.SkipDir
				}
				return nil
			}
		}

		slashRel := filepath.ToSlash(rel)
		if open != nil && !strings.HasPrefix(slashRel, open.Path+"/") {
			open = nil
		}

		if d.IsDir() {
			if open == nil && matchesAny(opts.Exclude, d.Name()) {
				open = &model.ContextEntry{Path: slashRel, IsExcludedCandidate: true}
				suspicious = append(suspicious, open)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			report.Skipped++
			return nil
		}
		size := fi.Size()
		report.TotalBytes += size
		report.FileCount++
		if open != nil {
			open.SizeBytes += size
		}
		files = append(files, model.ContextEntry{Path: slashRel, SizeBytes: size})
		return nil
	})
	if walkErr != nil {
		var tf *model.TraversalFailure
		if errors.As(walkErr, &tf) {
			return nil, tf
		}
		return nil, fmt.Errorf("failed to walk %s: %w", rootDir, walkErr)
	}

	sortBySize(files)
	if len(files) > top {
		files = files[:top]
	}
	report.LargestFiles = append(report.LargestFiles, files...)

	for _, s := range suspicious {
		report.SuspiciousDirs = append(report.SuspiciousDirs, *s)
	}
	sortBySize(report.SuspiciousDirs)

	return report, nil
}

// loadIgnoreFile reads the ignore file into report and returns a matcher
// for it, or nil when there are no usable rules.
func loadIgnoreFile(rootDir, name string, report *Report) (*patternmatcher.PatternMatcher, error) {
	if name == "" {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(rootDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("cannot read %s: %v", name, err))
		return nil, nil
	}
	defer f.Close()

	rules, err := ignorefile.ReadAll(f)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("cannot parse %s: %v", name, err))
		return nil, nil
	}
	report.IgnoreFileFound = true
	report.IgnoreRules = append(report.IgnoreRules, rules...)
	if len(rules) == 0 {
		return nil, nil
	}

	pm, err := patternmatcher.New(expandBareNames(rules))
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("invalid rule in %s: %v", name, err))
		return nil, nil
	}
	return pm, nil
}

// expandBareNames adds a "**/name" companion after every single-segment
// rule without wildcards, so "node_modules" also covers
// "frontend/node_modules". Negated rules get a negated companion.
func expandBareNames(rules []string) []string {
	out := make([]string, 0, len(rules)*2)
	for _, r := range rules {
		out = append(out, r)

		negated := strings.HasPrefix(r, "!")
		name := strings.TrimPrefix(r, "!")
		name = strings.TrimSuffix(name, "/")
		if name == "" || name == "." || name == ".." ||
			strings.ContainsAny(name, "/\\*?[") {
			continue
		}
		companion := "**/" + name
		if negated {
			companion = "!" + companion
		}
		out = append(out, companion)
	}
	return out
}

// reincludesBelow reports whether a negated rule could bring back a path
// under the excluded directory rel, in which case the walk has to descend
// and filter file by file. This is the same test the Docker CLI applies
// when it walks a build context.
func reincludesBelow(pm *patternmatcher.PatternMatcher, rel string) bool {
	if !pm.Exclusions() {
		return false
	}
	dirSlash := filepath.ToSlash(rel) + "/"
	for _, pat := range pm.Patterns() {
		if !pat.Exclusion() {
			continue
		}
		pattern := filepath.ToSlash(pat.String())
		// "**/name" companions can match anywhere, including below rel.
		if strings.HasPrefix(pattern+"/", dirSlash) || strings.HasPrefix(pattern, "**/") {
			return true
		}
	}
	return false
}

// matchesAny reports whether name matches one of the base-name patterns.
func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// sortBySize orders entries by descending size, then by path.
func sortBySize(entries []model.ContextEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].SizeBytes != entries[j].SizeBytes {
			return entries[i].SizeBytes > entries[j].SizeBytes
		}
		return entries[i].Path < entries[j].Path
	})
}
