// Package runnertest provides a scripted CommandRunner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// Response is what the fake returns for a matching command.
type Response struct {
	Result model.CommandResult
	Err    error
}

// Fake records every command it receives and answers from a script.
//
// Responses are matched by the longest registered substring of the
// rendered command line ("compose build", "compose stop backend").
// Commands with no matching entry return exit code 0.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []runner.Command
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{responses: make(map[string]Response)}
}

// On registers a result for commands whose line contains match.
func (f *Fake) On(match string, result model.CommandResult) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[match] = Response{Result: result}
	return f
}

// OnError registers an error (typically *model.LaunchFailure) for commands
// whose line contains match.
func (f *Fake) OnError(match string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[match] = Response{Err: err}
	return f
}

// Run records the command and returns the scripted response.
func (f *Fake) Run(ctx context.Context, c runner.Command) (model.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
	if err := ctx.Err(); err != nil {
		return model.CommandResult{}, err
	}

	line := c.String()
	best := ""
	for match := range f.responses {
		if strings.Contains(line, match) && len(match) > len(best) {
			best = match
		}
	}
	if best == "" {
		return model.CommandResult{}, nil
	}
	resp := f.responses[best]
	return resp.Result, resp.Err
}

// Calls returns a copy of every command received so far.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runner.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// Lines returns the rendered command lines in call order.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

// CalledWith reports whether any recorded command line contains match.
func (f *Fake) CalledWith(match string) bool {
	for _, line := range f.Lines() {
		if strings.Contains(line, match) {
			return true
		}
	}
	return false
}
