package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shinji-kodama/stackctl/internal/compose"
	"github.com/shinji-kodama/stackctl/internal/model"
	"github.com/shinji-kodama/stackctl/internal/runner"
)

// ContainerState is one row of `docker compose ps --format json`.
type ContainerState struct {
	Name     string `json:"Name"`
	Service  string `json:"Service"`
	State    string `json:"State"`
	Health   string `json:"Health"`
	ExitCode int    `json:"ExitCode"`
}

// Ready reports whether the container is running and, when it declares a
// healthcheck, healthy.
func (c ContainerState) Ready() bool {
	if c.State != "running" {
		return false
	}
	return c.Health == "" || c.Health == "healthy"
}

// ComposePS checks readiness by running `docker compose ps` through a
// CommandRunner. The runner should not stream output to the terminal.
type ComposePS struct {
	runner runner.CommandRunner
	invoke compose.Invocation
}

// NewComposePS creates a ComposePS probe.
func NewComposePS(r runner.CommandRunner, invoke compose.Invocation) *ComposePS {
	return &ComposePS{runner: r, invoke: invoke}
}

// String names the probe in status output.
func (p *ComposePS) String() string {
	return "compose ps"
}

// Ready returns true when the service has at least one container and all
// of them are ready.
func (p *ComposePS) Ready(ctx context.Context, service model.ServiceName) (bool, error) {
	states, err := p.States(ctx, service)
	if err != nil {
		return false, err
	}
	if len(states) == 0 {
		return false, fmt.Errorf("no containers for service %q", service)
	}
	for _, s := range states {
		if !s.Ready() {
			return false, nil
		}
	}
	return true, nil
}

// States returns the container rows for the given services, or for the
// whole project when none are given.
func (p *ComposePS) States(ctx context.Context, services ...model.ServiceName) ([]ContainerState, error) {
	res, err := p.runner.Run(ctx, p.invoke.PS(services...))
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("docker compose ps exited with status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParsePS([]byte(res.Stdout))
}

// ParsePS decodes compose ps output. Compose releases before 2.21 print a
// JSON array; later ones print one object per line.
func ParsePS(data []byte) ([]ContainerState, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var states []ContainerState
		if err := json.Unmarshal(data, &states); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
		return states, nil
	}

	var states []ContainerState
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var s ContainerState
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
		states = append(states, s)
	}
	return states, nil
}
