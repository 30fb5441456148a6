package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// ContainerInfo is the readiness-relevant view of one service container.
type ContainerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Service string `json:"service"`
	Number  int    `json:"number"`

	// State is the Docker state: "running", "exited", "restarting", ...
	State string `json:"state"`

	// Health is the healthcheck status ("starting", "healthy", "unhealthy"),
	// empty when the image declares no healthcheck.
	Health string `json:"health,omitempty"`
}

// Ready reports whether the container is running and not failing its
// healthcheck.
func (c ContainerInfo) Ready() bool {
	if c.State != "running" {
		return false
	}
	return c.Health == "" || c.Health == "healthy"
}

// engineAPI is the subset of the Docker SDK client the probe uses.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// ServiceProbe decides readiness from the Engine API. It lists the
// containers carrying the project's compose labels and inspects each one
// for its healthcheck status.
type ServiceProbe struct {
	api     engineAPI
	project string
}

// NewServiceProbe creates a probe for the containers of a compose project.
func NewServiceProbe(c *Client, project string) *ServiceProbe {
	return &ServiceProbe{api: c.inner, project: project}
}

// String names the probe in status output.
func (p *ServiceProbe) String() string {
	return "docker engine"
}

// Ready returns true when the service has at least one container and every
// container is ready.
func (p *ServiceProbe) Ready(ctx context.Context, service model.ServiceName) (bool, error) {
	infos, err := p.Containers(ctx, service)
	if err != nil {
		return false, err
	}
	if len(infos) == 0 {
		return false, fmt.Errorf("no containers for service %q in project %q", service, p.project)
	}
	for _, c := range infos {
		if !c.Ready() {
			return false, nil
		}
	}
	return true, nil
}

// Containers lists the service's containers, including stopped ones, sorted
// by replica number. One-off `compose run` containers are skipped.
func (p *ServiceProbe) Containers(ctx context.Context, service model.ServiceName) ([]ContainerInfo, error) {
	containers, err := p.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: ServiceFilter(p.project, service),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		info, ok := containerToInfo(c)
		if !ok {
			continue
		}
		// The list endpoint only carries health inside the human status
		// text, so ask for the structured value.
		if info.State == "running" {
			resp, err := p.api.ContainerInspect(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect container %s: %w", info.Name, err)
			}
			info.Health = healthOf(resp)
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Service != result[j].Service {
			return result[i].Service < result[j].Service
		}
		return result[i].Number < result[j].Number
	})
	return result, nil
}

// containerToInfo maps a list entry to ContainerInfo. It reports false for
// containers without compose labels and for one-off containers.
func containerToInfo(c container.Summary) (ContainerInfo, bool) {
	labels, err := ParseLabels(c.Labels)
	if err != nil || labels.OneOff {
		return ContainerInfo{}, false
	}

	// Names carry a leading "/" from the API.
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return ContainerInfo{
		ID:      c.ID,
		Name:    name,
		Service: labels.Service,
		Number:  labels.Number,
		State:   string(c.State),
	}, true
}

// healthOf returns the healthcheck status from an inspect response, empty
// when the container has no healthcheck.
func healthOf(resp container.InspectResponse) string {
	if resp.ContainerJSONBase == nil || resp.State == nil || resp.State.Health == nil {
		return ""
	}
	return string(resp.State.Health.Status)
}
