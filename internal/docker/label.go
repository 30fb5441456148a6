package docker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/filters"
)

// Labels that docker compose applies to every container it creates. They
// are the only link between a running container and its compose service.
const (
	// LabelProject holds the compose project name.
	LabelProject = "com.docker.compose.project"

	// LabelService holds the service key from the compose file.
	LabelService = "com.docker.compose.service"

	// LabelContainerNumber is the replica index, starting at 1.
	LabelContainerNumber = "com.docker.compose.container-number"

	// LabelOneOff is "True" for containers created by `docker compose run`.
	LabelOneOff = "com.docker.compose.oneoff"
)

// ServiceLabels is the compose identity parsed from a container's labels.
type ServiceLabels struct {
	Project string
	Service string
	Number  int
	OneOff  bool
}

// ServiceFilter builds a label filter matching the containers of one
// service. An empty service matches every service of the project.
func ServiceFilter(project, service string) filters.Args {
	args := filters.NewArgs(filters.Arg("label", LabelProject+"="+project))
	if service != "" {
		args.Add("label", LabelService+"="+service)
	}
	return args
}

// ParseLabels extracts the compose identity from a label map. The project
// and service labels are required; the replica number defaults to 1.
func ParseLabels(labels map[string]string) (ServiceLabels, error) {
	var missing []string
	for _, key := range []string{LabelProject, LabelService} {
		if labels[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ServiceLabels{}, fmt.Errorf("missing compose labels: %s", strings.Join(missing, ", "))
	}

	sl := ServiceLabels{
		Project: labels[LabelProject],
		Service: labels[LabelService],
		Number:  1,
		OneOff:  strings.EqualFold(labels[LabelOneOff], "true"),
	}
	if raw, ok := labels[LabelContainerNumber]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return ServiceLabels{}, fmt.Errorf("invalid label %s=%q", LabelContainerNumber, raw)
		}
		sl.Number = n
	}
	return sl, nil
}
