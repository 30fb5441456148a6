// Package docker talks to the Docker Engine API directly.
//
// It is used for one job: deciding whether the containers docker compose
// created for a service are running and healthy. Containers are found by
// the labels compose puts on every container it manages, so no state is
// kept outside the daemon.
//
// The package uses github.com/docker/docker/client with API version
// negotiation enabled, so it works against older daemons too.
package docker
