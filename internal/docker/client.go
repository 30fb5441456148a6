package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping. Docker Desktop on macOS can take a few seconds
// to answer right after it wakes up, so this is well above a local
// round trip.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client. stackctl only reads from the
// daemon (ping, list, inspect); every state change goes through
// docker compose so that compose keeps owning the project.
//
// Usage:
//
//	c, err := docker.NewClient(cfg.Docker.Host)
//	if err != nil { /* handle */ }
//	defer c.Close()  // Always close to release the connection
//	if err := c.Ping(ctx); err != nil { /* fall back to compose ps */ }
type Client struct {
	// inner is the underlying Docker SDK client. It is wrapped rather
	// than embedded so only the read calls this package needs are
	// reachable from the rest of the code.
	inner *client.Client
}

// NewClient creates a Docker client.
//
// The daemon address is chosen in this order:
//  1. host, when not empty (from the docker.host setting)
//  2. the DOCKER_HOST environment variable
//  3. platform default sockets:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerUnavailable when no socket is
// found or the client cannot be created.
func NewClient(host string) (*Client, error) {
	// Step 1: an explicit docker.host setting wins over everything else.
	if host != "" {
		return newClientWithHost(host)
	}

	// Step 2: DOCKER_HOST is used as-is, the same way the docker CLI does.
	// The SDK parses the connection string.
	if env := os.Getenv("DOCKER_HOST"); env != "" {
		return newClientWithHost(env)
	}

	// Step 3: look for the platform's default socket.
	detected, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"Docker socket not found",
			err,
		)
	}
	return newClientWithHost(detected)
}

// newClientWithHost creates a client for a Docker connection string such as
// "unix:///var/run/docker.sock" or "npipe:////./pipe/docker_engine".
func newClientWithHost(host string) (*Client, error) {
	// API version negotiation lets one binary talk to older daemons
	// (Docker Desktop and distro packages lag behind the SDK).
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost returns the Docker socket for the current platform.
// Only existence is checked here; Ping verifies the daemon answers.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		// Rootful Docker always listens here. Rootless setups export
		// DOCKER_HOST, which was handled before detection.
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		// Docker Desktop 4.18+ moved the socket under the home directory
		// and only keeps /var/run/docker.sock when the user allows it.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{"/var/run/docker.sock"})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// os.Stat does not work on named pipes, so try a short dial.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the host URI for the first path that exists.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v (is Docker running?)", paths)
}

// Ping verifies that the Docker daemon is reachable, waiting at most
// defaultPingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	// The caller's context may have no deadline at all (the CLI context
	// only ends on Ctrl-C), so bound the wait here.
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerUnavailable,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases the client's resources. Safe to call more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
