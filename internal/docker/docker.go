// Package docker adapts the local container runtime for health probing and
// diagnostics. Structured queries go through the Engine API; exec, logs and cp are
// issued through the docker CLI so their output can be surfaced verbatim.
package docker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/client"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// Inspector is the Engine API surface used by Client.
type Inspector interface {
	ContainerInspect(ctx context.Context, containerID string, options client.ContainerInspectOptions) (client.ContainerInspectResult, error)
}

// Client answers runtime questions about service containers.
type Client struct {
	api    Inspector
	runner runner.Runner
	binary string
	logger *slog.Logger
	closer func() error
}

// New connects to the Engine API using the standard DOCKER_* environment.
func New(r runner.Runner, logger *slog.Logger) (*Client, error) {
	api, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	c := NewWithInspector(api, r, logger)
	c.closer = api.Close
	return c, nil
}

// NewWithInspector builds a Client over an existing Inspector.
func NewWithInspector(api Inspector, r runner.Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{api: api, runner: r, binary: "docker", logger: logger}
}

// Close releases the Engine API connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// HealthStatus returns the healthcheck status of container, or an empty string when
// the container defines no healthcheck.
func (c *Client) HealthStatus(ctx context.Context, container string) (string, error) {
	res, err := c.api.ContainerInspect(ctx, container, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("container %q not found: %w", container, err)
		}
		return "", fmt.Errorf("inspect container %q: %w", container, err)
	}
	state := res.Container.State
	if state == nil || state.Health == nil {
		return "", nil
	}
	return string(state.Health.Status), nil
}

// RestartCount returns how often the runtime restarted container. A container that
// does not exist yet has restarted zero times.
func (c *Client) RestartCount(ctx context.Context, container string) (int, error) {
	res, err := c.api.ContainerInspect(ctx, container, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("inspect container %q: %w", container, err)
	}
	return res.Container.RestartCount, nil
}

// Exec runs command with sh -c inside container and returns its exit code.
func (c *Client) Exec(ctx context.Context, container, command string) (int, error) {
	res, err := c.ExecArgs(ctx, container, "sh", "-c", command)
	return res.ExitCode, err
}

// ExecArgs runs an argument vector inside container.
func (c *Client) ExecArgs(ctx context.Context, container string, args ...string) (runner.Result, error) {
	res, err := c.runner.Run(ctx, runner.Cmd{
		Name: c.binary,
		Args: append([]string{"exec", container}, args...),
	})
	if err != nil {
		return res, fmt.Errorf("docker exec in %q: %w", container, err)
	}
	c.logger.Debug("docker exec finished", "container", container, "exit_code", res.ExitCode)
	return res, nil
}

// LastLogLine returns the most recent log line of container, or an empty string.
func (c *Client) LastLogLine(ctx context.Context, container string) (string, error) {
	res, err := c.runner.Run(ctx, runner.Cmd{
		Name: c.binary,
		Args: []string{"logs", "--tail", "1", container},
	})
	if err != nil {
		return "", fmt.Errorf("docker logs %q: %w", container, err)
	}
	tail := res.Tail(1)
	if len(tail) == 0 {
		return "", nil
	}
	return tail[0], nil
}

// CopyTo copies a host file into container at dest.
func (c *Client) CopyTo(ctx context.Context, src, container, dest string) error {
	res, err := c.runner.Run(ctx, runner.Cmd{
		Name: c.binary,
		Args: []string{"cp", src, container + ":" + dest},
	})
	if err != nil {
		return fmt.Errorf("docker cp to %q: %w", container, err)
	}
	if !res.OK() {
		return fmt.Errorf("docker cp to %q exited with %d", container, res.ExitCode)
	}
	return nil
}
