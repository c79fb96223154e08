// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is a thin typed wrapper over the container engine's
// control socket (Docker Engine API, served by podman or docker). It
// exposes exactly the operations the session manager and sidecar
// tooling need: create, start, stop, remove, inspect, logs, exec,
// wait-for-exit, and image pull.
//
// Failure semantics: transport and API errors are surfaced verbatim to
// the caller — the client never retries or swallows them. The one
// exception is "not found" on Inspect and Remove, which is reported as
// already-absent so cleanup paths stay idempotent.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrNotFound is returned by Inspect when the container does not
// exist. Remove treats the same condition as success.
var ErrNotFound = errors.New("container not found")

// ContainerState is the subset of engine inspect output the session
// manager acts on.
type ContainerState struct {
	Running   bool
	ExitCode  int
	StartedAt time.Time
}

// Client wraps the engine API client. Safe for concurrent use.
type Client struct {
	api    client.APIClient
	logger *slog.Logger
}

// New connects to the engine control socket. The socket URL uses the
// engine client's host syntax (e.g.
// "unix:///run/user/1000/podman/podman.sock"). The connection is lazy;
// use Ping to verify the engine is reachable.
func New(socket string, logger *slog.Logger) (*Client, error) {
	api, err := client.NewClientWithOpts(
		client.WithHost(socket),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting engine client to %s: %w", socket, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}, nil
}

// NewWithAPI wraps an existing engine API client. Used by tests.
func NewWithAPI(api client.APIClient, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// Ping reports whether the engine daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("pinging container engine: %w", err)
	}
	return nil
}

// Create creates a container from the spec and returns its id. The
// container is not started.
func (c *Client) Create(ctx context.Context, spec JobSpec) (string, error) {
	config, err := containerConfig(spec)
	if err != nil {
		return "", err
	}
	host, err := hostConfig(spec)
	if err != nil {
		return "", err
	}

	response, err := c.api.ContainerCreate(ctx, config, host, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("creating container from %s: %w", spec.Image, err)
	}
	c.logger.Debug("container created", "container_id", response.ID, "image", spec.Image)
	return response.ID, nil
}

// Start starts a created container.
func (c *Client) Start(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", id, err)
	}
	return nil
}

// Stop asks the container to exit, killing it after the timeout.
func (c *Client) Stop(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := c.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

// Remove deletes a container. A container that is already gone is not
// an error, so Remove can be called unconditionally from cleanup
// paths.
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

// Inspect returns the container's run state. A missing container
// returns ErrNotFound (testable with errors.Is).
func (c *Client) Inspect(ctx context.Context, id string) (ContainerState, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerState{}, fmt.Errorf("inspecting container %s: %w", id, ErrNotFound)
		}
		return ContainerState{}, fmt.Errorf("inspecting container %s: %w", id, err)
	}

	state := ContainerState{}
	if info.State != nil {
		state.Running = info.State.Running
		state.ExitCode = info.State.ExitCode
		if startedAt, parseErr := time.Parse(time.RFC3339Nano, info.State.StartedAt); parseErr == nil {
			state.StartedAt = startedAt
		}
	}
	return state, nil
}

// Logs returns the container's log stream. The caller closes it. With
// follow set the stream stays open until the container exits.
func (c *Client) Logs(ctx context.Context, id string, tail int, follow bool) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	}
	if tail > 0 {
		options.Tail = fmt.Sprintf("%d", tail)
	}
	reader, err := c.api.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, fmt.Errorf("reading logs for container %s: %w", id, err)
	}
	return reader, nil
}

// WaitForExit blocks until the container is no longer running and
// returns its exit code. This can block for hours — pass a context
// tied to the session's lifetime.
func (c *Client) WaitForExit(ctx context.Context, id string) (int, error) {
	waitCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("waiting for container %s: %w", id, err)
	case response := <-waitCh:
		if response.Error != nil {
			return 0, fmt.Errorf("waiting for container %s: %s", id, response.Error.Message)
		}
		return int(response.StatusCode), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Pull fetches an image and returns the engine's JSON progress stream.
// The caller must drain and close it; the pull completes when the
// stream ends.
func (c *Client) Pull(ctx context.Context, reference string) (io.ReadCloser, error) {
	reader, err := c.api.ImagePull(ctx, reference, types.ImagePullOptions{})
	if err != nil {
		return nil, fmt.Errorf("pulling image %s: %w", reference, err)
	}
	return reader, nil
}

// ExecResult is the outcome of an Exec invocation.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Exec runs a command inside a running container and collects its
// output. Used by the pairing gateway's fallback transport to query
// the sidecar when its HTTP control port is unreachable.
func (c *Client) Exec(ctx context.Context, id string, command []string) (ExecResult, error) {
	created, err := c.api.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("creating exec in container %s: %w", id, err)
	}

	attached, err := c.api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attaching exec in container %s: %w", id, err)
	}
	defer attached.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		return ExecResult{}, fmt.Errorf("reading exec output from container %s: %w", id, err)
	}

	inspect, err := c.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("inspecting exec in container %s: %w", id, err)
	}

	return ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}
