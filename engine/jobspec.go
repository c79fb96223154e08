// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// JobSpec describes a container to be created. It is a value object:
// built once per launch by the session manager and never mutated
// afterwards.
type JobSpec struct {
	// Image is the image reference (e.g. "dillinger-wine:latest").
	Image string

	// Name is the container name. Empty lets the engine pick one.
	Name string

	// Command overrides the image's default command when non-empty.
	Command []string

	// Env is the environment map. Rendered to the engine as sorted
	// KEY=VALUE pairs so the same spec always produces the same
	// request.
	Env map[string]string

	// Mounts are host bind mounts.
	Mounts []Mount

	// Ports are published ports.
	Ports []PortBinding

	// Devices are host device node paths passed through to the
	// container (GPU render nodes, input devices).
	Devices []string

	// User is the uid[:gid] the container process runs as. Empty uses
	// the image default.
	User string

	// NetworkMode selects the container network ("", "host",
	// "bridge", ...). Empty uses the engine default.
	NetworkMode string

	// Labels tag the container so dillinger can recognize its own
	// containers in engine listings.
	Labels map[string]string
}

// Mount is one host bind mount.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PortBinding publishes one container port on the host.
type PortBinding struct {
	// HostIP is the host interface to bind. Empty means all
	// interfaces; the sidecar control port binds 127.0.0.1.
	HostIP string

	// HostPort is the host-side port.
	HostPort int

	// ContainerPort is the port inside the container.
	ContainerPort int

	// Protocol is "tcp" or "udp". Empty means tcp.
	Protocol string
}

// containerConfig renders the image-level half of the engine create
// request.
func containerConfig(spec JobSpec) (*container.Config, error) {
	exposed := nat.PortSet{}
	for _, binding := range spec.Ports {
		port, err := natPort(binding)
		if err != nil {
			return nil, err
		}
		exposed[port] = struct{}{}
	}

	return &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          formatEnv(spec.Env),
		User:         spec.User,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}, nil
}

// hostConfig renders the host-level half of the engine create request.
func hostConfig(spec JobSpec) (*container.HostConfig, error) {
	binds := make([]string, 0, len(spec.Mounts))
	for _, mount := range spec.Mounts {
		bind := mount.Source + ":" + mount.Target
		if mount.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	devices := make([]container.DeviceMapping, 0, len(spec.Devices))
	for _, path := range spec.Devices {
		devices = append(devices, container.DeviceMapping{
			PathOnHost:        path,
			PathInContainer:   path,
			CgroupPermissions: "rwm",
		})
	}

	portBindings := nat.PortMap{}
	for _, binding := range spec.Ports {
		port, err := natPort(binding)
		if err != nil {
			return nil, err
		}
		portBindings[port] = append(portBindings[port], nat.PortBinding{
			HostIP:   binding.HostIP,
			HostPort: fmt.Sprintf("%d", binding.HostPort),
		})
	}

	return &container.HostConfig{
		Binds:        binds,
		Resources:    container.Resources{Devices: devices},
		PortBindings: portBindings,
		NetworkMode:  container.NetworkMode(spec.NetworkMode),
	}, nil
}

func natPort(binding PortBinding) (nat.Port, error) {
	protocol := binding.Protocol
	if protocol == "" {
		protocol = "tcp"
	}
	port, err := nat.NewPort(protocol, fmt.Sprintf("%d", binding.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("invalid port binding %d/%s: %w", binding.ContainerPort, protocol, err)
	}
	return port, nil
}

// formatEnv renders the environment map as sorted KEY=VALUE pairs.
func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}
