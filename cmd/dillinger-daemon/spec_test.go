// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/lib/config"
	"github.com/dillinger-project/dillinger/sidecar"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	return cfg
}

func TestBuildSidecarSpecPorts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sidecar.ControlPort = 48010

	spec := buildSidecarSpec(cfg, "doom", "wine")

	byContainerPort := map[int]engine.PortBinding{}
	for _, binding := range spec.Ports {
		byContainerPort[binding.ContainerPort] = binding
	}

	control, ok := byContainerPort[48010]
	if !ok {
		t.Fatalf("control port 48010 not published; ports = %+v", spec.Ports)
	}
	if control.HostIP != "127.0.0.1" {
		t.Errorf("control port HostIP = %q, want loopback only", control.HostIP)
	}
	if control.HostPort != 48010 {
		t.Errorf("control port HostPort = %d, want 48010", control.HostPort)
	}

	moonlight := []struct {
		port     int
		protocol string
	}{
		{47989, "tcp"},
		{47998, "udp"},
		{47999, "udp"},
		{48000, "udp"},
	}
	for _, want := range moonlight {
		binding, ok := byContainerPort[want.port]
		if !ok {
			t.Errorf("port %d not published", want.port)
			continue
		}
		if binding.Protocol != want.protocol {
			t.Errorf("port %d protocol = %q, want %q", want.port, binding.Protocol, want.protocol)
		}
		if binding.HostIP != "" {
			t.Errorf("port %d bound to %q, want all interfaces", want.port, binding.HostIP)
		}
		if binding.HostPort != want.port {
			t.Errorf("port %d published on host port %d", want.port, binding.HostPort)
		}
	}
}

func TestBuildSidecarSpecEnvContract(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sidecar.IdleTimeoutMinutes = 5
	cfg.Sidecar.GPUVendor = "amd"

	spec := buildSidecarSpec(cfg, "doom", "wine")

	want := map[string]string{
		sidecar.EnvMode:        "game",
		sidecar.EnvProfile:     "wine",
		sidecar.EnvIdleTimeout: "5",
		sidecar.EnvGPUVendor:   "amd",
	}
	for name, value := range want {
		if got := spec.Env[name]; got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if spec.Image != cfg.Sidecar.Image {
		t.Errorf("Image = %q, want %q", spec.Image, cfg.Sidecar.Image)
	}
}

func TestBuildGameSpecDefaults(t *testing.T) {
	cfg := testConfig(t)

	spec := buildGameSpec(cfg, "doom", "wine", "", []string{"wine", "doom.exe"})
	if spec.Image != defaultGameImage {
		t.Errorf("Image = %q, want default", spec.Image)
	}
	if spec.NetworkMode != "bridge" {
		t.Errorf("NetworkMode = %q, want bridge", spec.NetworkMode)
	}
	if spec.Labels["dillinger.game"] != "doom" {
		t.Errorf("Labels = %v", spec.Labels)
	}

	override := buildGameSpec(cfg, "doom", "wine", "dillinger-dos:latest", nil)
	if override.Image != "dillinger-dos:latest" {
		t.Errorf("Image = %q, want override honored", override.Image)
	}
}
