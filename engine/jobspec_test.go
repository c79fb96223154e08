// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"reflect"
	"testing"
)

func TestFormatEnvSortedPairs(t *testing.T) {
	env := map[string]string{
		"DILLINGER_MODE":    "game",
		"DILLINGER_PROFILE": "1080p60",
		"DISPLAY":           ":0",
	}
	got := formatEnv(env)
	want := []string{
		"DILLINGER_MODE=game",
		"DILLINGER_PROFILE=1080p60",
		"DISPLAY=:0",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("formatEnv = %v, want %v", got, want)
	}
}

func TestFormatEnvEmpty(t *testing.T) {
	if got := formatEnv(nil); got != nil {
		t.Errorf("formatEnv(nil) = %v, want nil", got)
	}
}

func TestHostConfigBindsAndDevices(t *testing.T) {
	spec := JobSpec{
		Image: "dillinger-wine:latest",
		Mounts: []Mount{
			{Source: "/mnt/games/doom", Target: "/game"},
			{Source: "/mnt/media", Target: "/media", ReadOnly: true},
		},
		Devices: []string{"/dev/dri/renderD128"},
	}

	host, err := hostConfig(spec)
	if err != nil {
		t.Fatalf("hostConfig: %v", err)
	}

	wantBinds := []string{"/mnt/games/doom:/game", "/mnt/media:/media:ro"}
	if !reflect.DeepEqual(host.Binds, wantBinds) {
		t.Errorf("Binds = %v, want %v", host.Binds, wantBinds)
	}

	if len(host.Devices) != 1 {
		t.Fatalf("Devices count = %d, want 1", len(host.Devices))
	}
	device := host.Devices[0]
	if device.PathOnHost != "/dev/dri/renderD128" || device.PathInContainer != "/dev/dri/renderD128" {
		t.Errorf("device mapping = %+v", device)
	}
	if device.CgroupPermissions != "rwm" {
		t.Errorf("CgroupPermissions = %q, want rwm", device.CgroupPermissions)
	}
}

func TestPortBindings(t *testing.T) {
	spec := JobSpec{
		Image: "dillinger-sidecar:latest",
		Ports: []PortBinding{
			{HostIP: "127.0.0.1", HostPort: 47990, ContainerPort: 47990},
			{HostPort: 48000, ContainerPort: 48000, Protocol: "udp"},
		},
	}

	config, err := containerConfig(spec)
	if err != nil {
		t.Fatalf("containerConfig: %v", err)
	}
	host, err := hostConfig(spec)
	if err != nil {
		t.Fatalf("hostConfig: %v", err)
	}

	if _, ok := config.ExposedPorts["47990/tcp"]; !ok {
		t.Error("47990/tcp not exposed")
	}
	if _, ok := config.ExposedPorts["48000/udp"]; !ok {
		t.Error("48000/udp not exposed")
	}

	bindings := host.PortBindings["47990/tcp"]
	if len(bindings) != 1 || bindings[0].HostIP != "127.0.0.1" || bindings[0].HostPort != "47990" {
		t.Errorf("47990/tcp bindings = %+v", bindings)
	}
}

func TestContainerConfigCommandAndLabels(t *testing.T) {
	spec := JobSpec{
		Image:   "dillinger-wine:latest",
		Command: []string{"wine", "/game/doom.exe"},
		Labels:  map[string]string{"dillinger.session": "abc123"},
		User:    "1000:1000",
	}

	config, err := containerConfig(spec)
	if err != nil {
		t.Fatalf("containerConfig: %v", err)
	}
	if len(config.Cmd) != 2 || config.Cmd[0] != "wine" {
		t.Errorf("Cmd = %v", config.Cmd)
	}
	if config.Labels["dillinger.session"] != "abc123" {
		t.Errorf("Labels = %v", config.Labels)
	}
	if config.User != "1000:1000" {
		t.Errorf("User = %q", config.User)
	}
}
