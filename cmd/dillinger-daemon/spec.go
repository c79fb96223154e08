// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/lib/config"
	"github.com/dillinger-project/dillinger/sidecar"
)

// gpuDevices are the device nodes passed through to containers that
// render. Missing nodes are fine; the engine only mounts what exists
// on the host.
var gpuDevices = []string{
	"/dev/dri/renderD128",
	"/dev/dri/card0",
}

// defaultGameImage runs Windows games under wine. Platform-specific
// images can override it per request.
const defaultGameImage = "dillinger-wine:latest"

// buildGameSpec describes a local-display game container: the game's
// entry directory and the shared media directory mounted in, GPU
// devices passed through, the host X11 socket for display.
func buildGameSpec(cfg *config.Config, gameID, platformID, image string, command []string) engine.JobSpec {
	if image == "" {
		image = defaultGameImage
	}
	return engine.JobSpec{
		Image:   image,
		Name:    "dillinger-game-" + gameID,
		Command: command,
		Env: map[string]string{
			"DISPLAY":           ":0",
			"WINEPREFIX":        "/games/prefix",
			"DILLINGER_GAME_ID": gameID,
		},
		Mounts: []engine.Mount{
			{Source: filepath.Join(cfg.EntriesDir(), gameID), Target: "/games/" + gameID},
			{Source: filepath.Join(cfg.RootDir, "media", gameID), Target: "/media"},
			{Source: "/tmp/.X11-unix", Target: "/tmp/.X11-unix"},
		},
		Devices:     gpuDevices,
		NetworkMode: "bridge",
		Labels: map[string]string{
			"dillinger.role":     "game",
			"dillinger.game":     gameID,
			"dillinger.platform": platformID,
		},
	}
}

// buildSidecarSpec describes the streaming sidecar container: the
// environment contract filled from daemon config, the control port
// published on loopback, GPU and input devices passed through, and
// the game's directories mounted so the in-sidecar launch can see
// them.
func buildSidecarSpec(cfg *config.Config, gameID, platformID string) engine.JobSpec {
	controlPort := cfg.Sidecar.ControlPort
	return engine.JobSpec{
		Image: cfg.Sidecar.Image,
		Name:  "dillinger-sidecar-" + gameID,
		Env: map[string]string{
			sidecar.EnvMode:        string(sidecar.ModeGame),
			sidecar.EnvProfile:     platformID,
			sidecar.EnvIdleTimeout: strconv.Itoa(cfg.Sidecar.IdleTimeoutMinutes),
			sidecar.EnvGPUVendor:   cfg.Sidecar.GPUVendor,
			sidecar.EnvWidth:       "1920",
			sidecar.EnvHeight:      "1080",
			sidecar.EnvRefreshRate: "60",
		},
		Mounts: []engine.Mount{
			{Source: filepath.Join(cfg.EntriesDir(), gameID), Target: "/games/" + gameID},
			{Source: filepath.Join(cfg.RootDir, "media", gameID), Target: "/media"},
		},
		Ports: []engine.PortBinding{
			{HostIP: "127.0.0.1", HostPort: controlPort, ContainerPort: controlPort, Protocol: "tcp"},
			// Moonlight protocol ports, reachable from the LAN.
			{HostPort: 47989, ContainerPort: 47989, Protocol: "tcp"},
			{HostPort: 47998, ContainerPort: 47998, Protocol: "udp"},
			{HostPort: 47999, ContainerPort: 47999, Protocol: "udp"},
			{HostPort: 48000, ContainerPort: 48000, Protocol: "udp"},
		},
		Devices: append(gpuDevices, "/dev/uinput"),
		Labels: map[string]string{
			"dillinger.role":     "sidecar",
			"dillinger.game":     gameID,
			"dillinger.platform": platformID,
		},
	}
}

// encoderCapabilities maps the configured GPU vendor hint to the
// encoder capabilities the streaming graph may require. "auto" claims
// both families and lets the streaming server probe at runtime.
func encoderCapabilities(vendor string) []string {
	switch vendor {
	case "amd", "intel":
		return []string{"encoder/vaapi"}
	case "nvidia":
		return []string{"encoder/nvenc"}
	default:
		return []string{"encoder/vaapi", "encoder/nvenc"}
	}
}

// encoderRequirement picks the capability the default pipeline's
// video-encoder node declares.
func encoderRequirement(vendor string) string {
	if vendor == "nvidia" {
		return "encoder/nvenc"
	}
	return "encoder/vaapi"
}

func validateLaunchFields(gameID, platformID string) error {
	if gameID == "" {
		return fmt.Errorf("gameId is required")
	}
	if platformID == "" {
		return fmt.Errorf("platformId is required")
	}
	return nil
}
