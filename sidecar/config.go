// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package sidecar implements the controller process that runs inside
// the streaming sidecar container: it reconciles device access for
// the unprivileged user, supervises the audio backend, headless
// compositor and streaming server as ordered child processes, watches
// for idle disconnection, and serves the loopback control API the
// host daemon queries.
package sidecar

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Mode selects the controller's startup branch.
type Mode string

const (
	// ModeGame runs compositor + streaming server for a real game.
	ModeGame Mode = "game"
	// ModeTestStream is ModeGame plus a synthetic client window, so
	// the stream shows something without a game attached.
	ModeTestStream Mode = "test-stream"
	// ModeTestX11 drives a test pattern straight to the host display
	// system; no compositor and no streaming server.
	ModeTestX11 Mode = "test-x11"
)

// Environment variable names forming the host-to-sidecar contract.
// The host daemon sets these at container creation; the sidecar reads
// them once at startup.
const (
	EnvMode        = "DILLINGER_MODE"
	EnvProfile     = "DILLINGER_PROFILE"
	EnvIdleTimeout = "DILLINGER_IDLE_TIMEOUT_MINUTES"
	EnvGPUVendor   = "DILLINGER_GPU_VENDOR"
	EnvWidth       = "DILLINGER_WIDTH"
	EnvHeight      = "DILLINGER_HEIGHT"
	EnvRefreshRate = "DILLINGER_REFRESH_RATE"
	EnvUID         = "DILLINGER_UID"
	EnvGID         = "DILLINGER_GID"
)

// Config is the sidecar's launch-time configuration, fixed for the
// process lifetime.
type Config struct {
	Mode        Mode
	Profile     string
	IdleTimeout time.Duration
	GPUVendor   string
	Width       int
	Height      int
	RefreshRate int

	// UID and GID of the in-container unprivileged user that runs
	// the compositor and streaming server.
	UID int
	GID int

	// RuntimeDir holds sockets and the controller's runtime-state
	// file. Exposed to sibling containers via a shared mount.
	RuntimeDir string

	// ConfigDir holds the generated streaming-server configuration.
	ConfigDir string

	// ControlPort is the loopback control API port.
	ControlPort int
}

// FromEnv reads the environment contract into a validated Config.
func FromEnv() (Config, error) {
	config := Config{
		Mode:        Mode(envOr(EnvMode, string(ModeGame))),
		Profile:     envOr(EnvProfile, "default"),
		GPUVendor:   envOr(EnvGPUVendor, "auto"),
		RuntimeDir:  envOr("XDG_RUNTIME_DIR", "/run/dillinger"),
		ConfigDir:   DefaultConfigDir,
		ControlPort: 47990,
	}

	var err error
	if config.Width, err = envInt(EnvWidth, 1920); err != nil {
		return Config{}, err
	}
	if config.Height, err = envInt(EnvHeight, 1080); err != nil {
		return Config{}, err
	}
	if config.RefreshRate, err = envInt(EnvRefreshRate, 60); err != nil {
		return Config{}, err
	}
	if config.UID, err = envInt(EnvUID, 1000); err != nil {
		return Config{}, err
	}
	if config.GID, err = envInt(EnvGID, 1000); err != nil {
		return Config{}, err
	}

	minutes, err := envInt(EnvIdleTimeout, 30)
	if err != nil {
		return Config{}, err
	}
	config.IdleTimeout = time.Duration(minutes) * time.Minute

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeGame, ModeTestStream, ModeTestX11:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.RefreshRate <= 0 {
		return fmt.Errorf("invalid refresh rate %d", c.RefreshRate)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("negative idle timeout %s", c.IdleTimeout)
	}
	switch c.GPUVendor {
	case "amd", "nvidia", "intel", "auto":
	default:
		return fmt.Errorf("unknown gpu vendor %q", c.GPUVendor)
	}
	return nil
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", name, value, err)
	}
	return parsed, nil
}
