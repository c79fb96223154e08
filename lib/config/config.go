// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the host daemon's master configuration from
// dillinger.toml under the dillinger root directory. The root is
// resolved from the DILLINGER_ROOT_DIR environment variable, falling
// back to the current directory. Every field has a default so a
// missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// RootDirEnv names the environment variable pointing at the dillinger
// root directory (game entries, master config, session records).
const RootDirEnv = "DILLINGER_ROOT_DIR"

// Config is the host daemon's master configuration.
type Config struct {
	// RootDir is the dillinger root directory. Not read from the
	// config file — it is where the config file lives.
	RootDir string `mapstructure:"-"`

	// ListenAddress is the loopback address the daemon's JSON API
	// binds to. The web UI is a separate process talking to this.
	ListenAddress string `mapstructure:"listen_address"`

	Engine  Engine  `mapstructure:"engine"`
	Sidecar Sidecar `mapstructure:"sidecar"`
}

// Engine configures the container engine connection.
type Engine struct {
	// Socket is the engine API socket URL. Defaults to the rootless
	// podman socket.
	Socket string `mapstructure:"socket"`

	// StopTimeout is how long a container gets to exit after SIGTERM
	// before the engine kills it.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// Sidecar configures streaming-sidecar container creation.
type Sidecar struct {
	// Image is the sidecar container image reference.
	Image string `mapstructure:"image"`

	// ControlPort is the fixed loopback port the sidecar's control
	// API is published on. The pairing gateway's HTTP transport and
	// the launch readiness wait both target this port.
	ControlPort int `mapstructure:"control_port"`

	// IdleTimeoutMinutes shuts the sidecar down after this many
	// minutes with zero connected compositor clients. Zero disables
	// the idle monitor.
	IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes"`

	// GPUVendor hints which encoder/driver environment the sidecar
	// sets up: "amd", "nvidia", "intel", or "auto".
	GPUVendor string `mapstructure:"gpu_vendor"`

	// GraphFile is a path (relative to RootDir) to a streaming graph
	// definition overriding the built-in default pipeline.
	GraphFile string `mapstructure:"graph_file"`
}

// Load reads dillinger.toml from the root directory. A missing file
// yields the defaults; a malformed file is an error.
func Load() (*Config, error) {
	root := os.Getenv(RootDirEnv)
	if root == "" {
		root = "."
	}
	return LoadFrom(root)
}

// LoadFrom reads dillinger.toml from the given root directory.
func LoadFrom(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("dillinger")
	v.SetConfigType("toml")
	v.AddConfigPath(absRoot)

	v.SetDefault("listen_address", "127.0.0.1:3030")
	v.SetDefault("engine.socket", "unix:///run/user/1000/podman/podman.sock")
	v.SetDefault("engine.stop_timeout", "10s")
	v.SetDefault("sidecar.image", "dillinger-sidecar:latest")
	v.SetDefault("sidecar.control_port", 47990)
	v.SetDefault("sidecar.idle_timeout_minutes", 30)
	v.SetDefault("sidecar.gpu_vendor", "auto")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading dillinger.toml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing dillinger.toml: %w", err)
	}
	cfg.RootDir = absRoot

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Sidecar.ControlPort < 1 || c.Sidecar.ControlPort > 65535 {
		return fmt.Errorf("sidecar.control_port %d out of range", c.Sidecar.ControlPort)
	}
	if c.Sidecar.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("sidecar.idle_timeout_minutes must not be negative")
	}
	switch c.Sidecar.GPUVendor {
	case "amd", "nvidia", "intel", "auto":
	default:
		return fmt.Errorf("sidecar.gpu_vendor %q not one of amd, nvidia, intel, auto", c.Sidecar.GPUVendor)
	}
	return nil
}

// EntriesDir returns the directory holding per-game entry directories.
func (c *Config) EntriesDir() string {
	return filepath.Join(c.RootDir, "entries")
}

// SessionsDir returns the directory holding session records.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.RootDir, "sessions")
}
