// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Dillinger-sidecar is PID 1 of the streaming sidecar container. It
// reads its configuration from the DILLINGER_* environment contract,
// stands up the audio backend, headless compositor and streaming
// server in order, and serves the loopback control API until a
// termination signal, an idle timeout, or a child death shuts it
// down.
//
// The `query` subcommand prints pairing state as JSON and exits; the
// host daemon execs it inside the container when the sidecar's
// control port is unreachable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dillinger-project/dillinger/lib/process"
	"github.com/dillinger-project/dillinger/pairing"
	"github.com/dillinger-project/dillinger/sidecar"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	configDir := pflag.String("config-dir", sidecar.DefaultConfigDir,
		"streaming-server configuration directory")
	pflag.Parse()

	if args := pflag.Args(); len(args) > 0 {
		if args[0] != "query" || len(args) != 2 {
			return fmt.Errorf("usage: dillinger-sidecar [flags] | query pending|clients")
		}
		return runQuery(args[1], *configDir)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	config, err := sidecar.FromEnv()
	if err != nil {
		return fmt.Errorf("reading sidecar environment: %w", err)
	}
	config.ConfigDir = *configDir
	logger.Info("sidecar starting",
		"mode", config.Mode, "profile", config.Profile,
		"resolution", fmt.Sprintf("%dx%d@%d", config.Width, config.Height, config.RefreshRate),
		"gpu", config.GPUVendor, "idleTimeout", config.IdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sidecar.NewController(config, logger).Run(ctx)
}

// runQuery prints pairing state for the exec bridge. Output shapes
// match the control API exactly.
func runQuery(what, configDir string) error {
	switch what {
	case "pending":
		pending, err := sidecar.QueryPendingPairings(configDir)
		if err != nil {
			return err
		}
		if pending == nil {
			pending = []pairing.PendingPairing{}
		}
		return json.NewEncoder(os.Stdout).Encode(pending)
	case "clients":
		clients, err := sidecar.QueryPairedClients(configDir)
		if err != nil {
			return err
		}
		if clients == nil {
			clients = []pairing.PairedClient{}
		}
		return json.NewEncoder(os.Stdout).Encode(clients)
	default:
		return fmt.Errorf("unknown query %q: want pending or clients", what)
	}
}
