// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Dillinger-daemon is the host-side orchestrator of the game library:
// it talks to the container engine over its unix socket, owns the
// session state machine for installs and launches, gates streaming
// launches on pipeline validation and pairing state, and serves the
// loopback JSON API the web UI consumes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/lib/clock"
	"github.com/dillinger-project/dillinger/lib/config"
	"github.com/dillinger-project/dillinger/lib/process"
	"github.com/dillinger-project/dillinger/pairing"
	"github.com/dillinger-project/dillinger/session"
	"github.com/dillinger-project/dillinger/streamgraph"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	rootDir := pflag.String("root-dir", "", "dillinger root directory (overrides "+config.RootDirEnv+")")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var cfg *config.Config
	var err error
	if *rootDir != "" {
		cfg, err = config.LoadFrom(*rootDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "root", cfg.RootDir, "engineSocket", cfg.Engine.Socket)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineClient, err := engine.New(cfg.Engine.Socket, logger)
	if err != nil {
		return err
	}
	if err := engineClient.Ping(ctx); err != nil {
		logger.Warn("container engine unreachable at startup", "error", err)
	}

	store, err := session.NewFileStore(cfg.SessionsDir())
	if err != nil {
		return err
	}

	graph, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	controlURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Sidecar.ControlPort)
	pairingProxy := &sidecarPairing{
		controlURL: controlURL,
		engine:     engineClient,
		store:      store,
		logger:     logger,
	}

	harvester := &session.Harvester{
		MediaDir:   cfg.RootDir + "/media",
		EntriesDir: cfg.EntriesDir(),
		Logger:     logger,
	}
	manager := session.NewManager(session.ManagerOptions{
		Engine:       engineClient,
		Store:        store,
		Pairing:      pairingProxy,
		Validator:    streamgraph.NewValidator(),
		Graph:        graph,
		Capabilities: encoderCapabilities(cfg.Sidecar.GPUVendor),
		Clock:        clock.Real(),
		Logger:       logger,
		StopTimeout:  cfg.Engine.StopTimeout,
		Harvest:      harvester.Collect,
	})
	if err := manager.Resume(ctx); err != nil {
		logger.Warn("resuming persisted sessions failed", "error", err)
	}

	apiServer := &api{
		cfg:     cfg,
		manager: manager,
		pairing: pairingProxy,
		launcher: &streamLauncher{
			engine:     engineClient,
			controlURL: controlURL,
			logger:     logger,
		},
		pinger: engineClient,
		logger: logger,
	}
	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      apiServer.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("daemon API listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("termination signal, shutting down")
	case err := <-serverErrs:
		return fmt.Errorf("daemon API: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown", "error", err)
	}
	return nil
}

// loadGraph returns the streaming pipeline: a custom definition from
// sidecar.graph_file when configured, the built-in default otherwise.
func loadGraph(cfg *config.Config) (*streamgraph.Definition, error) {
	if cfg.Sidecar.GraphFile == "" {
		return streamgraph.Default(encoderRequirement(cfg.Sidecar.GPUVendor)), nil
	}
	data, err := os.ReadFile(cfg.RootDir + "/" + cfg.Sidecar.GraphFile)
	if err != nil {
		return nil, fmt.Errorf("reading streaming graph file: %w", err)
	}
	return streamgraph.Parse(data)
}

// sidecarPairing adapts the pairing gateway to the session manager's
// gate: the sidecar container is located at query time from the
// current non-terminal streaming session, since no container exists
// before the first streaming launch.
type sidecarPairing struct {
	controlURL string
	engine     *engine.Client
	store      session.Store
	logger     *slog.Logger
}

func (p *sidecarPairing) gateway(ctx context.Context) *pairing.Gateway {
	containerID := ""
	if sessions, err := p.store.List(); err == nil {
		for _, candidate := range sessions {
			if !candidate.Status.Terminal() &&
				candidate.Display.Method == session.DisplayStreaming &&
				candidate.ContainerID != "" {
				containerID = candidate.ContainerID
				break
			}
		}
	}
	return pairing.NewGateway(p.controlURL, containerID, p.engine, p.logger)
}

func (p *sidecarPairing) PendingPairings(ctx context.Context) ([]pairing.PendingPairing, error) {
	return p.gateway(ctx).PendingPairings(ctx)
}

func (p *sidecarPairing) PairedClients(ctx context.Context) ([]pairing.PairedClient, error) {
	return p.gateway(ctx).PairedClients(ctx)
}
