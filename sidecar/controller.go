// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dillinger-project/dillinger/lib/clock"
)

// childGrace is how long a child gets between SIGTERM and SIGKILL
// during shutdown.
const childGrace = 5 * time.Second

// sidecarUser is the in-container unprivileged account that runs the
// compositor and streaming server.
const sidecarUser = "dillinger"

// Controller supervises the sidecar's child processes. Startup runs
// in strict order (device setup, audio, then the mode branch) and any
// step failing aborts the whole process; the host observes the failed
// container. At runtime the first child to exit, a termination
// signal, or the idle monitor all funnel into the same single
// shutdown routine.
type Controller struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
	status *Status

	audio      *child
	compositor *child
	streamer   *child
	pattern    *child

	// sockets created during setup, removed on shutdown.
	sockets []string

	shutdownOnce sync.Once
}

// NewController builds a controller from validated configuration.
func NewController(config Config, logger *slog.Logger) *Controller {
	return &Controller{
		config: config,
		logger: logger,
		clock:  clock.Real(),
		status: newStatus(config),
	}
}

// Run executes the startup sequence, then blocks until a shutdown
// trigger and tears everything down. A non-nil error means startup
// failed or a child died unexpectedly; the process should exit
// non-zero so the host marks the session failed.
func (c *Controller) Run(ctx context.Context) error {
	cleanStaleState(c.config.RuntimeDir, c.logger)
	if err := os.MkdirAll(c.config.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}

	if err := reconcileDeviceGroups(sidecarUser, c.logger); err != nil {
		return err
	}

	if err := c.startChildren(ctx); err != nil {
		c.shutdown(context.Background())
		return err
	}

	if err := writeRuntimeState(c.config.RuntimeDir, runtimeState{
		Mode:        c.config.Mode,
		Sockets:     c.sockets,
		ChildPIDs:   c.childPIDs(),
		ControlPort: c.config.ControlPort,
	}); err != nil {
		c.logger.Warn("persisting runtime state failed", "error", err)
	}

	idleFired := make(chan struct{})
	idleCtx, cancelIdle := context.WithCancel(ctx)
	defer cancelIdle()
	if c.config.Mode == ModeGame && c.config.IdleTimeout > 0 {
		socketPath := filepath.Join(c.config.RuntimeDir, compositorSocket)
		monitor := &IdleMonitor{
			Threshold: c.config.IdleTimeout,
			Clock:     c.clock,
			Logger:    c.logger,
			OnIdle:    func() { close(idleFired) },
			Sample: func(ctx context.Context) (int, error) {
				return countCompositorClients(socketPath)
			},
		}
		go monitor.Run(idleCtx)
	}

	api := newControlAPI(c.config, c.status, c.logger)
	apiErrs := api.serve()
	defer api.shutdown(context.Background())

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("termination signal, shutting down")
	case <-idleFired:
		c.logger.Info("idle timeout, shutting down")
	case err := <-apiErrs:
		runErr = err
	case name := <-c.firstChildExit():
		runErr = fmt.Errorf("child %s exited unexpectedly", name)
	}

	c.shutdown(context.Background())
	return runErr
}

// startChildren runs the mode-dependent startup branch.
func (c *Controller) startChildren(ctx context.Context) error {
	var err error

	// Audio backend first, in every mode.
	if c.audio, err = startChild("audio", audioCommand(c.config), c.logger); err != nil {
		return err
	}
	c.sockets = append(c.sockets, audioSocketPath(c.config))

	if c.config.Mode == ModeTestX11 {
		if c.pattern, err = startChild("test-pattern", testPatternCommand(c.config), c.logger); err != nil {
			return err
		}
		c.status.setTestPattern(c.pattern.pid())
		return nil
	}

	// Streaming modes: compositor, then its socket, then the
	// streaming server against a freshly merged config.
	if c.compositor, err = startChild("compositor", compositorCommand(c.config), c.logger); err != nil {
		return err
	}
	socketPath, err := waitForCompositorSocket(ctx, c.config.RuntimeDir, c.logger)
	if err != nil {
		return err
	}
	c.sockets = append(c.sockets, socketPath)
	c.status.setCompositor(c.compositor.pid())

	configPath, err := generateStreamerConfig(c.config.ConfigDir, newStreamIdentifier(c.config.Profile))
	if err != nil {
		return err
	}
	if c.streamer, err = startChild("streamer", streamerCommand(c.config, configPath), c.logger); err != nil {
		return err
	}
	c.status.setStreamer(c.streamer.pid())

	if c.config.Mode == ModeTestStream {
		if c.pattern, err = startChild("synthetic-client", syntheticClientCommand(c.config), c.logger); err != nil {
			return err
		}
		c.status.setTestPattern(c.pattern.pid())
	}
	return nil
}

// firstChildExit returns a channel receiving the name of the first
// supervised child to exit.
func (c *Controller) firstChildExit() <-chan string {
	exited := make(chan string, 1)
	for _, ch := range c.children() {
		go func(ch *child) {
			<-ch.done
			select {
			case exited <- ch.name:
			default:
			}
		}(ch)
	}
	return exited
}

func (c *Controller) children() []*child {
	var children []*child
	for _, ch := range []*child{c.audio, c.compositor, c.streamer, c.pattern} {
		if ch != nil {
			children = append(children, ch)
		}
	}
	return children
}

func (c *Controller) childPIDs() []int {
	var pids []int
	for _, ch := range c.children() {
		pids = append(pids, ch.pid())
	}
	return pids
}

// shutdown tears children down in reverse dependency order: streaming
// server (and any pattern client) first, then the compositor, then
// the audio backend, then socket cleanup. Runs at most once no matter
// how many triggers race into it.
func (c *Controller) shutdown(ctx context.Context) {
	c.shutdownOnce.Do(func() {
		for _, ch := range []*child{c.pattern, c.streamer, c.compositor, c.audio} {
			if ch == nil {
				continue
			}
			ch.terminate(childGrace, c.logger)
		}
		for _, socket := range c.sockets {
			if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("removing socket failed", "path", socket, "error", err)
			}
		}
		clearRuntimeState(c.config.RuntimeDir)
		c.logger.Info("sidecar shut down")
	})
}
