// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// child is one supervised process. Each supervised binary gets its
// own handle so shutdown iterates a closed, typed set instead of
// checking loose PID variables.
type child struct {
	name string
	cmd  *exec.Cmd

	// done closes when the process has been reaped; waitErr is valid
	// after that.
	done    chan struct{}
	waitErr error
}

// startChild launches a command in its own process group (so
// termination signals reach the whole tree) and reaps it in the
// background.
func startChild(name string, cmd *exec.Cmd, logger *slog.Logger) (*child, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	logger.Info("child started", "name", name, "pid", cmd.Process.Pid)

	c := &child{name: name, cmd: cmd, done: make(chan struct{})}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

func (c *child) pid() int {
	return c.cmd.Process.Pid
}

// terminate asks the child's process group to exit, escalating to
// SIGKILL after grace. Waits for the reaper before returning.
func (c *child) terminate(grace time.Duration, logger *slog.Logger) {
	select {
	case <-c.done:
		return
	default:
	}

	// Negative pid signals the process group.
	if err := syscall.Kill(-c.pid(), syscall.SIGTERM); err != nil {
		logger.Warn("signaling child failed", "name", c.name, "error", err)
	}
	select {
	case <-c.done:
		logger.Info("child exited", "name", c.name)
		return
	case <-time.After(grace):
	}

	logger.Warn("child ignored SIGTERM, killing", "name", c.name)
	if err := syscall.Kill(-c.pid(), syscall.SIGKILL); err != nil {
		logger.Warn("killing child failed", "name", c.name, "error", err)
	}
	<-c.done
}
