// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// compositorSocket is the well-known IPC socket name the compositor
// creates under the runtime directory. Sibling containers attach to
// it through the shared runtime mount.
const compositorSocket = "dillinger-wayland-0"

// socketWaitCeiling bounds compositor socket discovery. The socket is
// created asynchronously after spawn; past this ceiling startup fails
// with an explicit timeout error instead of retrying forever.
const socketWaitCeiling = 15 * time.Second

// compositorCommand builds the headless compositor invocation scaled
// to the configured profile.
func compositorCommand(config Config) *exec.Cmd {
	args := []string{
		"--backend", "headless",
		"-W", strconv.Itoa(config.Width),
		"-H", strconv.Itoa(config.Height),
		"-r", strconv.Itoa(config.RefreshRate),
		"--socket-name", compositorSocket,
	}
	cmd := exec.Command("gamescope", args...)
	cmd.Env = append(os.Environ(),
		"XDG_RUNTIME_DIR="+config.RuntimeDir,
	)
	return cmd
}

// waitForCompositorSocket blocks until the compositor's IPC socket
// appears, the ceiling passes, or the context is cancelled.
func waitForCompositorSocket(ctx context.Context, runtimeDir string, logger *slog.Logger) (string, error) {
	path := filepath.Join(runtimeDir, compositorSocket)

	watch, err := newDirWatch(runtimeDir, compositorSocket)
	if err != nil {
		return "", fmt.Errorf("watching for compositor socket: %w", err)
	}
	defer watch.Close()

	// Existence check after the watch is installed, so a socket
	// created in between is not missed.
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	logger.Info("waiting for compositor socket", "path", path)
	select {
	case <-watch.Created():
		return path, nil
	case <-time.After(socketWaitCeiling):
		return "", fmt.Errorf("compositor socket %s did not appear within %s", path, socketWaitCeiling)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// countCompositorClients counts peers connected to the compositor's
// unix socket by scanning /proc/net/unix for the socket path. The
// listening entry itself is excluded, so an idle compositor counts
// zero.
func countCompositorClients(socketPath string) (int, error) {
	file, err := os.Open("/proc/net/unix")
	if err != nil {
		return 0, fmt.Errorf("reading socket table: %w", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 || fields[len(fields)-1] != socketPath {
			continue
		}
		// The listening entry carries the __ACC flag (00010000);
		// everything else with this path is an accepted peer.
		if fields[3] != "00010000" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanning socket table: %w", err)
	}
	return count, nil
}
