// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// devicePaths are the passed-through device nodes whose group
// ownership the sidecar user must be able to use. Devices are
// bind-mounted from the host, so their GIDs are the host's and can
// only be reconciled at runtime, never at image build time.
var devicePaths = []string{
	"/dev/dri/renderD128",
	"/dev/dri/card0",
	"/dev/snd",
	"/dev/uinput",
}

// reconcileDeviceGroups adds the unprivileged sidecar user to a group
// for each present device node's host GID. Missing device nodes are
// skipped: a machine without a uinput device still streams, it just
// loses remote input.
func reconcileDeviceGroups(username string, logger *slog.Logger) error {
	seen := make(map[uint32]bool)
	for _, path := range devicePaths {
		var stat unix.Stat_t
		if err := unix.Stat(path, &stat); err != nil {
			logger.Debug("device node absent, skipping", "path", path)
			continue
		}
		if seen[stat.Gid] {
			continue
		}
		seen[stat.Gid] = true

		if err := ensureGroupMembership(username, stat.Gid, logger); err != nil {
			return fmt.Errorf("granting %s access to %s: %w", username, path, err)
		}
	}
	return nil
}

// ensureGroupMembership makes sure a group with the given GID exists
// and the user belongs to it. groupadd failing because the GID is
// already taken is fine; usermod failures are not.
func ensureGroupMembership(username string, gid uint32, logger *slog.Logger) error {
	groupName := "hostdev-" + strconv.FormatUint(uint64(gid), 10)

	add := exec.Command("groupadd", "--gid", strconv.FormatUint(uint64(gid), 10), groupName)
	add.Stdout = os.Stderr
	add.Stderr = os.Stderr
	if err := add.Run(); err != nil {
		// GID already present under another name; membership is
		// what matters, addressed by GID below.
		logger.Debug("groupadd returned non-zero, assuming group exists",
			"gid", gid, "error", err)
	}

	mod := exec.Command("usermod", "--append", "--groups",
		strconv.FormatUint(uint64(gid), 10), username)
	mod.Stdout = os.Stderr
	mod.Stderr = os.Stderr
	if err := mod.Run(); err != nil {
		return fmt.Errorf("usermod for gid %d: %w", gid, err)
	}
	logger.Info("device group reconciled", "user", username, "gid", gid)
	return nil
}
