// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dillinger-project/dillinger/lib/codec"
)

const stateFileName = "sidecar-state.cbor"

// runtimeState is what the controller writes to disk after startup so
// a restarted sidecar can clean up after an unclean exit: socket
// files the dead process left behind would otherwise make the
// compositor and audio backend fail to bind.
type runtimeState struct {
	Mode        Mode     `cbor:"mode"`
	Sockets     []string `cbor:"sockets"`
	ChildPIDs   []int    `cbor:"childPids"`
	ControlPort int      `cbor:"controlPort"`
}

func statePath(runtimeDir string) string {
	return filepath.Join(runtimeDir, stateFileName)
}

// writeRuntimeState records the live socket paths and child PIDs.
func writeRuntimeState(runtimeDir string, state runtimeState) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding runtime state: %w", err)
	}
	if err := os.WriteFile(statePath(runtimeDir), data, 0o600); err != nil {
		return fmt.Errorf("writing runtime state: %w", err)
	}
	return nil
}

// cleanStaleState removes socket files recorded by a previous sidecar
// process that exited without its shutdown path running. Best effort:
// an unreadable state file is deleted and forgotten.
func cleanStaleState(runtimeDir string, logger *slog.Logger) {
	path := statePath(runtimeDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var state runtimeState
	if err := codec.Unmarshal(data, &state); err != nil {
		logger.Warn("discarding unreadable runtime state", "path", path, "error", err)
		os.Remove(path)
		return
	}
	for _, socket := range state.Sockets {
		if err := os.Remove(socket); err == nil {
			logger.Info("removed stale socket", "path", socket)
		}
	}
	os.Remove(path)
}

// clearRuntimeState drops the state file on clean shutdown.
func clearRuntimeState(runtimeDir string) {
	os.Remove(statePath(runtimeDir))
}
