// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestStaleSocketCleanup(t *testing.T) {
	runtimeDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stale := filepath.Join(runtimeDir, "dillinger-wayland-0")
	if err := os.WriteFile(stale, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	err := writeRuntimeState(runtimeDir, runtimeState{
		Mode:        ModeGame,
		Sockets:     []string{stale},
		ChildPIDs:   []int{123, 456},
		ControlPort: 47990,
	})
	if err != nil {
		t.Fatalf("writeRuntimeState: %v", err)
	}

	// Simulates the next process start after an unclean exit.
	cleanStaleState(runtimeDir, logger)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale socket survived cleanup")
	}
	if _, err := os.Stat(statePath(runtimeDir)); !os.IsNotExist(err) {
		t.Error("state file survived cleanup")
	}
}

func TestCleanStaleStateToleratesCorruptFile(t *testing.T) {
	runtimeDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := os.WriteFile(statePath(runtimeDir), []byte("not cbor"), 0o600); err != nil {
		t.Fatal(err)
	}
	cleanStaleState(runtimeDir, logger)
	if _, err := os.Stat(statePath(runtimeDir)); !os.IsNotExist(err) {
		t.Error("corrupt state file was not discarded")
	}
}

func TestClearRuntimeState(t *testing.T) {
	runtimeDir := t.TempDir()
	if err := writeRuntimeState(runtimeDir, runtimeState{Mode: ModeTestX11}); err != nil {
		t.Fatal(err)
	}
	clearRuntimeState(runtimeDir)
	if _, err := os.Stat(statePath(runtimeDir)); !os.IsNotExist(err) {
		t.Error("state file survived clear")
	}
}
