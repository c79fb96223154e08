// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"os"
	"os/exec"
	"path/filepath"
)

// audioSocket is the audio backend's native socket under the runtime
// directory, bind-mounted into game containers so their audio lands
// in the sidecar's stream.
const audioSocket = "pulse-native"

// audioCommand builds the audio backend invocation. The backend runs
// in the foreground so the supervisor can reap it.
func audioCommand(config Config) *exec.Cmd {
	cmd := exec.Command("pipewire")
	cmd.Env = append(os.Environ(),
		"XDG_RUNTIME_DIR="+config.RuntimeDir,
		"PIPEWIRE_RUNTIME_DIR="+config.RuntimeDir,
	)
	return cmd
}

func audioSocketPath(config Config) string {
	return filepath.Join(config.RuntimeDir, audioSocket)
}
