// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"fmt"
	"os"
	"os/exec"
)

// testPatternCommand drives a synthetic video+audio pattern straight
// to the host display system (test-x11 mode). No compositor or
// streaming server is involved; this verifies the GPU and display
// path in isolation.
func testPatternCommand(config Config) *exec.Cmd {
	size := fmt.Sprintf("width=%d,height=%d", config.Width, config.Height)
	cmd := exec.Command("gst-launch-1.0",
		"videotestsrc", "pattern=smpte", "!",
		"video/x-raw,"+size, "!", "xvimagesink",
		"audiotestsrc", "wave=sine", "freq=440", "!", "autoaudiosink",
	)
	cmd.Env = os.Environ()
	return cmd
}

// syntheticClientCommand attaches a test-source window to the
// compositor (test-stream mode) so the outgoing stream is non-blank
// without a real game process.
func syntheticClientCommand(config Config) *exec.Cmd {
	size := fmt.Sprintf("width=%d,height=%d", config.Width, config.Height)
	cmd := exec.Command("gst-launch-1.0",
		"videotestsrc", "pattern=ball", "!",
		"video/x-raw,"+size, "!", "waylandsink",
	)
	cmd.Env = append(os.Environ(),
		"XDG_RUNTIME_DIR="+config.RuntimeDir,
		"WAYLAND_DISPLAY="+compositorSocket,
	)
	return cmd
}
