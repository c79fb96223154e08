// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"github.com/dillinger-project/dillinger/pairing"
)

// QueryPendingPairings reads the streaming server's pending pairing
// requests off disk. This is the exec-bridge entry point: the host
// daemon runs `dillinger-sidecar query pending` inside the container
// when the control port is unreachable, and it must return the same
// data the control API would.
func QueryPendingPairings(configDir string) ([]pairing.PendingPairing, error) {
	return pendingPairingsFromDisk(configDir)
}

// QueryPairedClients reads the paired-client records out of the
// streaming server's config file.
func QueryPairedClients(configDir string) ([]pairing.PairedClient, error) {
	return pairedClientsFromDisk(configDir)
}

// DefaultConfigDir is where the generated streaming-server config
// lives inside the sidecar container.
const DefaultConfigDir = "/home/dillinger/.config/streamer"
