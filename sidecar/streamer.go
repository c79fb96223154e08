// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dillinger-project/dillinger/pairing"
)

const (
	streamerConfigName = "streamer.conf"

	// identifierToken is the single placeholder substituted into the
	// template at generation time.
	identifierToken = "{{IDENTIFIER}}"

	// pairedClientsMarker opens the section of the config the
	// streaming server appends paired-client records to. Everything
	// from this line to end of file belongs to the streaming server
	// and must survive regeneration byte for byte: dropping it forces
	// every viewer to re-pair after a container restart.
	pairedClientsMarker = "[paired_clients]"
)

// streamerTemplate is the static configuration the sidecar regenerates
// before every streaming-server launch.
const streamerTemplate = `# Generated by dillinger-sidecar. Edits above the paired clients
# section are overwritten on the next launch.
hostname = ` + identifierToken + `
port = 47989
upnp = off
origin_web_ui_allowed = lan
channels = 2
`

// newStreamIdentifier derives the per-launch identifier substituted
// into the streamer config.
func newStreamIdentifier(profile string) string {
	return "dillinger-" + profile + "-" + uuid.NewString()[:8]
}

// generateStreamerConfig writes the streaming-server config: the
// template with the identifier substituted, plus any paired-clients
// section recovered from the previous config file. Returns the config
// path.
func generateStreamerConfig(configDir, identifier string) (string, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("creating streamer config directory: %w", err)
	}
	path := filepath.Join(configDir, streamerConfigName)

	var preserved []byte
	if existing, err := os.ReadFile(path); err == nil {
		preserved = extractPairedClients(existing)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading existing streamer config: %w", err)
	}

	fresh := []byte(strings.ReplaceAll(streamerTemplate, identifierToken, identifier))
	if preserved != nil {
		if !bytes.HasSuffix(fresh, []byte("\n")) {
			fresh = append(fresh, '\n')
		}
		fresh = append(fresh, preserved...)
	}

	tmp, err := os.CreateTemp(configDir, streamerConfigName+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating streamer config temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(fresh); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing streamer config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing streamer config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing streamer config temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("committing streamer config: %w", err)
	}
	return path, nil
}

// extractPairedClients returns the paired-clients section of a config
// file verbatim, from the marker line to end of file, or nil when the
// file has none.
func extractPairedClients(config []byte) []byte {
	if bytes.HasPrefix(config, []byte(pairedClientsMarker)) {
		return config
	}
	index := bytes.Index(config, []byte("\n"+pairedClientsMarker))
	if index < 0 {
		return nil
	}
	return config[index+1:]
}

// parsePairedClients reads the paired-client records out of a config
// file. Records are lines of the form "client <id> <appStateFolder>"
// inside the paired-clients section; the streaming server writes
// them, the sidecar only reads.
func parsePairedClients(config []byte) []pairing.PairedClient {
	section := extractPairedClients(config)
	if section == nil {
		return nil
	}
	var clients []pairing.PairedClient
	for _, line := range strings.Split(string(section), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "client" {
			continue
		}
		clients = append(clients, pairing.PairedClient{
			ClientID:       fields[1],
			AppStateFolder: fields[2],
		})
	}
	return clients
}

// pairedClientsFromDisk reads the current streamer config and returns
// its paired clients. Absent config means no clients.
func pairedClientsFromDisk(configDir string) ([]pairing.PairedClient, error) {
	data, err := os.ReadFile(filepath.Join(configDir, streamerConfigName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading streamer config: %w", err)
	}
	return parsePairedClients(data), nil
}

// pendingPairingsFromDisk reads the streaming server's pending
// pairing requests file. Absent file means no pending requests.
func pendingPairingsFromDisk(configDir string) ([]pairing.PendingPairing, error) {
	data, err := os.ReadFile(filepath.Join(configDir, "pending_pairings.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pending pairings: %w", err)
	}
	var pending []pairing.PendingPairing
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("decoding pending pairings: %w", err)
	}
	return pending, nil
}

// streamerCommand builds the streaming-server invocation. The encoder
// backend follows the GPU vendor hint; auto lets the server probe.
func streamerCommand(config Config, configPath string) *exec.Cmd {
	args := []string{configPath}
	switch config.GPUVendor {
	case "amd", "intel":
		args = append(args, "--encoder", "vaapi")
	case "nvidia":
		args = append(args, "--encoder", "nvenc")
	}
	cmd := exec.Command("sunshine", args...)
	cmd.Env = append(os.Environ(),
		"XDG_RUNTIME_DIR="+config.RuntimeDir,
		"WAYLAND_DISPLAY="+compositorSocket,
	)
	return cmd
}
