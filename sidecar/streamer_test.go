// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const pairedBlock = pairedClientsMarker + `
client 5F3A deck-living-room
client 9B01 phone-upstairs
`

func TestGenerateFreshConfigSubstitutesIdentifier(t *testing.T) {
	dir := t.TempDir()
	path, err := generateStreamerConfig(dir, "dillinger-default-abc123")
	if err != nil {
		t.Fatalf("generateStreamerConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hostname = dillinger-default-abc123") {
		t.Errorf("identifier not substituted:\n%s", data)
	}
	if strings.Contains(string(data), identifierToken) {
		t.Error("template token leaked into generated config")
	}
	if strings.Contains(string(data), pairedClientsMarker) {
		t.Error("fresh config grew a paired-clients section from nowhere")
	}
}

func TestRegenerationPreservesPairedClientsByteForByte(t *testing.T) {
	dir := t.TempDir()

	// First generation, then the streaming server appends paired
	// clients to the file.
	path, err := generateStreamerConfig(dir, "dillinger-default-first01")
	if err != nil {
		t.Fatal(err)
	}
	seeded, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	seeded = append(seeded, []byte(pairedBlock)...)
	if err := os.WriteFile(path, seeded, 0o644); err != nil {
		t.Fatal(err)
	}

	// Container restart: the config is regenerated with a new
	// identifier.
	if _, err := generateStreamerConfig(dir, "dillinger-default-second2"); err != nil {
		t.Fatal(err)
	}
	regenerated, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Contains(regenerated, []byte(pairedBlock)) {
		t.Fatalf("paired-clients block not preserved byte-for-byte:\n%s", regenerated)
	}
	if !strings.Contains(string(regenerated), "hostname = dillinger-default-second2") {
		t.Error("identifier was not replaced on regeneration")
	}
	if strings.Contains(string(regenerated), "first01") {
		t.Error("stale identifier survived regeneration")
	}

	// A third regeneration must not duplicate the section.
	if _, err := generateStreamerConfig(dir, "dillinger-default-third03"); err != nil {
		t.Fatal(err)
	}
	again, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Count(again, []byte(pairedClientsMarker)) != 1 {
		t.Errorf("paired-clients marker appears %d times, want 1",
			bytes.Count(again, []byte(pairedClientsMarker)))
	}
}

func TestParsePairedClients(t *testing.T) {
	config := []byte("hostname = x\n" + pairedBlock + "garbage line\n")
	clients := parsePairedClients(config)
	if len(clients) != 2 {
		t.Fatalf("parsed %d clients, want 2", len(clients))
	}
	if clients[0].ClientID != "5F3A" || clients[0].AppStateFolder != "deck-living-room" {
		t.Errorf("first client = %+v", clients[0])
	}
	if clients[1].ClientID != "9B01" {
		t.Errorf("second client = %+v", clients[1])
	}
}

func TestParsePairedClientsWithoutSection(t *testing.T) {
	if clients := parsePairedClients([]byte("hostname = x\nport = 47989\n")); clients != nil {
		t.Errorf("clients = %+v, want none", clients)
	}
}

func TestPairedClientsFromDiskAbsentConfig(t *testing.T) {
	clients, err := pairedClientsFromDisk(t.TempDir())
	if err != nil {
		t.Fatalf("pairedClientsFromDisk: %v", err)
	}
	if clients != nil {
		t.Errorf("clients = %+v, want none", clients)
	}
}

func TestPendingPairingsFromDisk(t *testing.T) {
	dir := t.TempDir()

	pending, err := pendingPairingsFromDisk(dir)
	if err != nil || pending != nil {
		t.Fatalf("absent file: pending = %+v, err = %v", pending, err)
	}

	payload := []byte(`[{"clientId":"moonlight-7","clientName":"living-room"}]`)
	if err := os.WriteFile(filepath.Join(dir, "pending_pairings.json"), payload, 0o644); err != nil {
		t.Fatal(err)
	}
	pending, err = pendingPairingsFromDisk(dir)
	if err != nil {
		t.Fatalf("pendingPairingsFromDisk: %v", err)
	}
	if len(pending) != 1 || pending[0].ClientID != "moonlight-7" {
		t.Errorf("pending = %+v", pending)
	}
}
