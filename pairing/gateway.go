// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package pairing queries the streaming server's pairing state from
// the host side. The sidecar's control API is the primary transport;
// when its loopback port is unreachable the gateway falls back to
// executing the sidecar's query subcommand inside the container. Both
// transports return the same JSON shapes, so callers never see which
// one answered.
package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dillinger-project/dillinger/engine"
)

// PendingPairing is a remote viewer waiting for pairing approval.
type PendingPairing struct {
	ClientID    string    `json:"clientId"`
	ClientName  string    `json:"clientName,omitempty"`
	RequestedAt time.Time `json:"requestedAt,omitempty"`
}

// PairedClient is a viewer that completed the pairing handshake. The
// streaming server owns this record; the gateway only reads it.
type PairedClient struct {
	ClientID       string `json:"clientId"`
	AppStateFolder string `json:"appStateFolder"`
}

// Executor runs a command inside a running container. Satisfied by
// *engine.Client.
type Executor interface {
	Exec(ctx context.Context, id string, command []string) (engine.ExecResult, error)
}

// httpTimeout bounds the primary transport so a wedged control port
// degrades to the exec fallback in well under a second.
const httpTimeout = 800 * time.Millisecond

// Gateway proxies pairing queries to a sidecar's streaming server.
//
// If both transports fail, queries return an empty list and no error:
// pairing information being unavailable must not block a launch that
// gates on "no pending pairings". The cost is a possible false
// negative on that gate while the sidecar is unreachable, which the
// gateway logs at warn level.
type Gateway struct {
	baseURL     string
	containerID string
	client      *http.Client
	executor    Executor
	logger      *slog.Logger
}

// NewGateway returns a gateway for the sidecar reachable at the given
// loopback control address (e.g. "http://127.0.0.1:47990") and, as a
// fallback, inside the given container.
func NewGateway(baseURL, containerID string, executor Executor, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:     baseURL,
		containerID: containerID,
		client:      &http.Client{Timeout: httpTimeout},
		executor:    executor,
		logger:      logger,
	}
}

// PendingPairings returns viewers currently waiting for approval.
func (g *Gateway) PendingPairings(ctx context.Context) ([]PendingPairing, error) {
	var pending []PendingPairing
	g.query(ctx, "/pairing/pending", "pending", &pending)
	return pending, nil
}

// PairedClients returns viewers that have completed pairing.
func (g *Gateway) PairedClients(ctx context.Context) ([]PairedClient, error) {
	var clients []PairedClient
	g.query(ctx, "/pairing/clients", "clients", &clients)
	return clients, nil
}

// query tries HTTP first, then the in-container exec bridge, decoding
// into out. On double failure out is left empty and both errors are
// logged.
func (g *Gateway) query(ctx context.Context, path, subcommand string, out any) {
	httpErr := g.queryHTTP(ctx, path, out)
	if httpErr == nil {
		return
	}

	execErr := g.queryExec(ctx, subcommand, out)
	if execErr == nil {
		g.logger.Debug("pairing query fell back to exec bridge",
			"path", path, "httpError", httpErr)
		return
	}

	g.logger.Warn("pairing query failed on both transports, reporting empty",
		"path", path, "httpError", httpErr, "execError", execErr)
}

func (g *Gateway) queryHTTP(ctx context.Context, path string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building pairing request: %w", err)
	}
	response, err := g.client.Do(request)
	if err != nil {
		return fmt.Errorf("querying sidecar control port: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar control port returned %s", response.Status)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding pairing response: %w", err)
	}
	return nil
}

func (g *Gateway) queryExec(ctx context.Context, subcommand string, out any) error {
	result, err := g.executor.Exec(ctx, g.containerID,
		[]string{"dillinger-sidecar", "query", subcommand})
	if err != nil {
		return fmt.Errorf("executing sidecar query: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("sidecar query %s exited %d: %s",
			subcommand, result.ExitCode, result.Stderr)
	}
	if err := json.Unmarshal(result.Stdout, out); err != nil {
		return fmt.Errorf("decoding sidecar query output: %w", err)
	}
	return nil
}
