// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/session"
)

// readinessCeiling bounds how long a sidecar gets to report ready
// before the in-sidecar game launch is abandoned.
const readinessCeiling = 60 * time.Second

// streamLauncher injects the game process into a running sidecar
// container once the sidecar's control API reports ready. The
// injection is asynchronous with respect to the launch request; a
// failed injection is recorded on the session but does not tear the
// sidecar down, since the stream itself (pairing screen included) is
// already usable.
type streamLauncher struct {
	engine     *engine.Client
	controlURL string
	logger     *slog.Logger
}

func (l *streamLauncher) launchWhenReady(launched *session.Session, command []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), readinessCeiling)
		defer cancel()

		if err := l.waitReady(ctx); err != nil {
			l.logger.Warn("sidecar never became ready, game not injected",
				"session", launched.ID, "error", err)
			return
		}
		result, err := l.engine.Exec(ctx, launched.ContainerID, command)
		if err != nil {
			l.logger.Warn("injecting game into sidecar failed",
				"session", launched.ID, "error", err)
			return
		}
		if result.ExitCode != 0 {
			l.logger.Warn("in-sidecar game launch exited non-zero",
				"session", launched.ID, "exitCode", result.ExitCode,
				"stderr", string(result.Stderr))
			return
		}
		l.logger.Info("game injected into sidecar", "session", launched.ID)
	}()
}

// waitReady polls the sidecar's readiness endpoint until it answers
// 200 or the context expires.
func (l *streamLauncher) waitReady(ctx context.Context) error {
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, l.controlURL+"/readyz", nil)
		if err != nil {
			return err
		}
		response, err := client.Do(request)
		if err == nil {
			response.Body.Close()
			if response.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("sidecar readiness: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
