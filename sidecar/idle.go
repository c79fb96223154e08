// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"context"
	"log/slog"
	"time"

	"github.com/dillinger-project/dillinger/lib/clock"
)

// idleSampleInterval is how often the monitor counts compositor
// clients.
const idleSampleInterval = 10 * time.Second

// Sampler reports the number of currently connected compositor
// clients.
type Sampler func(ctx context.Context) (int, error)

// IdleMonitor shuts the sidecar down after a configured stretch with
// zero connected compositor clients. Any non-zero sample resets the
// accumulator completely; partial idle credit never survives a
// reconnect. A sampling error skips that sample without accumulating.
type IdleMonitor struct {
	Threshold time.Duration
	Interval  time.Duration
	Sample    Sampler
	Clock     clock.Clock
	Logger    *slog.Logger

	// OnIdle runs once when the threshold is reached; the controller
	// points it at the same shutdown path a termination signal takes.
	OnIdle func()
}

// Run samples until the context ends or the idle threshold fires.
// A zero threshold disables the monitor entirely.
func (m *IdleMonitor) Run(ctx context.Context) {
	if m.Threshold <= 0 {
		return
	}
	interval := m.Interval
	if interval <= 0 {
		interval = idleSampleInterval
	}

	ticker := m.Clock.NewTicker(interval)
	defer ticker.Stop()

	var idle time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		count, err := m.Sample(ctx)
		if err != nil {
			m.Logger.Warn("idle sample failed, skipping", "error", err)
			continue
		}
		if count > 0 {
			if idle > 0 {
				m.Logger.Debug("client connected, idle accumulator reset",
					"clients", count, "idle", idle)
			}
			idle = 0
			continue
		}

		idle += interval
		if idle >= m.Threshold {
			m.Logger.Info("idle threshold reached, shutting down",
				"idle", idle, "threshold", m.Threshold)
			m.OnIdle()
			return
		}
	}
}
