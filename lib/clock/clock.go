// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the orchestrator's timer-driven
// loops (the idle monitor's sampling ticker, socket-discovery waits,
// exit-wait polling). Production code injects Real(); tests inject
// Fake() and advance time deterministically instead of sleeping.
package clock

import "time"

// Clock is the time source injected into every component that would
// otherwise call the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on its C channel at
	// the given interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel is buffered with
// capacity 1; if the consumer falls behind, ticks are dropped rather
// than queued, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No ticks are delivered after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
