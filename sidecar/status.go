// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import "sync"

// Resolution is the compositor output size.
type Resolution struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	RefreshRate int `json:"refreshRate"`
}

// Status is the sidecar's in-memory view of itself, exposed over the
// control API. One per process; never persisted.
type Status struct {
	mu sync.Mutex

	mode       Mode
	profile    string
	resolution Resolution
	gpu        string

	compositorPID  int
	streamerPID    int
	testPatternPID int

	compositorReady bool
	streamerReady   bool
}

func newStatus(config Config) *Status {
	return &Status{
		mode:    config.Mode,
		profile: config.Profile,
		resolution: Resolution{
			Width:       config.Width,
			Height:      config.Height,
			RefreshRate: config.RefreshRate,
		},
		gpu: config.GPUVendor,
	}
}

func (s *Status) setCompositor(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compositorPID = pid
	s.compositorReady = true
}

func (s *Status) setStreamer(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamerPID = pid
	s.streamerReady = true
}

func (s *Status) setTestPattern(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testPatternPID = pid
}

// snapshot is the JSON shape of GET /status.
type statusSnapshot struct {
	Mode       Mode       `json:"mode"`
	Profile    string     `json:"profile"`
	Resolution Resolution `json:"resolution"`
	GPU        string     `json:"gpu"`
}

func (s *Status) snapshot() statusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statusSnapshot{
		Mode:       s.mode,
		Profile:    s.profile,
		Resolution: s.resolution,
		GPU:        s.gpu,
	}
}

// ready reports whether the mode's full child set is up: compositor
// and streaming server for streaming modes, always true for test-x11
// (which has neither).
func (s *Status) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeTestX11 {
		return true
	}
	return s.compositorReady && s.streamerReady
}
