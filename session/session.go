// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the per-launch GameSession state machine. A
// session is created when a game launch (or install) is requested,
// tracks the backing container through its lifetime, and ends in a
// terminal state exactly once. Sessions are persisted as one JSON
// file each so the UI layer can read snapshots without talking to the
// daemon.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is a session's position in its lifecycle.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Terminal reports whether no further transitions may leave status.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// DisplayMethod is how a session's output is presented.
type DisplayMethod string

const (
	DisplayLocal     DisplayMethod = "local"
	DisplayStreaming DisplayMethod = "streaming"
)

// Display describes the presentation of a session.
type Display struct {
	Method DisplayMethod `json:"method"`
}

// Performance records wall-clock session boundaries.
type Performance struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// SessionError is one entry in a session's append-only error list.
type SessionError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Session is one launch attempt for one game. Mutated only by the
// Manager's create/stop path and its exit monitor; everything else
// reads snapshots.
type Session struct {
	ID         string  `json:"id"`
	GameID     string  `json:"gameId"`
	PlatformID string  `json:"platformId"`
	Status     Status  `json:"status"`
	Display    Display `json:"display"`

	// ContainerID is set once the engine confirms creation.
	ContainerID string `json:"containerId,omitempty"`

	Performance Performance    `json:"performance"`
	Errors      []SessionError `json:"errors,omitempty"`
}

// newSession returns a session in the starting state.
func newSession(gameID, platformID string, method DisplayMethod, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		GameID:      gameID,
		PlatformID:  platformID,
		Status:      StatusStarting,
		Display:     Display{Method: method},
		Performance: Performance{StartTime: now},
	}
}

// appendError records a failure on the session without transitioning
// it.
func (s *Session) appendError(now time.Time, message string) {
	s.Errors = append(s.Errors, SessionError{Timestamp: now, Message: message})
}
