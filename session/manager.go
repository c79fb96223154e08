// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/lib/clock"
	"github.com/dillinger-project/dillinger/pairing"
	"github.com/dillinger-project/dillinger/streamgraph"
)

// Engine is the subset of the container engine the manager drives.
// *engine.Client satisfies it; tests use fakes.
type Engine interface {
	Create(ctx context.Context, spec engine.JobSpec) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Remove(ctx context.Context, id string, force bool) error
	WaitForExit(ctx context.Context, id string) (int, error)
}

// PairingChecker reports viewers awaiting pairing approval.
// *pairing.Gateway satisfies it.
type PairingChecker interface {
	PendingPairings(ctx context.Context) ([]pairing.PendingPairing, error)
}

// ConflictError is returned when a launch is refused because a
// non-terminal session already exists for the game.
type ConflictError struct {
	GameID    string
	SessionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("game %s already has active session %s", e.GameID, e.SessionID)
}

// PairingPendingError is returned when a streaming launch is refused
// because viewers are waiting for pairing approval. Pending carries
// the list so the UI can prompt for approval.
type PairingPendingError struct {
	Pending []pairing.PendingPairing
}

func (e *PairingPendingError) Error() string {
	return fmt.Sprintf("%d pairing request(s) awaiting approval", len(e.Pending))
}

// GraphBlockedError is returned when the streaming pipeline fails
// validation for this machine.
type GraphBlockedError struct {
	Issues []streamgraph.Issue
}

func (e *GraphBlockedError) Error() string {
	return fmt.Sprintf("streaming pipeline blocked by %d issue(s)", len(e.Issues))
}

// LaunchRequest describes one launch attempt. Spec is built by the
// caller from game and platform configuration; the manager treats it
// as opaque.
type LaunchRequest struct {
	GameID     string
	PlatformID string
	Display    DisplayMethod
	Spec       engine.JobSpec
}

// Manager owns the GameSession state machine: it creates containers
// via the engine, persists every transition, and runs one exit
// monitor per running session. At most one non-terminal session
// exists per game id.
type Manager struct {
	engine       Engine
	store        Store
	pairing      PairingChecker
	validator    *streamgraph.Validator
	graph        *streamgraph.Definition
	capabilities []string
	clock        clock.Clock
	logger       *slog.Logger
	stopTimeout  time.Duration

	// harvest runs after a session's container exits; best effort.
	harvest func(session *Session)

	mu sync.Mutex
	// active maps game id to its one non-terminal session.
	active map[string]*Session
	// monitors tracks exit-monitor goroutines for Wait.
	monitors sync.WaitGroup
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Engine       Engine
	Store        Store
	Pairing      PairingChecker
	Validator    *streamgraph.Validator
	Graph        *streamgraph.Definition
	Capabilities []string
	Clock        clock.Clock
	Logger       *slog.Logger
	StopTimeout  time.Duration

	// Harvest, if set, collects post-exit artifacts (screenshots)
	// for a finished session. Failures inside it must not affect the
	// session; the manager calls it after the terminal transition.
	Harvest func(session *Session)
}

// NewManager wires a session manager.
func NewManager(options ManagerOptions) *Manager {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.StopTimeout == 0 {
		options.StopTimeout = 10 * time.Second
	}
	return &Manager{
		engine:       options.Engine,
		store:        options.Store,
		pairing:      options.Pairing,
		validator:    options.Validator,
		graph:        options.Graph,
		capabilities: options.Capabilities,
		clock:        options.Clock,
		logger:       options.Logger,
		stopTimeout:  options.StopTimeout,
		harvest:      options.Harvest,
		active:       make(map[string]*Session),
	}
}

// Launch runs the create path: gate checks, session reservation,
// container create+start, then the background exit monitor. On any
// failure after reservation the session lands in the error state and
// the caller must re-invoke Launch to retry.
func (m *Manager) Launch(ctx context.Context, request LaunchRequest) (*Session, error) {
	if request.Display == DisplayStreaming {
		if err := m.gateStreaming(ctx); err != nil {
			return nil, err
		}
	}

	session, err := m.reserve(request)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(session); err != nil {
		m.release(session)
		return nil, fmt.Errorf("persisting session %s: %w", session.ID, err)
	}

	containerID, err := m.engine.Create(ctx, request.Spec)
	if err != nil {
		m.fail(session, fmt.Sprintf("creating container: %v", err))
		return session, fmt.Errorf("creating container for game %s: %w", request.GameID, err)
	}

	m.mu.Lock()
	if session.Status != StatusStarting {
		// Stop landed while Create was in flight. The session keeps
		// its terminal state and never adopts the container, so the
		// fresh container is removed here: Stop saw an empty
		// ContainerID and skipped teardown.
		m.mu.Unlock()
		m.removeOrphan(context.Background(), session.ID, containerID)
		return session, nil
	}
	session.ContainerID = containerID
	m.mu.Unlock()

	if err := m.engine.Start(ctx, containerID); err != nil {
		m.fail(session, fmt.Sprintf("starting container %s: %v", containerID, err))
		return session, fmt.Errorf("starting container for game %s: %w", request.GameID, err)
	}

	m.mu.Lock()
	if session.Status != StatusStarting {
		// Stop landed during Start. It read the ContainerID under the
		// lock, so the container teardown is (or will be) its job; the
		// session must not come back from a terminal state and the
		// monitor has nothing to watch.
		m.mu.Unlock()
		return session, nil
	}
	session.Status = StatusRunning
	snapshot := *session
	m.mu.Unlock()
	if err := m.store.Save(&snapshot); err != nil {
		m.logger.Warn("persisting running session failed", "session", session.ID, "error", err)
	}

	m.monitors.Add(1)
	go m.monitor(session)

	m.logger.Info("session running",
		"session", session.ID, "game", request.GameID, "container", containerID,
		"display", request.Display)
	return session, nil
}

// gateStreaming refuses a streaming launch when the pipeline is
// blocked or pairing approvals are outstanding.
func (m *Manager) gateStreaming(ctx context.Context) error {
	if m.validator != nil && m.graph != nil {
		result := m.validator.Validate(m.graph, m.capabilities)
		if result.Blocking() {
			return &GraphBlockedError{Issues: result.Issues}
		}
	}
	if m.pairing != nil {
		pending, err := m.pairing.PendingPairings(ctx)
		if err != nil {
			return fmt.Errorf("checking pending pairings: %w", err)
		}
		if len(pending) > 0 {
			return &PairingPendingError{Pending: pending}
		}
	}
	return nil
}

// reserve enforces the one-non-terminal-session-per-game invariant
// and registers a fresh session in the starting state.
func (m *Manager) reserve(request LaunchRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[request.GameID]; ok {
		return nil, &ConflictError{GameID: request.GameID, SessionID: existing.ID}
	}
	session := newSession(request.GameID, request.PlatformID, request.Display, m.clock.Now())
	m.active[request.GameID] = session
	return session, nil
}

func (m *Manager) release(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[session.GameID] == session {
		delete(m.active, session.GameID)
	}
}

// fail moves a session to the error state with a recorded message.
// No-op if the session already reached a terminal state.
func (m *Manager) fail(session *Session, message string) {
	m.finish(session, StatusError, message)
}

// finish applies a terminal transition. Stop and the exit monitor may
// race here; whichever lands first wins and the loser is a no-op.
func (m *Manager) finish(session *Session, status Status, message string) {
	m.mu.Lock()
	if session.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	session.Status = status
	session.Performance.EndTime = &now
	if message != "" {
		session.appendError(now, message)
	}
	if m.active[session.GameID] == session {
		delete(m.active, session.GameID)
	}
	snapshot := *session
	m.mu.Unlock()

	if err := m.store.Save(&snapshot); err != nil {
		m.logger.Warn("persisting terminal session failed", "session", session.ID, "error", err)
	}
}

// monitor waits for the session's container to exit and applies the
// terminal transition: stopped on exit 0, error otherwise. Artifact
// harvesting afterwards is best effort.
func (m *Manager) monitor(session *Session) {
	defer m.monitors.Done()

	exitCode, err := m.engine.WaitForExit(context.Background(), session.ContainerID)
	switch {
	case err != nil:
		m.finish(session, StatusError, fmt.Sprintf("waiting for container exit: %v", err))
	case exitCode == 0:
		m.finish(session, StatusStopped, "")
	default:
		m.finish(session, StatusError, fmt.Sprintf("container exited with code %d", exitCode))
	}

	if m.harvest != nil {
		m.harvest(session)
	}
}

// Stop is the user-initiated teardown: best-effort stop then forced
// remove, and the session is marked stopped regardless of whether
// either call succeeded. Callable from starting or running.
func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	var session *Session
	for _, active := range m.active {
		if active.ID == sessionID {
			session = active
			break
		}
	}
	var containerID string
	if session == nil {
		m.mu.Unlock()
		stored, err := m.store.Load(sessionID)
		if err != nil {
			return fmt.Errorf("stopping session: %w", err)
		}
		if stored.Status.Terminal() {
			return nil
		}
		session = stored
		containerID = session.ContainerID
	} else {
		// The ContainerID is read under the lock: Launch publishes it
		// under the same lock, so either we see it and tear the
		// container down here, or Launch sees the stopping/terminal
		// status and removes the orphan itself.
		session.Status = StatusStopping
		containerID = session.ContainerID
		m.mu.Unlock()
	}

	if containerID != "" {
		if err := m.engine.Stop(ctx, containerID, m.stopTimeout); err != nil {
			m.logger.Warn("stopping container failed, removing anyway",
				"session", session.ID, "container", containerID, "error", err)
		}
		if err := m.engine.Remove(ctx, containerID, true); err != nil {
			m.logger.Warn("removing container failed",
				"session", session.ID, "container", containerID, "error", err)
		}
	}

	m.finish(session, StatusStopped, "")
	return nil
}

// removeOrphan force-removes a container whose session was stopped
// before the container was adopted. Best effort: the container was
// never started, so a failed remove leaves only a created container
// behind.
func (m *Manager) removeOrphan(ctx context.Context, sessionID, containerID string) {
	if err := m.engine.Remove(ctx, containerID, true); err != nil {
		m.logger.Warn("removing orphaned container failed",
			"session", sessionID, "container", containerID, "error", err)
	}
}

// Get returns a stored session by id.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// List returns all stored sessions.
func (m *Manager) List() ([]*Session, error) {
	return m.store.List()
}

// Resume re-adopts non-terminal sessions found in the store after a
// daemon restart: sessions with a container get their exit monitor
// back, ones that never reached container creation are marked failed.
func (m *Manager) Resume(ctx context.Context) error {
	sessions, err := m.store.List()
	if err != nil {
		return fmt.Errorf("listing sessions for resume: %w", err)
	}
	for _, session := range sessions {
		if session.Status.Terminal() {
			continue
		}
		m.mu.Lock()
		m.active[session.GameID] = session
		m.mu.Unlock()

		if session.ContainerID == "" {
			m.fail(session, "orchestrator restarted before container creation")
			continue
		}
		m.logger.Info("resuming session monitor",
			"session", session.ID, "container", session.ContainerID)
		m.monitors.Add(1)
		go m.monitor(session)
	}
	return nil
}

// Wait blocks until every exit monitor has finished. Intended for
// shutdown paths and tests.
func (m *Manager) Wait() {
	m.monitors.Wait()
}
