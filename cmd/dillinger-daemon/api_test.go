// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dillinger-project/dillinger/engine"
	"github.com/dillinger-project/dillinger/lib/clock"
	"github.com/dillinger-project/dillinger/lib/config"
	"github.com/dillinger-project/dillinger/pairing"
	"github.com/dillinger-project/dillinger/session"
)

type stubEngine struct {
	created atomic.Int32
	pingErr error
	exits   chan int
}

func (s *stubEngine) Create(ctx context.Context, spec engine.JobSpec) (string, error) {
	n := s.created.Add(1)
	return fmt.Sprintf("container-%d", n), nil
}

func (s *stubEngine) Start(ctx context.Context, id string) error { return nil }

func (s *stubEngine) Stop(ctx context.Context, id string, timeout time.Duration) error { return nil }

func (s *stubEngine) Remove(ctx context.Context, id string, force bool) error { return nil }

func (s *stubEngine) WaitForExit(ctx context.Context, id string) (int, error) {
	return <-s.exits, nil
}

func (s *stubEngine) Ping(ctx context.Context) error { return s.pingErr }

type stubPairing struct{}

func (stubPairing) PendingPairings(ctx context.Context) ([]pairing.PendingPairing, error) {
	return nil, nil
}

func newTestAPI(t *testing.T) (*api, *stubEngine, *session.Manager) {
	t.Helper()
	eng := &stubEngine{exits: make(chan int)}
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(session.ManagerOptions{
		Engine: eng,
		Store:  store,
		Clock:  clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger: logger,
	})
	cfg, err := config.LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &api{
		cfg:     cfg,
		manager: manager,
		pairing: stubPairing{},
		pinger:  eng,
		logger:  logger,
	}, eng, manager
}

func postLaunch(t *testing.T, handler http.Handler, body launchBody) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(payload))
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestLaunchAndConflict(t *testing.T) {
	apiServer, eng, manager := newTestAPI(t)
	router := apiServer.router()

	recorder := postLaunch(t, router, launchBody{GameID: "doom", PlatformID: "wine"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("first launch = %d, body %s", recorder.Code, recorder.Body)
	}
	var created session.Session
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != session.StatusRunning || created.ContainerID == "" {
		t.Errorf("created session = %+v", created)
	}

	recorder = postLaunch(t, router, launchBody{GameID: "doom", PlatformID: "wine"})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate launch = %d, want 409", recorder.Code)
	}
	var conflict struct {
		ExistingSessionID string `json:"existingSessionId"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &conflict); err != nil {
		t.Fatal(err)
	}
	if conflict.ExistingSessionID != created.ID {
		t.Errorf("conflict cites %q, want %q", conflict.ExistingSessionID, created.ID)
	}

	eng.exits <- 0
	manager.Wait()
}

func TestLaunchValidation(t *testing.T) {
	apiServer, _, _ := newTestAPI(t)
	router := apiServer.router()

	recorder := postLaunch(t, router, launchBody{PlatformID: "wine"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("missing gameId = %d, want 400", recorder.Code)
	}

	recorder = postLaunch(t, router, launchBody{GameID: "doom", PlatformID: "wine", Display: "hologram"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("bad display = %d, want 400", recorder.Code)
	}
}

func TestGetStopAndList(t *testing.T) {
	apiServer, eng, manager := newTestAPI(t)
	router := apiServer.router()

	recorder := postLaunch(t, router, launchBody{GameID: "doom", PlatformID: "wine"})
	var created session.Session
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("get = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID, nil))
	if recorder.Code != http.StatusNoContent {
		t.Errorf("stop = %d, want 204", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("list = %d", recorder.Code)
	}
	var sessions []session.Session
	if err := json.Unmarshal(recorder.Body.Bytes(), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Status != session.StatusStopped {
		t.Errorf("sessions = %+v", sessions)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/sessions/no-such-id", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", recorder.Code)
	}

	eng.exits <- 0
	manager.Wait()
}

func TestEngineStatus(t *testing.T) {
	apiServer, eng, _ := newTestAPI(t)
	router := apiServer.router()

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/engine/status", nil))
	var status struct {
		Reachable bool `json:"reachable"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Reachable {
		t.Error("engine reported unreachable with healthy ping")
	}

	eng.pingErr = errors.New("socket refused")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/engine/status", nil))
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Reachable {
		t.Error("engine reported reachable with failing ping")
	}
}

func TestPendingPairingsEmptyIsArray(t *testing.T) {
	apiServer, _, _ := newTestAPI(t)
	recorder := httptest.NewRecorder()
	apiServer.router().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/api/pairing/pending", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("pending = %d", recorder.Code)
	}
	if recorder.Body.String() != "[]\n" {
		t.Errorf("body = %q, want empty array", recorder.Body.String())
	}
}
