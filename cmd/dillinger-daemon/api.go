// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dillinger-project/dillinger/lib/config"
	"github.com/dillinger-project/dillinger/pairing"
	"github.com/dillinger-project/dillinger/session"
)

// launchBody is the POST /api/sessions request. Image and command
// come from the out-of-scope installer analyzer; absent they fall
// back to the platform defaults.
type launchBody struct {
	GameID     string   `json:"gameId"`
	PlatformID string   `json:"platformId"`
	Display    string   `json:"display"`
	Image      string   `json:"image,omitempty"`
	Command    []string `json:"command,omitempty"`
}

// api is the daemon's loopback JSON surface, the collaborator
// contract the web UI talks to.
type api struct {
	cfg      *config.Config
	manager  *session.Manager
	pairing  session.PairingChecker
	launcher *streamLauncher
	pinger   interface {
		Ping(ctx context.Context) error
	}
	logger *slog.Logger
}

func (a *api) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/sessions", a.handleLaunch).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions", a.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}", a.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}", a.handleStop).Methods(http.MethodDelete)
	router.HandleFunc("/api/pairing/pending", a.handlePendingPairings).Methods(http.MethodGet)
	router.HandleFunc("/api/engine/status", a.handleEngineStatus).Methods(http.MethodGet)
	return router
}

func (a *api) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var body launchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, "decoding request: "+err.Error())
		return
	}
	if err := validateLaunchFields(body.GameID, body.PlatformID); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	display := session.DisplayMethod(body.Display)
	if display == "" {
		display = session.DisplayLocal
	}
	if display != session.DisplayLocal && display != session.DisplayStreaming {
		a.writeError(w, http.StatusBadRequest, "display must be local or streaming")
		return
	}

	request := session.LaunchRequest{
		GameID:     body.GameID,
		PlatformID: body.PlatformID,
		Display:    display,
	}
	if display == session.DisplayStreaming {
		request.Spec = buildSidecarSpec(a.cfg, body.GameID, body.PlatformID)
	} else {
		request.Spec = buildGameSpec(a.cfg, body.GameID, body.PlatformID, body.Image, body.Command)
	}

	launched, err := a.manager.Launch(r.Context(), request)
	if err != nil {
		var conflict *session.ConflictError
		var pending *session.PairingPendingError
		var blocked *session.GraphBlockedError
		switch {
		case errors.As(err, &conflict):
			a.writeJSON(w, http.StatusConflict, map[string]any{
				"error":             "session already active for game",
				"existingSessionId": conflict.SessionID,
			})
		case errors.As(err, &pending):
			a.writeJSON(w, http.StatusPreconditionFailed, map[string]any{
				"error":           "pairing approval required before streaming",
				"pendingPairings": pending.Pending,
			})
		case errors.As(err, &blocked):
			a.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "streaming pipeline blocked on this machine",
				"issues": blocked.Issues,
			})
		default:
			a.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	// Streaming sessions get the game process injected once the
	// sidecar reports ready.
	if display == session.DisplayStreaming && len(body.Command) > 0 {
		a.launcher.launchWhenReady(launched, body.Command)
	}

	a.writeJSON(w, http.StatusCreated, launched)
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.manager.List()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	a.writeJSON(w, http.StatusOK, sessions)
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	found, err := a.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, found)
}

func (a *api) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Stop(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handlePendingPairings(w http.ResponseWriter, r *http.Request) {
	pendingList, err := a.pairing.PendingPairings(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pendingList == nil {
		pendingList = []pairing.PendingPairing{}
	}
	a.writeJSON(w, http.StatusOK, pendingList)
}

func (a *api) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]any{"reachable": true}
	if err := a.pinger.Ping(ctx); err != nil {
		status["reachable"] = false
		status["error"] = err.Error()
	}
	a.writeJSON(w, http.StatusOK, status)
}

func (a *api) writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		a.logger.Warn("encoding API response", "error", err)
	}
}

func (a *api) writeError(w http.ResponseWriter, code int, message string) {
	a.writeJSON(w, code, map[string]string{"error": message})
}
