// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dillinger-project/dillinger/pairing"
)

// controlAPI is the loopback HTTP surface the host daemon talks to:
// status, health, and pairing state. It binds to 127.0.0.1 only; the
// host reaches it through the container's network namespace.
type controlAPI struct {
	status    *Status
	configDir string
	logger    *slog.Logger
	server    *http.Server
}

func newControlAPI(config Config, status *Status, logger *slog.Logger) *controlAPI {
	api := &controlAPI{
		status:    status,
		configDir: config.ConfigDir,
		logger:    logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", api.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/healthz", api.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", api.handleReadyz).Methods(http.MethodGet)
	router.HandleFunc("/pairing/pending", api.handlePending).Methods(http.MethodGet)
	router.HandleFunc("/pairing/clients", api.handleClients).Methods(http.MethodGet)

	api.server = &http.Server{
		Addr:         net.JoinHostPort("127.0.0.1", strconv.Itoa(config.ControlPort)),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return api
}

// serve runs the API until shutdown. Listen errors are reported on
// the returned channel since they arrive asynchronously.
func (a *controlAPI) serve() <-chan error {
	errs := make(chan error, 1)
	go func() {
		a.logger.Info("control API listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("control API: %w", err)
		}
	}()
	return errs
}

func (a *controlAPI) shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("control API shutdown", "error", err)
	}
}

func (a *controlAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, a.status.snapshot())
}

func (a *controlAPI) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *controlAPI) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.status.ready() {
		http.Error(w, "children still starting", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *controlAPI) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := pendingPairingsFromDisk(a.configDir)
	if err != nil {
		a.logger.Warn("reading pending pairings", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if pending == nil {
		pending = []pairing.PendingPairing{}
	}
	a.writeJSON(w, pending)
}

func (a *controlAPI) handleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := pairedClientsFromDisk(a.configDir)
	if err != nil {
		a.logger.Warn("reading paired clients", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if clients == nil {
		clients = []pairing.PairedClient{}
	}
	a.writeJSON(w, clients)
}

func (a *controlAPI) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		a.logger.Warn("encoding control API response", "error", err)
	}
}
