// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/coursemap/coursemap/internal/storage"
)

// HealthLive is the liveness probe. It answers as long as the process can
// serve HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe. Ready means the local store works;
// upstream connectivity is deliberately not part of readiness because the
// whole point of the service is to keep working offline.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.storageCheck(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "Storage unavailable", err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// healthStatus is the GET /health body.
type healthStatus struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	Online         bool    `json:"online"`
	Syncing        bool    `json:"syncing"`
	PendingActions int     `json:"pendingActions"`
	DeadLetters    int     `json:"deadLetters"`
}

// Health returns an operator-facing summary of the service state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.queue.Status()

	letters, err := h.queue.DeadLetters()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HEALTH_CHECK_FAILED", "Failed to read queue state", err)
		return
	}

	respondData(w, r, http.StatusOK, healthStatus{
		Status:         "ok",
		UptimeSeconds:  time.Since(h.startTime).Seconds(),
		Online:         status.IsOnline,
		Syncing:        status.IsSyncing,
		PendingActions: status.PendingChanges,
		DeadLetters:    len(letters),
	})
}

// storageCheck verifies the store answers reads. A missing key is fine; a
// closed or failing store is not.
func (h *Handler) storageCheck() error {
	var ignored struct{}
	err := h.store.Get("health:probe", &ignored)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
