// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/queue"
	"github.com/coursemap/coursemap/internal/storage"
)

// enqueueRequest is the POST /actions body.
type enqueueRequest struct {
	Type    string          `json:"type" validate:"required,oneof=favorite wishlist like review completion analytics course_progress"`
	Payload json.RawMessage `json:"payload"`
}

// ActionEnqueue persists one user action for later replay. Enqueueing never
// triggers a flush; the flusher drains on its own schedule.
func (h *Handler) ActionEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Malformed request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	a, err := h.queue.Enqueue(queue.ActionType(req.Type), req.Payload)
	if err != nil {
		if errors.Is(err, queue.ErrUnknownActionType) {
			respondError(w, http.StatusBadRequest, "UNKNOWN_ACTION_TYPE", "Unknown action type", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "Failed to enqueue action", err)
		return
	}
	respondData(w, r, http.StatusAccepted, a)
}

// ActionsPending lists queued actions in replay order.
func (h *Handler) ActionsPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.Pending()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_READ_FAILED", "Failed to read queue", err)
		return
	}
	respondData(w, r, http.StatusOK, pending)
}

// SyncStatus returns the queue's sync state: pending count, online flag,
// last sync time and error count.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.queue.Status())
}

// SyncFlush triggers an immediate flush. The call is synchronous; while
// offline or with a flush already running it is a no-op and the returned
// status shows the unchanged queue.
func (h *Handler) SyncFlush(w http.ResponseWriter, r *http.Request) {
	h.flusher.Flush(r.Context())
	respondData(w, r, http.StatusOK, h.queue.Status())
}

// DeadLettersList returns actions that exhausted their retries.
func (h *Handler) DeadLettersList(w http.ResponseWriter, r *http.Request) {
	letters, err := h.queue.DeadLetters()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DLQ_READ_FAILED", "Failed to read dead letters", err)
		return
	}
	respondData(w, r, http.StatusOK, letters)
}

// DeadLetterRequeue moves one dead letter back to the pending queue with a
// reset retry count.
func (h *Handler) DeadLetterRequeue(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")
	if actionID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Action ID required", nil)
		return
	}

	if err := h.queue.Requeue(actionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "No dead letter with that ID", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "REQUEUE_FAILED", "Failed to requeue action", err)
		return
	}
	respondData(w, r, http.StatusOK, h.queue.Status())
}

// DeadLettersPurge drops all dead letters and returns how many were removed.
func (h *Handler) DeadLettersPurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PurgeDeadLetters()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PURGE_FAILED", "Failed to purge dead letters", err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]int{"purged": n})
}
