// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/profile"
)

// ProfileGet returns the user's learning profile. A user with no stored
// profile gets the defaults, never a 404.
func (h *Handler) ProfileGet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PROFILE_FETCH_FAILED", "Failed to load profile", err)
		return
	}
	respondData(w, r, http.StatusOK, p)
}

// ProfileUpdate applies a partial update. Nil fields are left untouched;
// significant changes trigger learning path regeneration in the background.
func (h *Handler) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	var upd profile.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Malformed request body", err)
		return
	}
	if apiErr := validateRequest(&upd); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, &upd)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PROFILE_UPDATE_FAILED", "Failed to update profile", err)
		return
	}
	respondData(w, r, http.StatusOK, p)
}

// ProfileDelete removes the stored profile, cache entry and snapshot.
func (h *Handler) ProfileDelete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	if err := h.profiles.Delete(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "PROFILE_DELETE_FAILED", "Failed to delete profile", err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"userId": userID, "deleted": "true"})
}

// behaviorRequest is the POST /behavior body.
type behaviorRequest struct {
	Completed       bool    `json:"completed"`
	ContentType     string  `json:"contentType" validate:"omitempty,oneof=video audio interactive text"`
	SessionMinutes  float64 `json:"sessionMinutes" validate:"gte=0,lte=1440"`
	EngagementDelta float64 `json:"engagementDelta" validate:"gte=-100,lte=100"`
}

// BehaviorRecord folds one tracked learning event into the profile's
// behavior metrics and returns the updated profile.
func (h *Handler) BehaviorRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	var req behaviorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Malformed request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	ev := profile.BehaviorEvent{
		Completed:       req.Completed,
		ContentType:     profile.ContentType(req.ContentType),
		SessionMinutes:  req.SessionMinutes,
		EngagementDelta: req.EngagementDelta,
	}
	p, err := h.profiles.RecordBehavior(r.Context(), userID, ev)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BEHAVIOR_RECORD_FAILED", "Failed to record behavior", err)
		return
	}
	respondData(w, r, http.StatusOK, p)
}
