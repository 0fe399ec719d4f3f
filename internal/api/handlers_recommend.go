// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/recommend"
)

// Recommendations returns merged content-based and collaborative
// recommendations. Unknown users and generator failures yield an empty list,
// not an error.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	limit := getIntParam(r, "limit", h.cfg.Recommend.DefaultLimit)
	recs, err := h.engine.Recommend(r.Context(), userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RECOMMEND_FAILED", "Failed to build recommendations", err)
		return
	}
	respondData(w, r, http.StatusOK, recs)
}

// RecommendationsAdaptive returns recommendations with scores adjusted by
// the request context: hour of day, device class and whether the last
// tracked action was a completion.
func (h *Handler) RecommendationsAdaptive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	limit := getIntParam(r, "limit", h.cfg.Recommend.DefaultLimit)
	rctx := recommend.RequestContext{
		Hour:                getIntParam(r, "hour", time.Now().Hour()),
		Mobile:              getBoolParam(r, "mobile", false),
		LastActionCompleted: getBoolParam(r, "lastActionCompleted", false),
	}
	if rctx.Hour < 0 || rctx.Hour > 23 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "hour must be between 0 and 23", nil)
		return
	}

	recs, err := h.engine.RecommendAdaptive(r.Context(), userID, limit, rctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RECOMMEND_FAILED", "Failed to build recommendations", err)
		return
	}
	respondData(w, r, http.StatusOK, recs)
}

// PathGet returns the user's learning path, generating one on first access.
func (h *Handler) PathGet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	path, err := h.engine.Path(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PATH_FETCH_FAILED", "Failed to load learning path", err)
		return
	}
	respondData(w, r, http.StatusOK, path)
}

// pathProgressRequest is the PUT /path/progress body.
type pathProgressRequest struct {
	Progress float64 `json:"progress" validate:"gte=0,lte=100"`
}

// PathProgressUpdate sets the path's overall progress. Values are clamped to
// [0, 100] and progress never moves backwards.
func (h *Handler) PathProgressUpdate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "User ID required", nil)
		return
	}

	var req pathProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Malformed request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	path, err := h.engine.UpdateProgress(r.Context(), userID, req.Progress)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PATH_UPDATE_FAILED", "Failed to update progress", err)
		return
	}
	respondData(w, r, http.StatusOK, path)
}
