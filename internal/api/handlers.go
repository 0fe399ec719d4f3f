// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package api exposes the HTTP surface: learning profiles, recommendations,
// learning paths, the offline action queue and its dead letters, sync
// control, health and the WebSocket event stream.
package api

import (
	"time"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/connectivity"
	"github.com/coursemap/coursemap/internal/profile"
	"github.com/coursemap/coursemap/internal/queue"
	"github.com/coursemap/coursemap/internal/recommend"
	"github.com/coursemap/coursemap/internal/storage"
	"github.com/coursemap/coursemap/internal/websocket"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	profiles  *profile.Store
	engine    *recommend.Engine
	queue     *queue.Queue
	flusher   *queue.Flusher
	monitor   connectivity.Monitor
	store     *storage.Store
	hub       *websocket.Hub
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(
	cfg *config.Config,
	profiles *profile.Store,
	engine *recommend.Engine,
	q *queue.Queue,
	flusher *queue.Flusher,
	monitor connectivity.Monitor,
	store *storage.Store,
	hub *websocket.Hub,
) *Handler {
	return &Handler{
		cfg:       cfg,
		profiles:  profiles,
		engine:    engine,
		queue:     q,
		flusher:   flusher,
		monitor:   monitor,
		store:     store,
		hub:       hub,
		startTime: time.Now(),
	}
}
