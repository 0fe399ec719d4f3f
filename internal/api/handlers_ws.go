// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/websocket"
)

// getUpgrader builds a WebSocket upgrader with origin checking against the
// configured CORS origins. A lone "*" allows any origin.
func (h *Handler) getUpgrader() gorilla.Upgrader {
	origins := h.cfg.Security.CORSOrigins
	return gorilla.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// WebSocket upgrades the connection and registers the client with the hub.
// The client then receives sync-status and recommendation events.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WSErrors.WithLabelValues("upgrade_failed").Inc()
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
