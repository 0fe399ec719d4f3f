// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package websocket pushes sync-status and recommendation events to connected
// frontends so they can refresh without polling.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/queue"
)

// Message types for WebSocket communication
const (
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeSyncStatus         = "sync_status"
	MessageTypeRecsInvalidated    = "recommendations_invalidated"
	MessageTypePathUpdated        = "learning_path_updated"
	MessageTypeConnectivityChange = "connectivity_change"
)

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until the context is cancelled. It implements
// suture.Service. Lifecycle events take priority over broadcasts so client
// state is consistent before messages are processed.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) shutdown() {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// broadcastToClients sends a message to every connected client. Clients whose
// send buffer is full are dropped; a stalled frontend must not block the rest.
// Iteration is in client ID order so delivery order is reproducible.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON sends a message of the given type to all connected clients.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastSyncStatus pushes the queue's sync status to all clients. Wired as
// a queue.OnStatusChange listener.
func (h *Hub) BroadcastSyncStatus(status queue.SyncStatus) {
	h.BroadcastJSON(MessageTypeSyncStatus, status)
}

// RecsInvalidatedData is sent when a user's cached recommendations were
// invalidated and the frontend should re-fetch.
type RecsInvalidatedData struct {
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

// BroadcastRecsInvalidated tells clients to re-fetch recommendations for the
// user.
func (h *Hub) BroadcastRecsInvalidated(userID string) {
	h.BroadcastJSON(MessageTypeRecsInvalidated, RecsInvalidatedData{
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// PathUpdatedData is sent after a learning path regeneration.
type PathUpdatedData struct {
	UserID    string `json:"userId"`
	Courses   int    `json:"courses"`
	Timestamp string `json:"timestamp"`
}

// BroadcastPathUpdated tells clients the user's learning path was rebuilt.
func (h *Hub) BroadcastPathUpdated(userID string, courses int) {
	h.BroadcastJSON(MessageTypePathUpdated, PathUpdatedData{
		UserID:    userID,
		Courses:   courses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
