// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package connectivity tracks reachability of the upstream learning platform.
//
// The queue flusher subscribes to state transitions: an offline-to-online
// transition triggers an immediate flush, and flushes are skipped entirely
// while offline.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
)

// State is a connectivity state.
type State int

const (
	// Offline means the upstream platform is unreachable.
	Offline State = iota
	// Online means the upstream platform is reachable.
	Online
)

// String returns the state name.
func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Monitor reports upstream reachability and notifies subscribers on transitions.
type Monitor interface {
	// IsOnline reports the current connectivity state.
	IsOnline() bool

	// Subscribe registers a channel that receives every state transition.
	// Sends are non-blocking; a full channel drops the notification.
	Subscribe(ch chan<- State)
}

// ProbeMonitor determines connectivity by periodically probing the upstream
// health endpoint. The initial state is offline until the first successful
// probe.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   zerolog.Logger

	mu     sync.RWMutex
	online bool
	subs   []chan<- State
}

// NewProbeMonitor creates a monitor probing the given health URL at the given
// interval.
func NewProbeMonitor(url string, interval time.Duration, timeout time.Duration) *ProbeMonitor {
	return &ProbeMonitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.With().Str("component", "connectivity").Logger(),
	}
}

// IsOnline reports the current connectivity state.
func (m *ProbeMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a channel that receives every state transition.
func (m *ProbeMonitor) Subscribe(ch chan<- State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

// Serve probes the upstream until the context is cancelled. It implements
// suture.Service.
func (m *ProbeMonitor) Serve(ctx context.Context) error {
	// Probe immediately so startup does not wait a full interval
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.setOnline(false)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.setOnline(false)
		return
	}
	defer resp.Body.Close()

	m.setOnline(resp.StatusCode < http.StatusInternalServerError)
}

// setOnline updates the state and notifies subscribers on a transition.
func (m *ProbeMonitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan<- State, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	state := Offline
	if online {
		state = Online
	}

	m.logger.Info().Str("state", state.String()).Msg("connectivity changed")
	metrics.ConnectivityTransitions.WithLabelValues(state.String()).Inc()
	if online {
		metrics.ConnectivityOnline.Set(1)
	} else {
		metrics.ConnectivityOnline.Set(0)
	}

	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Slow subscriber; drop rather than block the probe loop
		}
	}
}

// ManualMonitor is a Monitor whose state is set explicitly. Used in tests and
// in deployments where connectivity is managed externally.
type ManualMonitor struct {
	mu     sync.RWMutex
	online bool
	subs   []chan<- State
}

// NewManualMonitor creates a manual monitor with the given initial state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{online: online}
}

// IsOnline reports the current connectivity state.
func (m *ManualMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a channel that receives every state transition.
func (m *ManualMonitor) Subscribe(ch chan<- State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

// SetOnline updates the state, notifying subscribers on a transition.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan<- State, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	state := Offline
	if online {
		state = Online
	}
	for _, ch := range subs {
		select {
		case ch <- state:
		default:
		}
	}
}
