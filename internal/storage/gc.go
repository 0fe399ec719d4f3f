// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
)

// GCService periodically runs Badger value-log garbage collection. It
// implements suture.Service.
type GCService struct {
	store    *Store
	interval time.Duration
	logger   zerolog.Logger
}

// NewGCService creates a GC service for the store.
func NewGCService(store *Store, interval time.Duration) *GCService {
	return &GCService{
		store:    store,
		interval: interval,
		logger:   logging.With().Str("component", "storage-gc").Logger(),
	}
}

// Serve runs GC rounds until the context is cancelled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.runOnce()
		}
	}
}

func (g *GCService) runOnce() {
	// Badger reclaims at most one value log file per call; loop until
	// there is nothing left to rewrite.
	for {
		reclaimed, err := g.store.RunGC()
		if err != nil {
			metrics.StorageGCRuns.WithLabelValues("error").Inc()
			g.logger.Warn().Err(err).Msg("value log gc failed")
			return
		}
		if !reclaimed {
			metrics.StorageGCRuns.WithLabelValues("noop").Inc()
			return
		}
		metrics.StorageGCRuns.WithLabelValues("reclaimed").Inc()
		g.logger.Debug().Msg("value log file reclaimed")
	}
}
