// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/connectivity"
	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
)

// Transport replays one action against its upstream endpoint. Implementations
// dispatch on the action type; an unknown type is a per-item failure subject
// to the normal retry policy.
type Transport interface {
	Replay(ctx context.Context, a Action) error
}

// Flusher drains the queue on a periodic timer and on offline-to-online
// transitions. It implements suture.Service.
type Flusher struct {
	queue     *Queue
	transport Transport
	monitor   connectivity.Monitor
	cfg       config.QueueConfig
	logger    zerolog.Logger
}

// NewFlusher creates a flusher for the queue.
func NewFlusher(q *Queue, transport Transport, monitor connectivity.Monitor, cfg config.QueueConfig) *Flusher {
	return &Flusher{
		queue:     q,
		transport: transport,
		monitor:   monitor,
		cfg:       cfg,
		logger:    logging.With().Str("component", "flusher").Logger(),
	}
}

// Serve runs the flush loop until the context is cancelled.
func (f *Flusher) Serve(ctx context.Context) error {
	transitions := make(chan connectivity.State, 8)
	f.monitor.Subscribe(transitions)
	f.queue.setOnline(f.monitor.IsOnline())

	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Flush(ctx)
		case state := <-transitions:
			f.queue.setOnline(state == connectivity.Online)
			if state == connectivity.Online {
				f.logger.Info().Msg("back online, flushing queue")
				f.Flush(ctx)
			}
		}
	}
}

// Flush replays pending actions in FIFO order. It is a no-op while offline or
// while another flush is in progress, so concurrent calls never double-replay
// an item. Actions enqueued mid-flush survive: removal is by ID against the
// live queue, not a wholesale replace.
func (f *Flusher) Flush(ctx context.Context) {
	if !f.monitor.IsOnline() {
		metrics.QueueFlushSkipped.WithLabelValues("offline").Inc()
		return
	}
	if !f.queue.tryBeginSync() {
		metrics.QueueFlushSkipped.WithLabelValues("in_progress").Inc()
		return
	}

	start := time.Now()
	failures := 0
	defer func() {
		metrics.RecordFlush(time.Since(start), failures)
		f.queue.endSync(start.UTC(), failures)
	}()

	snapshot, err := f.queue.Pending()
	if err != nil {
		failures++
		f.logger.Error().Err(err).Msg("pending snapshot failed")
		return
	}
	if len(snapshot) == 0 {
		return
	}

	f.logger.Debug().Int("actions", len(snapshot)).Msg("flush started")

	for _, a := range snapshot {
		if ctx.Err() != nil {
			failures++
			return
		}

		err := f.replay(ctx, a)
		metrics.RecordReplay(string(a.Type), err)
		if err == nil {
			if rmErr := f.queue.remove(a); rmErr != nil {
				f.logger.Error().Err(rmErr).Str("action_id", a.ID).Msg("failed to remove replayed action")
			}
			continue
		}

		failures++
		a.RetryCount++
		a.LastError = err.Error()
		f.logger.Warn().
			Err(err).
			Str("action_id", a.ID).
			Str("type", string(a.Type)).
			Int("retry_count", a.RetryCount).
			Msg("action replay failed")

		if a.RetryCount >= f.cfg.MaxRetries {
			if dlErr := f.queue.deadLetter(a); dlErr != nil {
				f.logger.Error().Err(dlErr).Str("action_id", a.ID).Msg("dead-letter move failed")
			}
			continue
		}
		if recErr := f.queue.recordFailure(a); recErr != nil {
			f.logger.Error().Err(recErr).Str("action_id", a.ID).Msg("failed to persist retry count")
		}
	}
}

// replay dispatches one action with a per-attempt timeout, so a hung
// upstream call cannot leave the flush stuck in isSyncing.
func (f *Flusher) replay(ctx context.Context, a Action) error {
	if _, ok := validActionTypes[a.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}

	replayCtx, cancel := context.WithTimeout(ctx, f.cfg.ReplayTimeout)
	defer cancel()
	return f.transport.Replay(replayCtx, a)
}
