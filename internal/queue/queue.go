// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package queue buffers user mutations while the upstream platform is
// unreachable and replays them with at-least-once delivery and bounded
// retries. Actions are persisted with fsync before Enqueue returns, so the
// queue survives process crashes; an action that keeps failing is moved to a
// dead-letter store after the retry ceiling instead of being retried forever.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/storage"
)

// ActionType identifies which upstream endpoint an action replays against.
type ActionType string

// Replayable action types.
const (
	ActionFavorite       ActionType = "favorite"
	ActionWishlist       ActionType = "wishlist"
	ActionLike           ActionType = "like"
	ActionReview         ActionType = "review"
	ActionCompletion     ActionType = "completion"
	ActionAnalytics      ActionType = "analytics"
	ActionCourseProgress ActionType = "course_progress"
)

var validActionTypes = map[ActionType]struct{}{
	ActionFavorite:       {},
	ActionWishlist:       {},
	ActionLike:           {},
	ActionReview:         {},
	ActionCompletion:     {},
	ActionAnalytics:      {},
	ActionCourseProgress: {},
}

// ErrUnknownActionType is returned when enqueueing or replaying an action
// whose type has no matching endpoint.
var ErrUnknownActionType = errors.New("queue: unknown action type")

// Action is one buffered mutation. The payload is delivered to the upstream
// endpoint verbatim.
type Action struct {
	ID         string          `json:"id"`
	Type       ActionType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`

	// Seq fixes FIFO replay order within a process lifetime.
	Seq uint64 `json:"seq"`
}

// DeadLetter is an action that exhausted its retries.
type DeadLetter struct {
	Action   Action    `json:"action"`
	FailedAt time.Time `json:"failedAt"`
}

// SyncStatus is the process-wide queue status surfaced to callers and
// broadcast on change.
type SyncStatus struct {
	LastSync       time.Time `json:"lastSync"`
	PendingChanges int       `json:"pendingChanges"`
	IsOnline       bool      `json:"isOnline"`
	IsSyncing      bool      `json:"isSyncing"`
	SyncErrors     int       `json:"syncErrors"`
}

// Key prefixes in the shared store.
const (
	pendingPrefix = "pending:"
	deadPrefix    = "dead:"
)

// Queue is the durable offline action queue.
type Queue struct {
	store  *storage.Store
	logger zerolog.Logger

	// seq orders pending keys so Badger iterates them FIFO.
	seq atomic.Uint64

	statusMu  sync.RWMutex
	status    SyncStatus
	listeners []func(SyncStatus)

	// syncing is the flush mutual-exclusion flag.
	syncing atomic.Bool
}

// New opens the queue over the shared store and recovers the sequence
// counter and pending count from persisted state.
func New(store *storage.Store) (*Queue, error) {
	q := &Queue{
		store:  store,
		logger: logging.With().Str("component", "queue").Logger(),
	}

	maxSeq := uint64(0)
	count := 0
	err := store.IteratePrefix(pendingPrefix, func(_ string, value []byte) error {
		var a Action
		if err := json.Unmarshal(value, &a); err != nil {
			return fmt.Errorf("decode pending action: %w", err)
		}
		if a.Seq > maxSeq {
			maxSeq = a.Seq
		}
		count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recover queue: %w", err)
	}

	q.seq.Store(maxSeq)
	q.status.PendingChanges = count
	metrics.QueuePendingActions.Set(float64(count))

	if count > 0 {
		q.logger.Info().Int("pending", count).Msg("recovered pending actions")
	}
	return q, nil
}

func pendingKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", pendingPrefix, seq)
}

// Enqueue persists a new action with retryCount 0 and timestamp now, and
// updates pendingChanges. Enqueueing never triggers a flush; delivery waits
// for the periodic timer or an online transition so actions batch.
func (q *Queue) Enqueue(actionType ActionType, payload json.RawMessage) (*Action, error) {
	if _, ok := validActionTypes[actionType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}

	a := &Action{
		ID:        uuid.NewString(),
		Type:      actionType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Seq:       q.seq.Add(1),
	}

	if err := q.store.Set(pendingKey(a.Seq), a); err != nil {
		return nil, fmt.Errorf("persist action: %w", err)
	}

	metrics.QueueEnqueuedTotal.WithLabelValues(string(actionType)).Inc()
	q.refreshPendingCount()

	q.logger.Debug().Str("action_id", a.ID).Str("type", string(actionType)).Msg("action enqueued")
	return a, nil
}

// Pending returns a snapshot of pending actions in FIFO order.
func (q *Queue) Pending() ([]Action, error) {
	var actions []Action
	err := q.store.IteratePrefix(pendingPrefix, func(_ string, value []byte) error {
		var a Action
		if err := json.Unmarshal(value, &a); err != nil {
			return fmt.Errorf("decode pending action: %w", err)
		}
		actions = append(actions, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// remove deletes a pending action by its sequence key.
func (q *Queue) remove(a Action) error {
	return q.store.Delete(pendingKey(a.Seq))
}

// recordFailure persists the incremented retry count and last error.
func (q *Queue) recordFailure(a Action) error {
	return q.store.Set(pendingKey(a.Seq), &a)
}

// deadLetter moves an action from the pending queue to the dead-letter
// store.
func (q *Queue) deadLetter(a Action) error {
	dl := DeadLetter{Action: a, FailedAt: time.Now().UTC()}
	if err := q.store.Set(deadPrefix+a.ID, &dl); err != nil {
		return fmt.Errorf("persist dead letter: %w", err)
	}
	if err := q.remove(a); err != nil {
		return err
	}

	metrics.RecordDeadLetter(string(a.Type))
	q.refreshDeadLetterGauge()
	q.logger.Warn().
		Str("action_id", a.ID).
		Str("type", string(a.Type)).
		Int("retries", a.RetryCount).
		Str("last_error", a.LastError).
		Msg("action dead-lettered after exhausting retries")
	return nil
}

// DeadLetters returns all dead-lettered actions.
func (q *Queue) DeadLetters() ([]DeadLetter, error) {
	var letters []DeadLetter
	err := q.store.IteratePrefix(deadPrefix, func(_ string, value []byte) error {
		var dl DeadLetter
		if err := json.Unmarshal(value, &dl); err != nil {
			return fmt.Errorf("decode dead letter: %w", err)
		}
		letters = append(letters, dl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return letters, nil
}

// Requeue moves a dead-lettered action back onto the pending queue with a
// reset retry count.
func (q *Queue) Requeue(actionID string) error {
	var dl DeadLetter
	if err := q.store.Get(deadPrefix+actionID, &dl); err != nil {
		return err
	}

	a := dl.Action
	a.RetryCount = 0
	a.LastError = ""
	a.Seq = q.seq.Add(1)

	if err := q.store.Set(pendingKey(a.Seq), &a); err != nil {
		return fmt.Errorf("requeue action: %w", err)
	}
	if err := q.store.Delete(deadPrefix + actionID); err != nil {
		return err
	}

	metrics.DeadLettersRequeued.Inc()
	q.refreshPendingCount()
	q.refreshDeadLetterGauge()
	return nil
}

// PurgeDeadLetters deletes all dead-lettered actions and returns how many
// were removed.
func (q *Queue) PurgeDeadLetters() (int, error) {
	letters, err := q.DeadLetters()
	if err != nil {
		return 0, err
	}
	for _, dl := range letters {
		if err := q.store.Delete(deadPrefix + dl.Action.ID); err != nil {
			return 0, err
		}
	}

	metrics.DeadLettersPurged.Add(float64(len(letters)))
	q.refreshDeadLetterGauge()
	return len(letters), nil
}

// Status returns the current sync status.
func (q *Queue) Status() SyncStatus {
	q.statusMu.RLock()
	defer q.statusMu.RUnlock()
	return q.status
}

// OnStatusChange registers a callback invoked after every status change.
// Callbacks must not block.
func (q *Queue) OnStatusChange(fn func(SyncStatus)) {
	q.statusMu.Lock()
	defer q.statusMu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// updateStatus applies fn to the status under lock and notifies listeners.
func (q *Queue) updateStatus(fn func(*SyncStatus)) {
	q.statusMu.Lock()
	fn(&q.status)
	status := q.status
	listeners := make([]func(SyncStatus), len(q.listeners))
	copy(listeners, q.listeners)
	q.statusMu.Unlock()

	metrics.QueuePendingActions.Set(float64(status.PendingChanges))
	for _, l := range listeners {
		l(status)
	}
}

// refreshPendingCount recounts pending keys and updates pendingChanges.
func (q *Queue) refreshPendingCount() {
	count, err := q.store.CountPrefix(pendingPrefix)
	if err != nil {
		q.logger.Warn().Err(err).Msg("pending count failed")
		return
	}
	q.updateStatus(func(s *SyncStatus) {
		s.PendingChanges = count
	})
}

func (q *Queue) refreshDeadLetterGauge() {
	count, err := q.store.CountPrefix(deadPrefix)
	if err != nil {
		return
	}
	metrics.DeadLettersTotal.Set(float64(count))
}

// tryBeginSync atomically sets isSyncing. Returns false when a flush is
// already in progress.
func (q *Queue) tryBeginSync() bool {
	if !q.syncing.CompareAndSwap(false, true) {
		return false
	}
	q.updateStatus(func(s *SyncStatus) { s.IsSyncing = true })
	return true
}

// endSync clears isSyncing and records the flush outcome.
func (q *Queue) endSync(ranAt time.Time, failures int) {
	q.syncing.Store(false)

	count, err := q.store.CountPrefix(pendingPrefix)
	if err != nil {
		q.logger.Warn().Err(err).Msg("pending count failed")
		count = -1
	}
	q.updateStatus(func(s *SyncStatus) {
		s.IsSyncing = false
		s.LastSync = ranAt
		s.SyncErrors = failures
		if count >= 0 {
			s.PendingChanges = count
		}
	})
}

// setOnline records connectivity in the status.
func (q *Queue) setOnline(online bool) {
	q.updateStatus(func(s *SyncStatus) { s.IsOnline = online })
}
