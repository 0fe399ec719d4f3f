// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/connectivity"
)

// mockTransport counts replay calls per action ID, records the order calls
// arrive in, and fails IDs listed in failing. A non-nil barrier makes Replay
// block until the barrier closes.
type mockTransport struct {
	mu      sync.Mutex
	calls   map[string]int
	seq     []string
	failing map[string]error
	barrier chan struct{}

	// enqueueDuring, when set, enqueues one action on the first replay to
	// exercise mid-flush enqueues.
	enqueueDuring func()
	enqueuedOnce  bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		calls:   make(map[string]int),
		failing: make(map[string]error),
	}
}

func (m *mockTransport) Replay(ctx context.Context, a Action) error {
	if m.barrier != nil {
		select {
		case <-m.barrier:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls[a.ID]++
	m.seq = append(m.seq, a.ID)
	if m.enqueueDuring != nil && !m.enqueuedOnce {
		m.enqueuedOnce = true
		m.mu.Unlock()
		m.enqueueDuring()
		m.mu.Lock()
	}
	err := m.failing[a.ID]
	m.mu.Unlock()
	return err
}

func (m *mockTransport) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func (m *mockTransport) sequence() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seq...)
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		FlushInterval: 30 * time.Second,
		MaxRetries:    3,
		ReplayTimeout: time.Second,
	}
}

func newTestFlusher(t *testing.T, online bool) (*Flusher, *Queue, *mockTransport, *connectivity.ManualMonitor) {
	t.Helper()
	q, _ := newTestQueue(t)
	transport := newMockTransport()
	monitor := connectivity.NewManualMonitor(online)
	f := NewFlusher(q, transport, monitor, testQueueConfig())
	return f, q, transport, monitor
}

func TestFlushReplaysInFIFOOrderAndRemoves(t *testing.T) {
	t.Parallel()

	f, q, transport, _ := newTestFlusher(t, true)

	a1, _ := q.Enqueue(ActionFavorite, json.RawMessage(`{"courseId":"c1"}`)) //nolint:errcheck
	a2, _ := q.Enqueue(ActionCompletion, json.RawMessage(`{"courseId":"c2"}`)) //nolint:errcheck

	f.Flush(context.Background())

	seq := transport.sequence()
	if len(seq) != 2 || seq[0] != a1.ID || seq[1] != a2.ID {
		t.Errorf("replay sequence = %v, want [%s %s]", seq, a1.ID, a2.ID)
	}

	pending, err := q.Pending()
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after flush = %d, want 0", len(pending))
	}

	status := q.Status()
	if status.PendingChanges != 0 {
		t.Errorf("pendingChanges = %d, want 0", status.PendingChanges)
	}
	if status.LastSync.IsZero() {
		t.Error("lastSync not updated")
	}
	if status.IsSyncing {
		t.Error("isSyncing still true after flush")
	}
}

func TestFlushSkippedWhileOffline(t *testing.T) {
	t.Parallel()

	f, q, transport, _ := newTestFlusher(t, false)

	a, _ := q.Enqueue(ActionLike, nil) //nolint:errcheck
	f.Flush(context.Background())

	if transport.callCount(a.ID) != 0 {
		t.Errorf("replayed %d times while offline, want 0", transport.callCount(a.ID))
	}
	pending, _ := q.Pending() //nolint:errcheck
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 (flush skipped)", len(pending))
	}
}

func TestConcurrentFlushDoesNotDoubleReplay(t *testing.T) {
	t.Parallel()

	f, q, transport, _ := newTestFlusher(t, true)

	a, _ := q.Enqueue(ActionFavorite, nil) //nolint:errcheck

	// First flush blocks inside the transport; the second must be a no-op
	transport.barrier = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Flush(context.Background())
	}()

	// Wait until the first flush holds the syncing flag
	deadline := time.After(2 * time.Second)
	for !q.Status().IsSyncing {
		select {
		case <-deadline:
			t.Fatal("first flush never started")
		case <-time.After(time.Millisecond):
		}
	}

	f.Flush(context.Background()) // returns immediately

	close(transport.barrier)
	<-done

	if got := transport.callCount(a.ID); got != 1 {
		t.Errorf("action replayed %d times under concurrent flush, want 1", got)
	}
}

func TestRetryBoundDeadLettersAfterThreeFailures(t *testing.T) {
	t.Parallel()

	f, q, transport, _ := newTestFlusher(t, true)

	a, _ := q.Enqueue(ActionReview, nil) //nolint:errcheck
	transport.failing[a.ID] = errors.New("upstream rejects this payload")

	for i := 0; i < 5; i++ {
		f.Flush(context.Background())
	}

	// Exactly MaxRetries attempts, then the action is gone from pending
	if got := transport.callCount(a.ID); got != 3 {
		t.Errorf("failing action replayed %d times, want exactly 3", got)
	}

	pending, err := q.Pending()
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("failing action still pending after retry ceiling")
	}

	letters, err := q.DeadLetters()
	if err != nil {
		t.Fatalf("DeadLetters() error: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(letters))
	}
	if letters[0].Action.RetryCount != 3 {
		t.Errorf("dead letter retryCount = %d, want 3", letters[0].Action.RetryCount)
	}
	if letters[0].Action.LastError == "" {
		t.Error("dead letter lastError empty")
	}
}

func TestUnknownTypeCountsAsFailure(t *testing.T) {
	t.Parallel()

	f, q, _, _ := newTestFlusher(t, true)

	// Bypass Enqueue validation to simulate a corrupt or legacy item
	a := Action{ID: "x1", Type: "teleport", Seq: 1, Timestamp: time.Now()}
	if err := q.recordFailure(a); err != nil {
		t.Fatalf("seed pending item: %v", err)
	}

	for i := 0; i < 3; i++ {
		f.Flush(context.Background())
	}

	pending, _ := q.Pending() //nolint:errcheck
	if len(pending) != 0 {
		t.Errorf("unknown-type action still pending after retries")
	}
	letters, _ := q.DeadLetters() //nolint:errcheck
	if len(letters) != 1 {
		t.Errorf("dead letters = %d, want 1", len(letters))
	}
}

func TestMidFlushEnqueueSurvives(t *testing.T) {
	t.Parallel()

	f, q, transport, _ := newTestFlusher(t, true)

	if _, err := q.Enqueue(ActionFavorite, nil); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	var lateID string
	transport.enqueueDuring = func() {
		late, err := q.Enqueue(ActionWishlist, nil)
		if err != nil {
			t.Errorf("mid-flush Enqueue() error: %v", err)
			return
		}
		lateID = late.ID
	}

	f.Flush(context.Background())

	pending, err := q.Pending()
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending after flush = %d, want 1 (mid-flush enqueue preserved)", len(pending))
	}
	if pending[0].ID != lateID {
		t.Errorf("surviving action = %s, want the mid-flush enqueue %s", pending[0].ID, lateID)
	}
}

func TestOnlineTransitionTriggersFlush(t *testing.T) {
	t.Parallel()

	f, q, transport, monitor := newTestFlusher(t, false)

	a, _ := q.Enqueue(ActionCourseProgress, nil) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Serve(ctx) //nolint:errcheck

	// Give Serve time to subscribe before transitioning
	time.Sleep(50 * time.Millisecond)
	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for transport.callCount(a.ID) == 0 {
		select {
		case <-deadline:
			t.Fatal("online transition never triggered a flush")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !q.Status().IsOnline {
		t.Error("status isOnline = false after online transition")
	}
}

func TestEndToEndOfflineThenOnline(t *testing.T) {
	t.Parallel()

	f, q, transport, monitor := newTestFlusher(t, false)

	a1, _ := q.Enqueue(ActionFavorite, json.RawMessage(`{"courseId":"c1"}`)) //nolint:errcheck
	a2, _ := q.Enqueue(ActionCompletion, json.RawMessage(`{"courseId":"c2"}`)) //nolint:errcheck

	// Offline flush is a no-op
	f.Flush(context.Background())
	if transport.callCount(a1.ID)+transport.callCount(a2.ID) != 0 {
		t.Fatal("actions replayed while offline")
	}

	monitor.SetOnline(true)
	f.Flush(context.Background())

	// Exactly once each, and in insertion order
	seq := transport.sequence()
	if len(seq) != 2 || seq[0] != a1.ID || seq[1] != a2.ID {
		t.Errorf("replay sequence = %v, want [%s %s]", seq, a1.ID, a2.ID)
	}
	pending, _ := q.Pending() //nolint:errcheck
	if len(pending) != 0 {
		t.Errorf("pending after online flush = %d, want 0", len(pending))
	}
}
