// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/storage"
)

// mockRemote implements RemoteClient with configurable behavior.
type mockRemote struct {
	mu         sync.Mutex
	profiles   map[string]*Profile
	fetchErr   error
	saveErr    error
	saveCalls  int
	fetchCalls int
}

func newMockRemote() *mockRemote {
	return &mockRemote{profiles: make(map[string]*Profile)}
}

func (m *mockRemote) FetchProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p.Clone(), nil
}

func (m *mockRemote) SaveProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.profiles[p.UserID] = p.Clone()
	return nil
}

type mockRegenerator struct {
	mu      sync.Mutex
	users   []string
	deleted []string
}

func (m *mockRegenerator) RegeneratePath(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
}

func (m *mockRegenerator) DeletePath(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, userID)
}

func (m *mockRegenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *mockRegenerator) deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func newTestStore(t *testing.T, remote RemoteClient) *Store {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	return NewStore(db, remote, config.ProfileConfig{
		CacheTTL:      time.Minute,
		RemoteTimeout: time.Second,
	})
}

func TestGetUnknownUserReturnsDefault(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("upstream unreachable")
	s := newTestStore(t, remote)

	p, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	want := Default("u1")
	if p.LearningStyle != want.LearningStyle || p.Pace != want.Pace ||
		p.Difficulty != want.Difficulty ||
		p.TimeConstraints.AvailableHours != want.TimeConstraints.AvailableHours {
		t.Errorf("Get() = %+v, want default profile %+v", p, want)
	}
}

func TestGetRemoteThenCached(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.profiles["u1"] = &Profile{
		UserID:        "u1",
		LearningStyle: StyleAuditory,
		Pace:          PaceFast,
		Difficulty:    DifficultyAdvanced,
	}
	s := newTestStore(t, remote)

	p, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.LearningStyle != StyleAuditory {
		t.Errorf("learningStyle = %s, want auditory", p.LearningStyle)
	}

	// Second read must come from the cache, not the remote
	if _, err := s.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if remote.fetchCalls != 1 {
		t.Errorf("fetchCalls = %d, want 1 (second read cached)", remote.fetchCalls)
	}
}

func TestUpdateSurvivesRemoteFailure(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("down")
	remote.saveErr = errors.New("down")
	s := newTestStore(t, remote)

	pace := PaceFast
	p, err := s.Update(context.Background(), "u1", &Update{Pace: &pace})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if p.Pace != PaceFast {
		t.Errorf("pace = %s, want fast", p.Pace)
	}

	// The merged state is authoritative despite the failed remote persist
	got, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Pace != PaceFast {
		t.Errorf("pace after failed remote persist = %s, want fast", got.Pace)
	}
}

func TestUpdateTriggersRegenerationOnlyWhenSignificant(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("down")
	s := newTestStore(t, remote)

	regen := &mockRegenerator{}
	s.SetPathRegenerator(regen)

	interests := []string{"databases"}
	if _, err := s.Update(context.Background(), "u1", &Update{Interests: &interests}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if regen.calls() != 0 {
		t.Errorf("regeneration after interests-only update: %d calls, want 0", regen.calls())
	}

	goals := []string{"learn go"}
	if _, err := s.Update(context.Background(), "u1", &Update{Goals: &goals}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if regen.calls() != 1 {
		t.Errorf("regeneration after goals update: %d calls, want 1", regen.calls())
	}
}

func TestUpdateRecomputesGaps(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("down")
	s := newTestStore(t, remote)

	current := []string{"go"}
	target := []string{"go", "sql"}
	p, err := s.Update(context.Background(), "u1", &Update{
		Skills: &SkillsUpdate{Current: &current, Target: &target},
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(p.Skills.Gaps) != 1 || p.Skills.Gaps[0] != "sql" {
		t.Errorf("gaps = %v, want [sql]", p.Skills.Gaps)
	}
}

func TestRecordBehaviorPersists(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("down")
	s := newTestStore(t, remote)

	if _, err := s.RecordBehavior(context.Background(), "u1", BehaviorEvent{Completed: true}); err != nil {
		t.Fatalf("RecordBehavior() error: %v", err)
	}

	p, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Behavior.CompletionRate == 0 {
		t.Error("completion rate not persisted")
	}
}

func TestDeleteRemovesProfile(t *testing.T) {
	t.Parallel()

	remote := newMockRemote()
	remote.fetchErr = errors.New("down")
	s := newTestStore(t, remote)

	pace := PaceSlow
	if _, err := s.Update(context.Background(), "u1", &Update{Pace: &pace}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if err := s.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	p, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Pace != PaceMedium {
		t.Errorf("pace after delete = %s, want default medium", p.Pace)
	}
}

func TestDeleteCascadesToLearningPath(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, newMockRemote())
	regen := &mockRegenerator{}
	s.SetPathRegenerator(regen)

	if err := s.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if got := regen.deletes(); len(got) != 1 || got[0] != "u1" {
		t.Errorf("path deletions = %v, want [u1]", got)
	}
	// Deletion must not rebuild a path for the removed account
	if regen.calls() != 0 {
		t.Errorf("regenerations on delete = %d, want 0", regen.calls())
	}
}
