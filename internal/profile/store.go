// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/storage"
)

// snapshotPrefix keys profile snapshots in the shared store.
const snapshotPrefix = "profile:"

// RemoteClient fetches and persists profiles against the upstream platform.
type RemoteClient interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// PathRegenerator reacts to profile lifecycle events that affect the user's
// learning path: significant changes rebuild it, account deletion removes it
// along with any cached recommendations.
type PathRegenerator interface {
	RegeneratePath(ctx context.Context, userID string)
	DeletePath(userID string)
}

type cacheEntry struct {
	profile  *Profile
	cachedAt time.Time
}

// Store serves profile reads and applies updates and behavior events.
//
// Read path: in-memory cache, then local snapshot, then remote fetch, then
// the deterministic default. A read never fails because the upstream is
// unreachable.
type Store struct {
	store  *storage.Store
	remote RemoteClient
	cfg    config.ProfileConfig
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	regenMu sync.RWMutex
	regen   PathRegenerator
}

// NewStore creates a profile store backed by the shared storage and the
// upstream client.
func NewStore(store *storage.Store, remote RemoteClient, cfg config.ProfileConfig) *Store {
	return &Store{
		store:  store,
		remote: remote,
		cfg:    cfg,
		cache:  make(map[string]cacheEntry),
		logger: logging.With().Str("component", "profile").Logger(),
	}
}

// SetPathRegenerator wires the recommendation engine in after construction.
// The profile store and the engine reference each other, so one side is
// attached late.
func (s *Store) SetPathRegenerator(r PathRegenerator) {
	s.regenMu.Lock()
	defer s.regenMu.Unlock()
	s.regen = r
}

// Get returns the user's profile. Unknown users and remote failures degrade
// to the deterministic default; the error return is reserved for a closed
// local store.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	if entry, ok := s.cache[userID]; ok && time.Since(entry.cachedAt) < s.cfg.CacheTTL {
		p := entry.profile.Clone()
		s.mu.Unlock()
		metrics.ProfileFetchesTotal.WithLabelValues("cache").Inc()
		return p, nil
	}
	s.mu.Unlock()

	// Local snapshot survives restarts and remote outages
	var snap Profile
	err := s.store.Get(snapshotPrefix+userID, &snap)
	switch {
	case err == nil:
		s.cachePut(userID, &snap)
		metrics.ProfileFetchesTotal.WithLabelValues("store").Inc()
		return snap.Clone(), nil
	case errors.Is(err, storage.ErrClosed):
		return nil, err
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("snapshot read failed")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	p, err := s.remote.FetchProfile(fetchCtx, userID)
	if err != nil || p == nil {
		if err != nil {
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("remote fetch failed, serving default")
		}
		metrics.ProfileFetchesTotal.WithLabelValues("default").Inc()
		metrics.ProfileDefaultFallbacks.Inc()
		return Default(userID), nil
	}

	p.RecomputeGaps()
	s.persistLocal(userID, p)
	metrics.ProfileFetchesTotal.WithLabelValues("remote").Inc()
	return p.Clone(), nil
}

// Update applies a partial update. The local merge is authoritative: the
// remote persist is best-effort and a failure is logged and counted but never
// rolled back or surfaced. Significant changes trigger learning path
// regeneration.
func (s *Store) Update(ctx context.Context, userID string, upd *Update) (*Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	upd.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	s.persistLocal(userID, p)

	s.persistRemote(ctx, p)

	if upd.IsSignificant() {
		s.signalRegenerate(ctx, userID)
	}

	return p.Clone(), nil
}

// RecordBehavior folds a behavior event into the profile.
func (s *Store) RecordBehavior(ctx context.Context, userID string, ev BehaviorEvent) (*Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	p.ApplyBehavior(ev)
	p.UpdatedAt = time.Now().UTC()
	s.persistLocal(userID, p)

	return p.Clone(), nil
}

// Delete removes the user's profile snapshot and cache entry. The deletion
// cascades: the learning path and cached recommendations go with the account
// instead of being rebuilt from the default profile.
func (s *Store) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	if err := s.store.Delete(snapshotPrefix + userID); err != nil {
		return err
	}

	s.signalPathDelete(userID)
	return nil
}

func (s *Store) cachePut(userID string, p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = cacheEntry{profile: p.Clone(), cachedAt: time.Now()}
}

func (s *Store) persistLocal(userID string, p *Profile) {
	s.cachePut(userID, p)
	if err := s.store.Set(snapshotPrefix+userID, p); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("snapshot write failed")
	}
}

func (s *Store) persistRemote(ctx context.Context, p *Profile) {
	saveCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	if err := s.remote.SaveProfile(saveCtx, p); err != nil {
		metrics.ProfileRemoteWriteFailures.Inc()
		s.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("remote persist failed, local state remains authoritative")
	}
}

func (s *Store) signalRegenerate(ctx context.Context, userID string) {
	s.regenMu.RLock()
	regen := s.regen
	s.regenMu.RUnlock()
	if regen == nil {
		return
	}

	metrics.ProfilePathRegenerations.Inc()
	s.logger.Debug().Str("user_id", userID).Msg("significant profile change, regenerating learning path")
	regen.RegeneratePath(ctx, userID)
}

func (s *Store) signalPathDelete(userID string) {
	s.regenMu.RLock()
	regen := s.regen
	s.regenMu.RUnlock()
	if regen == nil {
		return
	}

	s.logger.Debug().Str("user_id", userID).Msg("account deleted, removing learning path")
	regen.DeletePath(userID)
}
