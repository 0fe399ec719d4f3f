// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/storage"
)

// pathPrefix keys learning paths in the shared store.
const pathPrefix = "path:"

type cacheEntry struct {
	recs      []Recommendation
	expiresAt time.Time
}

// Engine combines the candidate generators, caches responses and maintains
// learning paths.
type Engine struct {
	profiles ProfileSource
	catalog  Catalog
	social   SocialGraph
	store    *storage.Store
	cfg      config.RecommendConfig
	logger   zerolog.Logger

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	pathMu sync.Mutex
}

// NewEngine creates a recommendation engine.
func NewEngine(profiles ProfileSource, catalog Catalog, social SocialGraph, store *storage.Store, cfg config.RecommendConfig) *Engine {
	return &Engine{
		profiles: profiles,
		catalog:  catalog,
		social:   social,
		store:    store,
		cfg:      cfg,
		cache:    make(map[string]cacheEntry),
		logger:   logging.With().Str("component", "recommend").Logger(),
	}
}

// Recommend returns up to limit ranked recommendations for the user. Unknown
// users and upstream failures degrade to an empty list, never an error.
func (e *Engine) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	return e.recommend(ctx, userID, limit, nil)
}

// RecommendAdaptive is Recommend with context-weighted re-scoring applied
// before ranking.
func (e *Engine) RecommendAdaptive(ctx context.Context, userID string, limit int, rctx RequestContext) ([]Recommendation, error) {
	return e.recommend(ctx, userID, limit, &rctx)
}

func (e *Engine) recommend(ctx context.Context, userID string, limit int, rctx *RequestContext) ([]Recommendation, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	key := cacheKey(userID, limit, rctx)
	if recs, ok := e.cacheGet(key); ok {
		metrics.RecommendCacheHits.Inc()
		return recs, nil
	}
	metrics.RecommendCacheMisses.Inc()

	mode := "standard"
	if rctx != nil {
		mode = "adaptive"
	}
	start := time.Now()
	defer func() {
		metrics.RecommendDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	p, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for %s: %w", userID, err)
	}

	content := e.contentBased(ctx, p)
	collab := e.collaborative(ctx, userID)

	merged := mergeCandidates(content, collab)
	if rctx != nil {
		merged = applyContext(merged, *rctx)
	}
	recs := rank(merged, limit)

	if len(recs) == 0 {
		metrics.RecommendEmptyResults.Inc()
		recs = []Recommendation{}
	}

	e.cachePut(key, recs)
	return recs, nil
}

// cacheKey embeds the user ID as a prefix so InvalidateUser can drop every
// entry for one user.
func cacheKey(userID string, limit int, rctx *RequestContext) string {
	if rctx == nil {
		return fmt.Sprintf("%s\x00std\x00%d", userID, limit)
	}
	return fmt.Sprintf("%s\x00adp\x00%d\x00%d\x00%t\x00%t", userID, limit, rctx.Hour, rctx.Mobile, rctx.LastActionCompleted)
}

func (e *Engine) cacheGet(key string) ([]Recommendation, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	entry, ok := e.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(e.cache, key)
		metrics.RecommendCacheEvictions.Inc()
		return nil, false
	}
	return entry.recs, true
}

func (e *Engine) cachePut(key string, recs []Recommendation) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[key] = cacheEntry{recs: recs, expiresAt: time.Now().Add(e.cfg.CacheTTL)}
}

// InvalidateUser drops all cached responses for the user.
func (e *Engine) InvalidateUser(userID string) {
	prefix := userID + "\x00"
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	for key := range e.cache {
		if strings.HasPrefix(key, prefix) {
			delete(e.cache, key)
			metrics.RecommendCacheEvictions.Inc()
		}
	}
}

// RegeneratePath rebuilds the user's learning path from fresh
// recommendations, preserving accumulated progress. It implements the
// profile store's PathRegenerator and is called on significant profile
// changes.
func (e *Engine) RegeneratePath(ctx context.Context, userID string) {
	e.InvalidateUser(userID)

	recs, err := e.Recommend(ctx, userID, e.cfg.DefaultLimit)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("path regeneration failed")
		return
	}

	e.pathMu.Lock()
	defer e.pathMu.Unlock()

	var existing LearningPath
	progress := 0.0
	if err := e.store.Get(pathPrefix+userID, &existing); err == nil {
		progress = existing.Progress
	}

	path := LearningPath{
		UserID:    userID,
		Courses:   make([]PathCourse, 0, len(recs)),
		Progress:  progress,
		UpdatedAt: time.Now().UTC(),
	}
	for i, rec := range recs {
		path.Courses = append(path.Courses, PathCourse{
			CourseID: rec.CourseID,
			Title:    rec.Title,
			Order:    i + 1,
		})
	}

	if err := e.store.Set(pathPrefix+userID, &path); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("path persist failed")
		return
	}
	e.logger.Debug().Str("user_id", userID).Int("courses", len(path.Courses)).Msg("learning path regenerated")
}

// DeletePath removes the user's learning path and cached recommendations.
// Called when the account is deleted; unlike regeneration it leaves no
// per-user state behind.
func (e *Engine) DeletePath(userID string) {
	e.InvalidateUser(userID)

	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	if err := e.store.Delete(pathPrefix + userID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("path delete failed")
		return
	}
	e.logger.Debug().Str("user_id", userID).Msg("learning path deleted")
}

// Path returns the user's learning path, generating one if absent.
func (e *Engine) Path(ctx context.Context, userID string) (*LearningPath, error) {
	var path LearningPath
	err := e.store.Get(pathPrefix+userID, &path)
	if err == nil {
		return &path, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	e.RegeneratePath(ctx, userID)

	if err := e.store.Get(pathPrefix+userID, &path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Nothing to recommend; serve an empty path rather than an error
			return &LearningPath{UserID: userID, Courses: []PathCourse{}}, nil
		}
		return nil, err
	}
	return &path, nil
}

// UpdateProgress sets the path's progress, clamped to [0, 100] and never
// decreasing.
func (e *Engine) UpdateProgress(ctx context.Context, userID string, progress float64) (*LearningPath, error) {
	e.pathMu.Lock()
	defer e.pathMu.Unlock()

	var path LearningPath
	if err := e.store.Get(pathPrefix+userID, &path); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		path = LearningPath{UserID: userID, Courses: []PathCourse{}}
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > path.Progress {
		path.Progress = progress
	}
	path.UpdatedAt = time.Now().UTC()

	if err := e.store.Set(pathPrefix+userID, &path); err != nil {
		return nil, err
	}
	return &path, nil
}
