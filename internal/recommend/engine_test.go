// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/profile"
	"github.com/coursemap/coursemap/internal/storage"
)

type mockProfiles struct {
	profiles map[string]*profile.Profile
}

func (m *mockProfiles) Get(_ context.Context, userID string) (*profile.Profile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p.Clone(), nil
	}
	return profile.Default(userID), nil
}

type mockCatalog struct {
	byTag   map[string][]Course
	bySkill map[string][]Course
	err     error
}

func (m *mockCatalog) CoursesByTag(_ context.Context, tag string) ([]Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byTag[tag], nil
}

func (m *mockCatalog) CoursesBySkill(_ context.Context, skill string) ([]Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.bySkill[skill], nil
}

type mockSocial struct {
	similar []SimilarUser
	err     error
}

func (m *mockSocial) SimilarUsers(_ context.Context, _ string, _ int) ([]SimilarUser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.similar, nil
}

func testEngineConfig() config.RecommendConfig {
	return config.RecommendConfig{
		CacheTTL:     time.Minute,
		DefaultLimit: 10,
		MaxLimit:     50,
		SimilarUsers: 20,
	}
}

func newTestEngine(t *testing.T, profiles ProfileSource, catalog Catalog, social SocialGraph) *Engine {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return NewEngine(profiles, catalog, social, db, testEngineConfig())
}

func interestedProfile(userID string, interests []string, gaps []string) *profile.Profile {
	p := profile.Default(userID)
	p.Interests = interests
	p.Skills.Target = gaps
	p.RecomputeGaps()
	return p
}

func TestSingleTagMatchScoresPointThree(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go": {{ID: "c1", Title: "Intro to Go", Tags: []string{"go"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if math.Abs(recs[0].Score-0.3) > 1e-9 {
		t.Errorf("single tag match score = %v, want 0.3", recs[0].Score)
	}
}

func TestSkillMatchScoresPointFour(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", nil, []string{"sql"}),
	}}
	catalog := &mockCatalog{bySkill: map[string][]Course{
		"sql": {{ID: "c1", SkillRequirements: []string{"sql"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if math.Abs(recs[0].Score-0.4) > 1e-9 {
		t.Errorf("single skill match score = %v, want 0.4", recs[0].Score)
	}
}

func TestContentScoreCappedAtOne(t *testing.T) {
	t.Parallel()

	course := Course{ID: "c1", Tags: []string{"go", "sql", "k8s"}, SkillRequirements: []string{"go", "sql"}}
	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go", "sql", "k8s"}, []string{"go", "sql"}),
	}}
	catalog := &mockCatalog{
		byTag:   map[string][]Course{"go": {course}, "sql": {course}, "k8s": {course}},
		bySkill: map[string][]Course{"go": {course}, "sql": {course}},
	}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Score != 1.0 {
		t.Errorf("score = %v, want capped at 1.0", recs[0].Score)
	}
}

func TestCollaborativeScoreIsSimilarityTimesRating(t *testing.T) {
	t.Parallel()

	social := &mockSocial{similar: []SimilarUser{
		{UserID: "u2", Similarity: 0.8, CompletedCourses: []CompletedCourse{
			{CourseID: "c1", Rating: 4.0},
		}},
	}}
	e := newTestEngine(t, &mockProfiles{}, &mockCatalog{}, social)

	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	want := 0.8 * (4.0 / 5.0)
	if math.Abs(recs[0].Score-want) > 1e-9 {
		t.Errorf("collaborative score = %v, want %v", recs[0].Score, want)
	}
}

func TestMergeFormula(t *testing.T) {
	t.Parallel()

	a := []Recommendation{{CourseID: "c1", Score: 0.9, Confidence: 0.8, Reason: "matches your interests"}}
	b := []Recommendation{{CourseID: "c1", Score: 0.5, Confidence: 0.6, Reason: "popular with similar learners"}}

	merged := mergeCandidates(a, b)
	if len(merged) != 1 {
		t.Fatalf("merged %d candidates, want 1", len(merged))
	}

	wantScore := (0.9*0.8 + 0.5*0.6) / (0.8 + 0.6)
	if math.Abs(merged[0].Score-wantScore) > 1e-9 {
		t.Errorf("merged score = %v, want %v", merged[0].Score, wantScore)
	}

	wantConf := math.Min(1, 0.8+0.6*0.1)
	if math.Abs(merged[0].Confidence-wantConf) > 1e-9 {
		t.Errorf("merged confidence = %v, want %v", merged[0].Confidence, wantConf)
	}

	wantReason := "matches your interests; popular with similar learners"
	if merged[0].Reason != wantReason {
		t.Errorf("merged reason = %q, want %q", merged[0].Reason, wantReason)
	}
}

func TestMergedConfidenceNeverExceedsOne(t *testing.T) {
	t.Parallel()

	lists := [][]Recommendation{
		{{CourseID: "c1", Score: 0.5, Confidence: 0.99}},
		{{CourseID: "c1", Score: 0.5, Confidence: 0.9}},
		{{CourseID: "c1", Score: 0.5, Confidence: 0.9}},
	}
	merged := mergeCandidates(lists...)
	if merged[0].Confidence > 1 {
		t.Errorf("merged confidence = %v, want <= 1", merged[0].Confidence)
	}
}

func TestRankStableOnTies(t *testing.T) {
	t.Parallel()

	recs := []Recommendation{
		{CourseID: "first", Score: 0.5},
		{CourseID: "second", Score: 0.5},
		{CourseID: "third", Score: 0.5},
		{CourseID: "winner", Score: 0.9},
	}
	ranked := rank(recs, 10)

	wantOrder := []string{"winner", "first", "second", "third"}
	for i, want := range wantOrder {
		if ranked[i].CourseID != want {
			t.Errorf("rank[%d] = %s, want %s", i, ranked[i].CourseID, want)
		}
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	t.Parallel()

	recs := []Recommendation{
		{CourseID: "a", Score: 0.9},
		{CourseID: "b", Score: 0.8},
		{CourseID: "c", Score: 0.7},
	}
	ranked := rank(recs, 2)
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	if ranked[0].CourseID != "a" || ranked[1].CourseID != "b" {
		t.Errorf("top results = %s, %s, want a, b", ranked[0].CourseID, ranked[1].CourseID)
	}
}

func TestContextWeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rctx RequestContext
		want float64
	}{
		{"morning desktop", RequestContext{Hour: 9}, 1.2},
		{"evening desktop", RequestContext{Hour: 19}, 1.1},
		{"afternoon desktop", RequestContext{Hour: 14}, 1.0},
		{"late night", RequestContext{Hour: 23}, 1.0},
		{"morning mobile", RequestContext{Hour: 9, Mobile: true}, 1.2 * 0.9},
		{"after completion", RequestContext{Hour: 14, LastActionCompleted: true}, 1.3},
		{"morning mobile after completion", RequestContext{Hour: 6, Mobile: true, LastActionCompleted: true}, 1.2 * 0.9 * 1.3},
		{"boundary noon excluded", RequestContext{Hour: 12}, 1.0},
		{"boundary 22 excluded", RequestContext{Hour: 22}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ContextWeight(tt.rctx)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ContextWeight(%+v) = %v, want %v", tt.rctx, got, tt.want)
			}
		})
	}
}

func TestAdaptiveAppliesMorningBoost(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go": {{ID: "c1", Tags: []string{"go"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	recs, err := e.RecommendAdaptive(context.Background(), "u1", 10, RequestContext{Hour: 9})
	if err != nil {
		t.Fatalf("RecommendAdaptive() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	want := 0.3 * 1.2
	if math.Abs(recs[0].Score-want) > 1e-9 {
		t.Errorf("adaptive morning score = %v, want %v", recs[0].Score, want)
	}
}

func TestUnknownUserReturnsEmptyList(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &mockProfiles{}, &mockCatalog{}, &mockSocial{})

	recs, err := e.Recommend(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if recs == nil {
		t.Fatal("Recommend() returned nil, want empty list")
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations for unknown user, want 0", len(recs))
	}
}

func TestGeneratorFailuresDegradeToEmpty(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, []string{"sql"}),
	}}
	catalog := &mockCatalog{err: errors.New("catalog down")}
	social := &mockSocial{err: errors.New("social down")}
	e := newTestEngine(t, profiles, catalog, social)

	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations with all generators failing, want 0", len(recs))
	}
}

func TestRecommendCachesResponses(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go": {{ID: "c1", Tags: []string{"go"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	if _, err := e.Recommend(context.Background(), "u1", 10); err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}

	// Break the catalog; a cached response must still be served
	catalog.err = errors.New("catalog down")
	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("cached response lost: got %d recommendations, want 1", len(recs))
	}

	// Invalidation drops the cache, exposing the broken catalog
	e.InvalidateUser("u1")
	recs, err = e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations after invalidation, want 0", len(recs))
	}
}

func TestRegeneratePathAssignsUniqueOrders(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go", "sql"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go":  {{ID: "c1", Title: "Go", Tags: []string{"go"}}},
		"sql": {{ID: "c2", Title: "SQL", Tags: []string{"sql"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	e.RegeneratePath(context.Background(), "u1")

	path, err := e.Path(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if len(path.Courses) != 2 {
		t.Fatalf("path has %d courses, want 2", len(path.Courses))
	}

	orders := make(map[int]bool)
	for _, c := range path.Courses {
		if orders[c.Order] {
			t.Errorf("duplicate order value %d", c.Order)
		}
		orders[c.Order] = true
	}
}

func TestRegeneratePathPreservesProgress(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go": {{ID: "c1", Tags: []string{"go"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	e.RegeneratePath(context.Background(), "u1")
	if _, err := e.UpdateProgress(context.Background(), "u1", 40); err != nil {
		t.Fatalf("UpdateProgress() error: %v", err)
	}

	e.RegeneratePath(context.Background(), "u1")

	path, err := e.Path(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if path.Progress != 40 {
		t.Errorf("progress after regeneration = %v, want 40", path.Progress)
	}
}

func TestDeletePathRemovesStoredPath(t *testing.T) {
	t.Parallel()

	profiles := &mockProfiles{profiles: map[string]*profile.Profile{
		"u1": interestedProfile("u1", []string{"go"}, nil),
	}}
	catalog := &mockCatalog{byTag: map[string][]Course{
		"go": {{ID: "c1", Tags: []string{"go"}}},
	}}
	e := newTestEngine(t, profiles, catalog, &mockSocial{})

	if _, err := e.UpdateProgress(context.Background(), "u1", 40); err != nil {
		t.Fatalf("UpdateProgress() error: %v", err)
	}

	e.DeletePath("u1")

	var path LearningPath
	if err := e.store.Get(pathPrefix+"u1", &path); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("path record after delete: err = %v, want ErrNotFound", err)
	}

	// A later read starts from scratch, not from the deleted record
	fresh, err := e.Path(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if fresh.Progress != 0 {
		t.Errorf("progress after account delete = %v, want 0", fresh.Progress)
	}
}

func TestUpdateProgressClampedAndMonotonic(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &mockProfiles{}, &mockCatalog{}, &mockSocial{})

	path, err := e.UpdateProgress(context.Background(), "u1", 150)
	if err != nil {
		t.Fatalf("UpdateProgress() error: %v", err)
	}
	if path.Progress != 100 {
		t.Errorf("progress = %v, want clamp to 100", path.Progress)
	}

	// A lower value never decreases progress
	path, err = e.UpdateProgress(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("UpdateProgress() error: %v", err)
	}
	if path.Progress != 100 {
		t.Errorf("progress decreased to %v, want 100", path.Progress)
	}
}
