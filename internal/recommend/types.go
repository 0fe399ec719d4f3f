// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package recommend produces ranked, de-duplicated course recommendations by
// combining a content-based and a collaborative candidate generator, and
// maintains per-user learning paths regenerated on significant profile
// changes.
package recommend

import (
	"context"
	"time"

	"github.com/coursemap/coursemap/internal/profile"
)

// Course is candidate course metadata from the catalog.
type Course struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Tags              []string           `json:"tags"`
	SkillRequirements []string           `json:"skillRequirements"`
	Difficulty        profile.Difficulty `json:"difficulty"`
	DurationMinutes   int                `json:"durationMinutes"`

	// Rating is the average user rating on a 0-5 scale.
	Rating float64 `json:"rating"`
}

// Recommendation is a scored course candidate. Recommendations are computed
// per request and may be cached, but are never authoritative state.
type Recommendation struct {
	CourseID                string             `json:"courseId"`
	Title                   string             `json:"title,omitempty"`
	Score                   float64            `json:"score"`
	Confidence              float64            `json:"confidence"`
	Reason                  string             `json:"reason"`
	Tags                    []string           `json:"tags,omitempty"`
	EstimatedCompletionTime int                `json:"estimatedCompletionTime,omitempty"`
	Difficulty              profile.Difficulty `json:"difficulty,omitempty"`
}

// CompletedCourse is a course a similar user finished, with their rating.
type CompletedCourse struct {
	CourseID string  `json:"courseId"`
	Title    string  `json:"title,omitempty"`
	Rating   float64 `json:"rating"`
}

// SimilarUser is a user with a precomputed similarity to the target user.
type SimilarUser struct {
	UserID           string            `json:"userId"`
	Similarity       float64           `json:"similarity"`
	CompletedCourses []CompletedCourse `json:"completedCourses"`
}

// Catalog looks up candidate courses. Implemented by the upstream platform
// client.
type Catalog interface {
	CoursesByTag(ctx context.Context, tag string) ([]Course, error)
	CoursesBySkill(ctx context.Context, skill string) ([]Course, error)
}

// SocialGraph supplies similar users for the collaborative generator.
type SocialGraph interface {
	SimilarUsers(ctx context.Context, userID string, limit int) ([]SimilarUser, error)
}

// ProfileSource serves profile reads. Implemented by the profile store.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// RequestContext carries the ambient context used by adaptive re-scoring.
type RequestContext struct {
	// Hour is the local hour of day, 0-23.
	Hour int `json:"hour"`

	// Mobile is true when the request originates from a mobile device.
	Mobile bool `json:"mobile"`

	// LastActionCompleted is true when the immediately preceding tracked
	// action was a completion.
	LastActionCompleted bool `json:"lastActionCompleted"`
}

// PathCourse is one ordered entry of a learning path. Order values are unique
// within a path.
type PathCourse struct {
	CourseID string `json:"courseId"`
	Title    string `json:"title,omitempty"`
	Order    int    `json:"order"`
}

// LearningPath is a per-user ordered course sequence with overall progress.
type LearningPath struct {
	UserID  string       `json:"userId"`
	Courses []PathCourse `json:"courses"`

	// Progress is a percentage in [0, 100], clamped on update and
	// non-decreasing under normal operation.
	Progress float64 `json:"progress"`

	UpdatedAt time.Time `json:"updatedAt"`
}
