// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

import (
	"context"
	"fmt"
)

const (
	// ratingScale normalizes 0-5 course ratings into [0, 1].
	ratingScale = 5.0

	// collaborativeConfidence is the confidence assigned to collaborative
	// candidates before merging.
	collaborativeConfidence = 0.6
)

// collaborative generates candidates from the completed-course histories of
// similar users: score = similarity x normalized rating. Failures degrade to
// an empty candidate set.
func (e *Engine) collaborative(ctx context.Context, userID string) []Recommendation {
	similar, err := e.social.SimilarUsers(ctx, userID, e.cfg.SimilarUsers)
	if err != nil {
		e.logger.Debug().Err(err).Str("user_id", userID).Msg("similar user lookup failed")
		return nil
	}

	var recs []Recommendation
	seen := make(map[string]struct{})
	for _, su := range similar {
		for _, cc := range su.CompletedCourses {
			// Within one generator the first (most similar) source wins;
			// cross-generator duplicates are merged later
			if _, ok := seen[cc.CourseID]; ok {
				continue
			}
			seen[cc.CourseID] = struct{}{}

			score := su.Similarity * (cc.Rating / ratingScale)
			recs = append(recs, Recommendation{
				CourseID:   cc.CourseID,
				Title:      cc.Title,
				Score:      clampScore(score),
				Confidence: collaborativeConfidence,
				Reason:     fmt.Sprintf("completed by learners like you (rated %.1f)", cc.Rating),
			})
		}
	}
	return recs
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
