// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

import "sort"

// confidenceDamping controls how much a duplicate source raises combined
// confidence: conf' = min(1, conf + otherConf*0.1).
const confidenceDamping = 0.1

// mergeCandidates groups candidates by course ID. Duplicates are combined by
// confidence-weighted score averaging, damped confidence accumulation and
// reason concatenation; a candidate is never silently overwritten. Insertion
// order of first appearance is preserved.
func mergeCandidates(lists ...[]Recommendation) []Recommendation {
	var merged []Recommendation
	index := make(map[string]int)

	for _, list := range lists {
		for _, rec := range list {
			i, ok := index[rec.CourseID]
			if !ok {
				index[rec.CourseID] = len(merged)
				merged = append(merged, rec)
				continue
			}

			existing := &merged[i]
			totalConf := existing.Confidence + rec.Confidence
			if totalConf > 0 {
				existing.Score = (existing.Score*existing.Confidence + rec.Score*rec.Confidence) / totalConf
			}
			existing.Confidence = min(1, existing.Confidence+rec.Confidence*confidenceDamping)
			if rec.Reason != "" {
				if existing.Reason != "" {
					existing.Reason += "; " + rec.Reason
				} else {
					existing.Reason = rec.Reason
				}
			}
			// Fill metadata the first source lacked
			if existing.Title == "" {
				existing.Title = rec.Title
			}
			if len(existing.Tags) == 0 {
				existing.Tags = rec.Tags
			}
			if existing.EstimatedCompletionTime == 0 {
				existing.EstimatedCompletionTime = rec.EstimatedCompletionTime
			}
			if existing.Difficulty == "" {
				existing.Difficulty = rec.Difficulty
			}
		}
	}
	return merged
}

// rank sorts by score descending with a stable sort, so ties keep insertion
// order, then truncates to limit.
func rank(recs []Recommendation, limit int) []Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
