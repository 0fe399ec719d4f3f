// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

import (
	"context"
	"fmt"

	"github.com/coursemap/coursemap/internal/profile"
)

// Scoring weights for the content-based generator. A course earns 0.3 per
// tag matching a profile interest and 0.4 per skill requirement matching a
// skill gap, capped at 1.0.
const (
	tagMatchWeight   = 0.3
	skillMatchWeight = 0.4
	maxScore         = 1.0

	// contentConfidence is the confidence assigned to content-based
	// candidates before merging.
	contentConfidence = 0.8
)

// contentBased generates candidates by looking up catalog courses for each of
// the profile's interests and skill gaps. Lookup failures degrade to fewer
// candidates, never to an error.
func (e *Engine) contentBased(ctx context.Context, p *profile.Profile) []Recommendation {
	// Accumulate per-course scores across all interest and skill lookups
	type accum struct {
		course       Course
		tagMatches   int
		skillMatches int
		insertedAt   int
	}
	byID := make(map[string]*accum)
	order := 0

	record := func(c Course, tag, skill bool) {
		a, ok := byID[c.ID]
		if !ok {
			a = &accum{course: c, insertedAt: order}
			order++
			byID[c.ID] = a
		}
		if tag {
			a.tagMatches++
		}
		if skill {
			a.skillMatches++
		}
	}

	for _, interest := range p.Interests {
		courses, err := e.catalog.CoursesByTag(ctx, interest)
		if err != nil {
			e.logger.Debug().Err(err).Str("tag", interest).Msg("catalog tag lookup failed")
			continue
		}
		for _, c := range courses {
			if matchesTag(c, interest) {
				record(c, true, false)
			}
		}
	}

	for _, gap := range p.Skills.Gaps {
		courses, err := e.catalog.CoursesBySkill(ctx, gap)
		if err != nil {
			e.logger.Debug().Err(err).Str("skill", gap).Msg("catalog skill lookup failed")
			continue
		}
		for _, c := range courses {
			if matchesSkill(c, gap) {
				record(c, false, true)
			}
		}
	}

	recs := make([]Recommendation, len(byID))
	for _, a := range byID {
		score := float64(a.tagMatches)*tagMatchWeight + float64(a.skillMatches)*skillMatchWeight
		if score > maxScore {
			score = maxScore
		}
		recs[a.insertedAt] = Recommendation{
			CourseID:                a.course.ID,
			Title:                   a.course.Title,
			Score:                   score,
			Confidence:              contentConfidence,
			Reason:                  contentReason(a.tagMatches, a.skillMatches),
			Tags:                    a.course.Tags,
			EstimatedCompletionTime: a.course.DurationMinutes,
			Difficulty:              a.course.Difficulty,
		}
	}
	return recs
}

func matchesTag(c Course, tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func matchesSkill(c Course, skill string) bool {
	for _, s := range c.SkillRequirements {
		if s == skill {
			return true
		}
	}
	return false
}

func contentReason(tagMatches, skillMatches int) string {
	switch {
	case tagMatches > 0 && skillMatches > 0:
		return fmt.Sprintf("matches %d of your interests and %d skill goals", tagMatches, skillMatches)
	case skillMatches > 0:
		return fmt.Sprintf("builds %d skills you want to learn", skillMatches)
	default:
		return fmt.Sprintf("matches %d of your interests", tagMatches)
	}
}
