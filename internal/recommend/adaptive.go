// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package recommend

// Context weighting factors. The weight is the product of all applicable
// factors, not a sum.
const (
	morningBoost    = 1.2 // 06:00-12:00
	eveningBoost    = 1.1 // 18:00-22:00
	mobilePenalty   = 0.9
	completionBoost = 1.3 // previous tracked action was a completion
)

// ContextWeight computes the multiplicative score weight for the request
// context.
func ContextWeight(rctx RequestContext) float64 {
	weight := 1.0
	if rctx.Hour >= 6 && rctx.Hour < 12 {
		weight *= morningBoost
	} else if rctx.Hour >= 18 && rctx.Hour < 22 {
		weight *= eveningBoost
	}
	if rctx.Mobile {
		weight *= mobilePenalty
	}
	if rctx.LastActionCompleted {
		weight *= completionBoost
	}
	return weight
}

// applyContext multiplies every candidate's score by the context weight.
// Scores are deliberately not re-clamped: the weight encodes relative
// preference and ranking happens after it is applied.
func applyContext(recs []Recommendation, rctx RequestContext) []Recommendation {
	weight := ContextWeight(rctx)
	if weight == 1.0 {
		return recs
	}
	for i := range recs {
		recs[i].Score *= weight
	}
	return recs
}
