// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package profile is the single source of truth for per-user learning
// profiles. It serves reads with a deterministic default fallback, applies
// partial updates with best-effort remote persistence, and folds behavior
// events into the profile's engagement metrics.
package profile

import (
	"time"
)

// LearningStyle is the user's inferred learning modality.
type LearningStyle string

// Learning styles.
const (
	StyleVisual      LearningStyle = "visual"
	StyleAuditory    LearningStyle = "auditory"
	StyleKinesthetic LearningStyle = "kinesthetic"
	StyleReading     LearningStyle = "reading"
)

// Pace is the user's preferred learning pace.
type Pace string

// Paces.
const (
	PaceSlow   Pace = "slow"
	PaceMedium Pace = "medium"
	PaceFast   Pace = "fast"
)

// Difficulty is the user's preferred content difficulty.
type Difficulty string

// Difficulties.
const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Skills tracks the user's current and target skills. Gaps is always
// derivable as target minus current; it is recomputed whenever current or
// target changes and never mutated independently.
type Skills struct {
	Current []string `json:"current"`
	Target  []string `json:"target"`
	Gaps    []string `json:"gaps"`
}

// TimeConstraints describes when and how much the user can study.
type TimeConstraints struct {
	AvailableHours float64  `json:"availableHours"`
	PreferredTimes []string `json:"preferredTimes"`
	Timezone       string   `json:"timezone"`
}

// Behavior holds engagement metrics updated only by tracked events, never by
// direct user edits.
type Behavior struct {
	CompletionRate    float64 `json:"completionRate"`
	AvgSessionMinutes float64 `json:"avgSessionMinutes"`
	EngagementScore   float64 `json:"engagementScore"`

	// SessionCount backs the running session-time average.
	SessionCount int `json:"sessionCount"`
}

// Profile is a per-user learning profile.
type Profile struct {
	UserID          string          `json:"userId"`
	LearningStyle   LearningStyle   `json:"learningStyle"`
	Pace            Pace            `json:"pace"`
	Difficulty      Difficulty      `json:"difficulty"`
	Goals           []string        `json:"goals"`
	Interests       []string        `json:"interests"`
	Skills          Skills          `json:"skills"`
	TimeConstraints TimeConstraints `json:"timeConstraints"`
	Behavior        Behavior        `json:"behavior"`

	// RecentContentTypes is a bounded window of recently consumed content
	// types, used to re-infer the learning style.
	RecentContentTypes []string `json:"recentContentTypes,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Default returns the deterministic fallback profile served when a user is
// unknown or the remote fetch fails. Tests depend on these exact values.
func Default(userID string) *Profile {
	return &Profile{
		UserID:        userID,
		LearningStyle: StyleVisual,
		Pace:          PaceMedium,
		Difficulty:    DifficultyBeginner,
		Goals:         []string{},
		Interests:     []string{},
		Skills: Skills{
			Current: []string{},
			Target:  []string{},
			Gaps:    []string{},
		},
		TimeConstraints: TimeConstraints{
			AvailableHours: 5,
			PreferredTimes: []string{},
		},
	}
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Goals = append([]string(nil), p.Goals...)
	cp.Interests = append([]string(nil), p.Interests...)
	cp.Skills.Current = append([]string(nil), p.Skills.Current...)
	cp.Skills.Target = append([]string(nil), p.Skills.Target...)
	cp.Skills.Gaps = append([]string(nil), p.Skills.Gaps...)
	cp.TimeConstraints.PreferredTimes = append([]string(nil), p.TimeConstraints.PreferredTimes...)
	cp.RecentContentTypes = append([]string(nil), p.RecentContentTypes...)
	return &cp
}

// RecomputeGaps sets Skills.Gaps to target minus current, preserving target
// order.
func (p *Profile) RecomputeGaps() {
	current := make(map[string]struct{}, len(p.Skills.Current))
	for _, s := range p.Skills.Current {
		current[s] = struct{}{}
	}

	gaps := make([]string, 0, len(p.Skills.Target))
	for _, s := range p.Skills.Target {
		if _, ok := current[s]; !ok {
			gaps = append(gaps, s)
		}
	}
	p.Skills.Gaps = gaps
}

// SkillsUpdate holds a partial skills change. Gaps cannot be set directly.
type SkillsUpdate struct {
	Current *[]string `json:"current,omitempty"`
	Target  *[]string `json:"target,omitempty"`
}

// Update is a partial profile update. Nil fields are left unchanged; the
// merge is shallow per top-level field group.
type Update struct {
	LearningStyle   *LearningStyle   `json:"learningStyle,omitempty" validate:"omitempty,oneof=visual auditory kinesthetic reading"`
	Pace            *Pace            `json:"pace,omitempty" validate:"omitempty,oneof=slow medium fast"`
	Difficulty      *Difficulty      `json:"difficulty,omitempty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Goals           *[]string        `json:"goals,omitempty"`
	Interests       *[]string        `json:"interests,omitempty"`
	Skills          *SkillsUpdate    `json:"skills,omitempty"`
	TimeConstraints *TimeConstraints `json:"timeConstraints,omitempty"`
}

// Field group names reported by ChangedGroups.
const (
	groupPreferences     = "preferences"
	groupGoals           = "goals"
	groupInterests       = "interests"
	groupSkills          = "skills"
	groupTimeConstraints = "timeConstraints"
)

// significantGroups are the field groups whose change triggers learning path
// regeneration.
var significantGroups = map[string]struct{}{
	groupGoals:           {},
	groupSkills:          {},
	groupPreferences:     {},
	groupTimeConstraints: {},
}

// ChangedGroups returns the names of the top-level field groups this update
// touches.
func (u *Update) ChangedGroups() []string {
	var groups []string
	if u.LearningStyle != nil || u.Pace != nil || u.Difficulty != nil {
		groups = append(groups, groupPreferences)
	}
	if u.Goals != nil {
		groups = append(groups, groupGoals)
	}
	if u.Interests != nil {
		groups = append(groups, groupInterests)
	}
	if u.Skills != nil {
		groups = append(groups, groupSkills)
	}
	if u.TimeConstraints != nil {
		groups = append(groups, groupTimeConstraints)
	}
	return groups
}

// IsSignificant reports whether the update touches a field group that
// warrants learning path regeneration.
func (u *Update) IsSignificant() bool {
	for _, g := range u.ChangedGroups() {
		if _, ok := significantGroups[g]; ok {
			return true
		}
	}
	return false
}

// Apply merges the update into the profile and recomputes skill gaps.
func (u *Update) Apply(p *Profile) {
	if u.LearningStyle != nil {
		p.LearningStyle = *u.LearningStyle
	}
	if u.Pace != nil {
		p.Pace = *u.Pace
	}
	if u.Difficulty != nil {
		p.Difficulty = *u.Difficulty
	}
	if u.Goals != nil {
		p.Goals = append([]string(nil), (*u.Goals)...)
	}
	if u.Interests != nil {
		p.Interests = append([]string(nil), (*u.Interests)...)
	}
	if u.Skills != nil {
		if u.Skills.Current != nil {
			p.Skills.Current = append([]string(nil), (*u.Skills.Current)...)
		}
		if u.Skills.Target != nil {
			p.Skills.Target = append([]string(nil), (*u.Skills.Target)...)
		}
	}
	if u.TimeConstraints != nil {
		p.TimeConstraints = *u.TimeConstraints
		p.TimeConstraints.PreferredTimes = append([]string(nil), u.TimeConstraints.PreferredTimes...)
	}
	p.RecomputeGaps()
}

// ContentType is the content modality of a behavior event.
type ContentType string

// Content types observed in behavior events.
const (
	ContentVideo       ContentType = "video"
	ContentAudio       ContentType = "audio"
	ContentInteractive ContentType = "interactive"
	ContentText        ContentType = "text"
)

// BehaviorEvent is a single tracked learning observation.
type BehaviorEvent struct {
	// Completed marks the event as a course or lesson completion.
	Completed bool `json:"completed"`

	// ContentType is the modality of the consumed content.
	ContentType ContentType `json:"contentType,omitempty"`

	// SessionMinutes is the session length folded into the running average.
	SessionMinutes float64 `json:"sessionMinutes,omitempty"`

	// EngagementDelta adjusts the engagement score, clamped to [0, 100].
	EngagementDelta float64 `json:"engagementDelta,omitempty"`
}

const (
	// completionRateStep is how far a single completion event moves the
	// completion rate toward 100.
	completionRateStep = 5.0

	// recentContentWindow bounds the content-type history used for style
	// inference.
	recentContentWindow = 20
)

// ApplyBehavior folds the event into the profile's behavior metrics and
// re-infers the learning style from the dominant recent content type.
func (p *Profile) ApplyBehavior(ev BehaviorEvent) {
	if ev.Completed {
		p.Behavior.CompletionRate = min(100, p.Behavior.CompletionRate+completionRateStep)
	}
	if ev.SessionMinutes > 0 {
		n := float64(p.Behavior.SessionCount)
		p.Behavior.AvgSessionMinutes = (p.Behavior.AvgSessionMinutes*n + ev.SessionMinutes) / (n + 1)
		p.Behavior.SessionCount++
	}
	if ev.EngagementDelta != 0 {
		p.Behavior.EngagementScore = clamp(p.Behavior.EngagementScore+ev.EngagementDelta, 0, 100)
	}

	if ev.ContentType != "" {
		p.RecentContentTypes = append(p.RecentContentTypes, string(ev.ContentType))
		if len(p.RecentContentTypes) > recentContentWindow {
			p.RecentContentTypes = p.RecentContentTypes[len(p.RecentContentTypes)-recentContentWindow:]
		}
		p.LearningStyle = inferStyle(p.RecentContentTypes)
	}
}

// inferStyle maps the dominant recent content type to a learning style.
// Video maps to visual, audio to auditory, interactive to kinesthetic, and
// everything else to reading.
func inferStyle(recent []string) LearningStyle {
	counts := make(map[string]int, 4)
	for _, ct := range recent {
		counts[ct]++
	}

	dominant := ""
	best := 0
	for _, ct := range []string{string(ContentVideo), string(ContentAudio), string(ContentInteractive), string(ContentText)} {
		if counts[ct] > best {
			dominant = ct
			best = counts[ct]
		}
	}
	// Types outside the known set count toward reading
	other := len(recent)
	for _, ct := range []string{string(ContentVideo), string(ContentAudio), string(ContentInteractive), string(ContentText)} {
		other -= counts[ct]
	}
	if counts[string(ContentText)]+other > best {
		return StyleReading
	}

	switch ContentType(dominant) {
	case ContentVideo:
		return StyleVisual
	case ContentAudio:
		return StyleAuditory
	case ContentInteractive:
		return StyleKinesthetic
	default:
		return StyleReading
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
