package models

import "time"

// Tone is the style register a user wants their roasts delivered in.
type Tone string

const (
	ToneGentle   Tone = "gentle"
	ToneBalanced Tone = "balanced"
	ToneHarsh    Tone = "harsh"
)

// Intensity maps the tone onto the 1-5 intensity scale used in reviewer prompts.
// Unknown tones are treated as balanced.
func (t Tone) Intensity() int {
	switch t {
	case ToneGentle:
		return 2
	case ToneHarsh:
		return 5
	default:
		return 3
	}
}

// Valid reports whether t is one of the known tones.
func (t Tone) Valid() bool {
	switch t {
	case ToneGentle, ToneBalanced, ToneHarsh:
		return true
	}
	return false
}

// Plan identifies a subscription tier.
type Plan string

const (
	PlanStarterTrial Plan = "starter_trial"
	PlanStarter      Plan = "starter"
	PlanPro          Plan = "pro"
	PlanPlus         Plan = "plus"
	PlanCustom       Plan = "custom"
)

// Plans lists every known tier, lowest first.
var Plans = []Plan{PlanStarterTrial, PlanStarter, PlanPro, PlanPlus, PlanCustom}

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	for _, known := range Plans {
		if p == known {
			return true
		}
	}
	return false
}

// PlanDefaults holds the per-tier review entitlements.
type PlanDefaults struct {
	MaxRegenerations int
	RQCEnabled       bool
}

// DefaultsForPlan returns the entitlements a tier starts with.
// Only plus and custom get the full reviewer panel.
func DefaultsForPlan(p Plan) PlanDefaults {
	switch p {
	case PlanStarter:
		return PlanDefaults{MaxRegenerations: 0}
	case PlanPro:
		return PlanDefaults{MaxRegenerations: 1}
	case PlanPlus:
		return PlanDefaults{MaxRegenerations: 2, RQCEnabled: true}
	case PlanCustom:
		return PlanDefaults{MaxRegenerations: 3, RQCEnabled: true}
	default:
		return PlanDefaults{}
	}
}

// ReviewConfig is the per-user review configuration, fetched once per cycle.
type ReviewConfig struct {
	ID                string
	UserID            string
	Plan              Plan
	Tone              Tone
	CustomStylePrompt string // only honored when the custom prompt feature is enabled
	MaxRegenerations  int
	RQCEnabled        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultReviewConfig returns the conservative configuration used when the
// real one cannot be fetched: lowest tier, moderation only.
func DefaultReviewConfig(userID string) *ReviewConfig {
	return &ReviewConfig{
		UserID:           userID,
		Plan:             PlanStarterTrial,
		Tone:             ToneBalanced,
		MaxRegenerations: 0,
		RQCEnabled:       false,
	}
}

// NewReviewConfig builds a config for userID carrying the plan's default
// entitlements.
func NewReviewConfig(userID string, plan Plan, tone Tone) *ReviewConfig {
	d := DefaultsForPlan(plan)
	return &ReviewConfig{
		UserID:           userID,
		Plan:             plan,
		Tone:             tone,
		MaxRegenerations: d.MaxRegenerations,
		RQCEnabled:       d.RQCEnabled,
	}
}
