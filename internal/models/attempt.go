package models

import "time"

// Method identifies the path that produced a candidate.
type Method string

const (
	MethodBasicModeration  Method = "basic_moderation"
	MethodFullRQC          Method = "full_rqc"
	MethodFallbackAfterRQC Method = "fallback_after_rqc"
	MethodFallbackOnError  Method = "fallback_on_error"
)

// IsFallback reports whether the candidate came from the safe fallback template.
func (m Method) IsFallback() bool {
	return m == MethodFallbackAfterRQC || m == MethodFallbackOnError
}

// GenerationAttempt is the orchestrator's record of one review cycle.
// Token and cost figures are cumulative over every backend call in the cycle.
type GenerationAttempt struct {
	CycleID          string         `json:"cycle_id"`
	AttemptNumber    int            `json:"attempt_number"`
	TotalAttempts    int            `json:"total_attempts"`
	Method           Method         `json:"method"`
	Plan             Plan           `json:"plan"`
	CandidateText    string         `json:"candidate_text"`
	Approved         bool           `json:"approved"`
	TokensUsed       int            `json:"tokens_used"`
	CostCents        float64        `json:"cost_cents"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Outcome          *ReviewOutcome `json:"outcome,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// TelemetryRecord is the structured per-cycle record handed to the telemetry sink.
type TelemetryRecord struct {
	ID               string         `json:"id"`
	CycleID          string         `json:"cycle_id"`
	UserID           string         `json:"user_id"`
	Plan             Plan           `json:"plan"`
	AttemptNumber    int            `json:"attempt_number"`
	Method           Method         `json:"method"`
	Approved         bool           `json:"approved"`
	Decision         DecisionAction `json:"decision"` // empty when the panel never ran
	DecisionReason   string         `json:"decision_reason"`
	TokensUsed       int            `json:"tokens_used"`
	CostCents        float64        `json:"cost_cents"`
	ReviewDurationMs int64          `json:"review_duration_ms"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Error            string         `json:"error,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// TelemetrySummary aggregates telemetry over many cycles.
type TelemetrySummary struct {
	Cycles          int            `json:"cycles"`
	Approved        int            `json:"approved"`
	ByMethod        map[Method]int `json:"by_method"`
	AvgTokens       float64        `json:"avg_tokens"`
	AvgCostCents    float64        `json:"avg_cost_cents"`
	TotalCostCents  float64        `json:"total_cost_cents"`
	AvgProcessingMs float64        `json:"avg_processing_ms"`
	AvgReviewMs     float64        `json:"avg_review_ms"`
}

// ApprovalRate returns the fraction of approved cycles, 0 when empty.
func (s *TelemetrySummary) ApprovalRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Approved) / float64(s.Cycles)
}
