package models

// Verdict is the outcome of a single reviewer.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// ReviewerVerdict is what one evaluator returns for a candidate.
type ReviewerVerdict struct {
	Verdict    Verdict `json:"verdict"`
	Reason     *string `json:"reason"` // nil on pass
	TokensUsed int     `json:"tokens_used"`
}

// Passed reports whether the verdict is a pass.
func (v ReviewerVerdict) Passed() bool {
	return v.Verdict == VerdictPass
}

// ReasonOr returns the reason text, or def when none was given.
func (v ReviewerVerdict) ReasonOr(def string) string {
	if v.Reason == nil || *v.Reason == "" {
		return def
	}
	return *v.Reason
}

// Pass builds a passing verdict.
func Pass(tokens int) ReviewerVerdict {
	return ReviewerVerdict{Verdict: VerdictPass, TokensUsed: tokens}
}

// Fail builds a failing verdict. An empty reason is stored as nil.
func Fail(reason string, tokens int) ReviewerVerdict {
	v := ReviewerVerdict{Verdict: VerdictFail, TokensUsed: tokens}
	if reason != "" {
		v.Reason = &reason
	}
	return v
}

// DecisionAction is what the decision engine tells the orchestrator to do.
type DecisionAction string

const (
	DecisionApproved   DecisionAction = "approved"
	DecisionRegenerate DecisionAction = "regenerate"
)

// Decision is the aggregated result of the three verdicts.
type Decision struct {
	Action DecisionAction `json:"action"`
	Reason string         `json:"reason"`
}

// ReviewOutcome records one full panel review of a candidate.
type ReviewOutcome struct {
	ModeratorPass    bool           `json:"moderator_pass"`
	ModeratorReason  *string        `json:"moderator_reason"`
	ComedianPass     bool           `json:"comedian_pass"`
	ComedianReason   *string        `json:"comedian_reason"`
	StylePass        bool           `json:"style_pass"`
	StyleReason      *string        `json:"style_reason"`
	Decision         DecisionAction `json:"decision"`
	DecisionReason   string         `json:"decision_reason"`
	ReviewDurationMs int64          `json:"review_duration_ms"`
	TokensUsed       int            `json:"tokens_used"`
	CostCents        float64        `json:"cost_cents"`
}

// Approved reports whether the panel approved the candidate.
func (o *ReviewOutcome) Approved() bool {
	return o != nil && o.Decision == DecisionApproved
}
