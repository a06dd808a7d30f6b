package review

import (
	"fmt"
	"strings"

	"github.com/joescharf/rqc/internal/models"
)

const (
	reasonAllApproved = "All 3 reviewers approved (moderator, comedian, style)"
	reasonQuorum      = "2 of 3 reviewers approved (moderator clear)"
	moderatorPrefix   = "Moderator rejected: "
	noReasonGiven     = "no reason given"
	notApproved       = "did not approve"
	reasonSeparator   = "; "
)

// Decide aggregates the three verdicts. The moderator is checked first and
// its fail is a veto; otherwise two passes out of three approve.
func Decide(moderator, comedian, style models.ReviewerVerdict) models.Decision {
	if !moderator.Passed() {
		return models.Decision{
			Action: models.DecisionRegenerate,
			Reason: moderatorPrefix + moderator.ReasonOr(noReasonGiven),
		}
	}

	passes := 1
	if comedian.Passed() {
		passes++
	}
	if style.Passed() {
		passes++
	}

	switch passes {
	case 3:
		return models.Decision{Action: models.DecisionApproved, Reason: reasonAllApproved}
	case 2:
		return models.Decision{Action: models.DecisionApproved, Reason: reasonQuorum}
	}

	var reasons []string
	for _, f := range []struct {
		r Reviewer
		v models.ReviewerVerdict
	}{{Comedian, comedian}, {Style, style}} {
		if !f.v.Passed() {
			reasons = append(reasons, f.r.Title()+": "+f.v.ReasonOr(notApproved))
		}
	}
	return models.Decision{
		Action: models.DecisionRegenerate,
		Reason: strings.Join(reasons, reasonSeparator),
	}
}

// ParseVerdictArg parses a hand-written verdict of the form "pass" or
// "fail[:reason]", as accepted by the decide command and tool.
func ParseVerdictArg(s string) (models.ReviewerVerdict, error) {
	head, reason, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch strings.ToLower(strings.TrimSpace(head)) {
	case string(models.VerdictPass):
		return models.Pass(0), nil
	case string(models.VerdictFail):
		return models.Fail(strings.TrimSpace(reason), 0), nil
	}
	return models.ReviewerVerdict{}, fmt.Errorf("invalid verdict %q: want pass or fail[:reason]", s)
}
