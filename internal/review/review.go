// Package review implements the reviewer panel that judges a candidate roast
// and the decision engine that turns the three verdicts into approve/regenerate.
package review

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/rqc/internal/llm"
	"github.com/joescharf/rqc/internal/models"
)

// Config holds reviewer panel configuration.
type Config struct {
	CustomPromptEnabled bool
	Temperature         float64
	MaxTokens           int
	Model               string
	CentsPer1KTokens    float64
}

// DefaultConfig returns the default panel config, reading from viper when available.
func DefaultConfig() Config {
	temperature := viper.GetFloat64("review.temperature")
	if temperature <= 0 {
		temperature = 0.1
	}

	maxTokens := viper.GetInt("review.max_tokens")
	if maxTokens <= 0 {
		maxTokens = 120
	}

	rate := viper.GetFloat64("review.cents_per_1k_tokens")
	if rate <= 0 {
		rate = DefaultCentsPer1KTokens
	}

	return Config{
		CustomPromptEnabled: viper.GetBool("features.custom_prompt"),
		Temperature:         temperature,
		MaxTokens:           maxTokens,
		Model:               viper.GetString("review.model"),
		CentsPer1KTokens:    rate,
	}
}

// Reviewer identifies one of the three evaluators.
type Reviewer string

const (
	Moderator Reviewer = "moderator"
	Comedian  Reviewer = "comedian"
	Style     Reviewer = "style"
)

// Title returns the display name used in decision reasons.
func (r Reviewer) Title() string {
	switch r {
	case Moderator:
		return "Moderator"
	case Comedian:
		return "Comedian"
	case Style:
		return "Style"
	default:
		return string(r)
	}
}

// Panel runs the three reviewers against a backend.
type Panel struct {
	backend llm.Backend
	cfg     Config
	logger  *slog.Logger
}

// NewPanel creates a reviewer panel. A nil logger discards output.
func NewPanel(backend llm.Backend, cfg Config, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Panel{backend: backend, cfg: cfg, logger: logger}
}

// Evaluate runs a single reviewer. It never returns an error: backend
// failures are mapped to a failing verdict by the reviewer's default policy.
func (p *Panel) Evaluate(ctx context.Context, r Reviewer, original, candidate string, cfg *models.ReviewConfig) models.ReviewerVerdict {
	req := llm.Request{
		Instructions: systemPrompt(r),
		Input:        buildReviewerPrompt(r, original, candidate, cfg, p.cfg.CustomPromptEnabled),
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
		Model:        p.cfg.Model,
	}

	resp, err := p.backend.Generate(ctx, req)
	if err != nil {
		p.logger.Warn("reviewer backend call failed", "reviewer", string(r), "error", err)
		return onBackendError(r)
	}

	v := ParseVerdict(resp.Text)
	v.TokensUsed = resp.TokensUsed(req)
	return v
}

// onBackendError picks the defaulting policy for a reviewer whose backend call failed.
func onBackendError(r Reviewer) models.ReviewerVerdict {
	if r == Moderator {
		return failClosed()
	}
	return failSafe(r)
}

// failClosed is the moderator's policy: an unreachable compliance gate must
// never let content through, and its fail vote is a veto.
func failClosed() models.ReviewerVerdict {
	return models.Fail("moderation review unavailable", 0)
}

// failSafe is the quality reviewers' policy: a conservative fail vote that
// the quorum can still outvote.
func failSafe(r Reviewer) models.ReviewerVerdict {
	return models.Fail(string(r)+" review unavailable", 0)
}

// ParseVerdict reads a reviewer response. The first line decides: a leading
// FAIL token fails, otherwise it passes when it contains "pass"
// (case-insensitive). Anything else fails, with the rest of the response as
// the reason.
func ParseVerdict(text string) models.ReviewerVerdict {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)

	if !hasFailToken(first) && strings.Contains(strings.ToLower(first), "pass") {
		return models.Pass(0)
	}

	reason := strings.TrimSpace(rest)
	if reason == "" {
		reason = strings.TrimSpace(trimFailToken(first))
	}
	return models.Fail(reason, 0)
}

func hasFailToken(line string) bool {
	return len(line) >= 4 && strings.EqualFold(line[:4], "fail")
}

// trimFailToken strips a leading FAIL marker and punctuation from a one-line verdict.
func trimFailToken(line string) string {
	if hasFailToken(line) {
		line = line[4:]
	}
	return strings.TrimLeft(line, " :-.")
}

// Review runs all three reviewers concurrently, waits for every one of them,
// and aggregates the verdicts.
func (p *Panel) Review(ctx context.Context, original, candidate string, cfg *models.ReviewConfig) *models.ReviewOutcome {
	start := time.Now()

	reviewers := [3]Reviewer{Moderator, Comedian, Style}
	var verdicts [3]models.ReviewerVerdict

	var g errgroup.Group
	for i, r := range reviewers {
		g.Go(func() error {
			verdicts[i] = p.Evaluate(ctx, r, original, candidate, cfg)
			return nil
		})
	}
	_ = g.Wait()

	moderator, comedian, style := verdicts[0], verdicts[1], verdicts[2]
	decision := Decide(moderator, comedian, style)
	tokens := moderator.TokensUsed + comedian.TokensUsed + style.TokensUsed

	outcome := &models.ReviewOutcome{
		ModeratorPass:    moderator.Passed(),
		ModeratorReason:  moderator.Reason,
		ComedianPass:     comedian.Passed(),
		ComedianReason:   comedian.Reason,
		StylePass:        style.Passed(),
		StyleReason:      style.Reason,
		Decision:         decision.Action,
		DecisionReason:   decision.Reason,
		ReviewDurationMs: time.Since(start).Milliseconds(),
		TokensUsed:       tokens,
		CostCents:        CostCents(tokens, p.cfg.CentsPer1KTokens),
	}

	p.logger.Debug("panel review complete",
		"decision", string(outcome.Decision),
		"moderator", moderator.Verdict,
		"comedian", comedian.Verdict,
		"style", style.Verdict,
		"duration_ms", outcome.ReviewDurationMs,
	)
	return outcome
}
