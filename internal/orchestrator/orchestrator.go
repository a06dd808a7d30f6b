// Package orchestrator drives one roast review cycle: it routes the user to
// basic moderation or the full reviewer panel, regenerates rejected
// candidates within the plan's budget, and always falls back to a safe reply.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/joescharf/rqc/internal/llm"
	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/review"
)

// ErrEmptyCandidate is returned when the backend produced only whitespace.
var ErrEmptyCandidate = errors.New("backend returned an empty candidate")

// ConfigSource resolves a user's review configuration.
type ConfigSource interface {
	GetReviewConfig(ctx context.Context, userID string) (*models.ReviewConfig, error)
}

// TelemetrySink accepts one record per review cycle.
type TelemetrySink interface {
	Record(ctx context.Context, rec *models.TelemetryRecord) error
}

// Reviewer runs the reviewer panel over one candidate. *review.Panel implements it.
type Reviewer interface {
	Review(ctx context.Context, original, candidate string, cfg *models.ReviewConfig) *models.ReviewOutcome
}

// Options holds orchestrator settings that are global rather than per user.
type Options struct {
	RQCEnabled          bool // global switch for the full reviewer panel
	CustomPromptEnabled bool
	CycleTimeout        time.Duration // 0 means no deadline
	FallbackTimeout     time.Duration
	TelemetryTimeout    time.Duration // bounds one sink write, 0 means none
	CentsPer1KTokens    float64
	PlanModels          map[models.Plan]string
}

// DefaultOptions returns orchestrator options read from viper.
func DefaultOptions() Options {
	fallbackTimeout := viper.GetDuration("orchestrator.fallback_timeout")
	if fallbackTimeout <= 0 {
		fallbackTimeout = 15 * time.Second
	}

	telemetryTimeout := viper.GetDuration("orchestrator.telemetry_timeout")
	if telemetryTimeout <= 0 {
		telemetryTimeout = 5 * time.Second
	}

	rate := viper.GetFloat64("review.cents_per_1k_tokens")
	if rate <= 0 {
		rate = review.DefaultCentsPer1KTokens
	}

	planModels := make(map[models.Plan]string)
	for plan, model := range viper.GetStringMapString("plan_models") {
		if model != "" {
			planModels[models.Plan(plan)] = model
		}
	}

	return Options{
		RQCEnabled:          viper.GetBool("features.rqc"),
		CustomPromptEnabled: viper.GetBool("features.custom_prompt"),
		CycleTimeout:        viper.GetDuration("orchestrator.cycle_timeout"),
		FallbackTimeout:     fallbackTimeout,
		TelemetryTimeout:    telemetryTimeout,
		CentsPer1KTokens:    rate,
		PlanModels:          planModels,
	}
}

// Request asks for a reviewed reply to one piece of user-facing text.
type Request struct {
	UserID string
	Text   string
}

// Orchestrator runs review cycles. It holds no per-cycle state and is safe
// for concurrent use.
type Orchestrator struct {
	backend llm.Backend
	panel   Reviewer
	configs ConfigSource
	sink    TelemetrySink
	opts    Options
	logger  *slog.Logger
}

// New creates an orchestrator. panel, configs, sink and logger may be nil:
// without a panel every cycle takes the basic moderation path, and without
// a config source every user gets the default config.
func New(backend llm.Backend, panel Reviewer, configs ConfigSource, sink TelemetrySink, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		backend: backend,
		panel:   panel,
		configs: configs,
		sink:    sink,
		opts:    opts,
		logger:  logger,
	}
}

// cycle carries the state of a single review cycle.
type cycle struct {
	id     string
	userID string
	text   string
	start  time.Time
	cfg    *models.ReviewConfig
	tokens int
	logger *slog.Logger
}

// Generate runs one full review cycle. It never fails: the worst case is an
// unapproved fallback reply with the cause recorded in Error.
func (o *Orchestrator) Generate(ctx context.Context, req Request) *models.GenerationAttempt {
	c := &cycle{
		id:     uuid.NewString(),
		userID: req.UserID,
		text:   req.Text,
		start:  time.Now(),
	}
	c.logger = o.logger.With("cycle_id", c.id, "user_id", req.UserID)

	if o.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.CycleTimeout)
		defer cancel()
	}

	c.cfg = o.route(ctx, req.UserID, c.logger)

	var att *models.GenerationAttempt
	if o.fullReviewEnabled(c.cfg) {
		c.logger.Info("using full review panel", "plan", c.cfg.Plan, "max_regenerations", c.cfg.MaxRegenerations)
		att = o.fullRQC(ctx, c)
	} else {
		c.logger.Info("using basic moderation", "plan", c.cfg.Plan)
		att = o.basicModeration(ctx, c)
	}

	o.finish(c, att)
	o.emit(ctx, c, att)
	return att
}

// route fetches the user's config, substituting the conservative default on failure.
func (o *Orchestrator) route(ctx context.Context, userID string, logger *slog.Logger) *models.ReviewConfig {
	if o.configs == nil {
		return models.DefaultReviewConfig(userID)
	}

	cfg, err := o.configs.GetReviewConfig(ctx, userID)
	if err != nil || cfg == nil {
		logger.Warn("review config unavailable, using default", "error", err)
		return models.DefaultReviewConfig(userID)
	}

	cp := *cfg
	if cp.UserID == "" {
		cp.UserID = userID
	}
	if cp.MaxRegenerations < 0 {
		cp.MaxRegenerations = 0
	}
	if !cp.Tone.Valid() {
		cp.Tone = models.ToneBalanced
	}
	return &cp
}

func (o *Orchestrator) fullReviewEnabled(cfg *models.ReviewConfig) bool {
	return o.panel != nil && o.opts.RQCEnabled && cfg.RQCEnabled
}

// basicModeration issues a single generation with compliance rules embedded
// in the instructions. The panel does not run.
func (o *Orchestrator) basicModeration(ctx context.Context, c *cycle) *models.GenerationAttempt {
	text, err := o.generate(ctx, c, basicModerationRequest(c.cfg, c.text, o.modelFor(c.cfg)))
	if err != nil {
		return o.fallbackOnError(ctx, c, 1, err, nil)
	}
	return &models.GenerationAttempt{
		AttemptNumber: 1,
		TotalAttempts: 1,
		Method:        models.MethodBasicModeration,
		CandidateText: text,
		Approved:      true,
	}
}

// fullRQC generates and reviews up to MaxRegenerations+1 candidates. Each
// regeneration is a fresh candidate informed by the previous rejection.
func (o *Orchestrator) fullRQC(ctx context.Context, c *cycle) *models.GenerationAttempt {
	maxAttempts := c.cfg.MaxRegenerations + 1
	model := o.modelFor(c.cfg)

	var last *models.ReviewOutcome
	var feedback string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req := advancedRequest(c.cfg, c.text, feedback, model, o.opts.CustomPromptEnabled)
		candidate, err := o.generate(ctx, c, req)
		if err != nil {
			return o.fallbackOnError(ctx, c, attempt, err, last)
		}

		outcome := o.panel.Review(ctx, c.text, candidate, c.cfg)
		c.tokens += outcome.TokensUsed
		last = outcome

		// A deadline hit mid-review shows up as fail-closed verdicts.
		if !outcome.Approved() {
			if err := ctx.Err(); err != nil {
				return o.fallbackOnError(ctx, c, attempt, err, outcome)
			}
		}

		if outcome.Approved() {
			c.logger.Info("candidate approved",
				"attempt", attempt,
				"reason", outcome.DecisionReason,
			)
			return &models.GenerationAttempt{
				AttemptNumber: attempt,
				TotalAttempts: attempt,
				Method:        models.MethodFullRQC,
				CandidateText: candidate,
				Approved:      true,
				Outcome:       outcome,
			}
		}

		c.logger.Info("candidate rejected",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"reason", outcome.DecisionReason,
		)
		feedback = outcome.DecisionReason
	}

	c.logger.Warn("regeneration budget exhausted, using fallback", "attempts", maxAttempts)
	text, err := o.fallback(ctx, c)
	att := &models.GenerationAttempt{
		AttemptNumber: maxAttempts,
		TotalAttempts: maxAttempts,
		Method:        models.MethodFallbackAfterRQC,
		CandidateText: text,
		Approved:      false,
		Outcome:       last,
	}
	if err != nil {
		att.Error = "fallback generation: " + err.Error()
	}
	return att
}

// fallbackOnError handles a generation backend failure or an expired cycle deadline.
func (o *Orchestrator) fallbackOnError(ctx context.Context, c *cycle, attempt int, cause error, last *models.ReviewOutcome) *models.GenerationAttempt {
	c.logger.Error("cycle failed, using fallback", "attempt", attempt, "error", cause)

	msg := cause.Error()
	text, err := o.fallback(ctx, c)
	if err != nil {
		msg += "; fallback generation: " + err.Error()
	}
	return &models.GenerationAttempt{
		AttemptNumber: attempt,
		TotalAttempts: attempt,
		Method:        models.MethodFallbackOnError,
		CandidateText: text,
		Approved:      false,
		Outcome:       last,
		Error:         msg,
	}
}

// fallback issues one generation with the safe template. It runs outside the
// cycle deadline so a timed-out cycle can still produce a reply, and returns
// the static reply if the backend fails again.
func (o *Orchestrator) fallback(ctx context.Context, c *cycle) (string, error) {
	fctx := context.WithoutCancel(ctx)
	if o.opts.FallbackTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, o.opts.FallbackTimeout)
		defer cancel()
	}

	text, err := o.generate(fctx, c, fallbackRequest(c.text, o.modelFor(c.cfg)))
	if err != nil {
		c.logger.Error("fallback generation failed, using static reply", "error", err)
		return StaticFallback, err
	}
	return text, nil
}

// generate performs one backend call and accounts its tokens to the cycle.
func (o *Orchestrator) generate(ctx context.Context, c *cycle, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := o.backend.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	c.tokens += resp.TokensUsed(req)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyCandidate
	}
	return text, nil
}

func (o *Orchestrator) modelFor(cfg *models.ReviewConfig) string {
	return o.opts.PlanModels[cfg.Plan]
}

// finish stamps the cycle-wide totals onto the returned attempt.
func (o *Orchestrator) finish(c *cycle, att *models.GenerationAttempt) {
	att.CycleID = c.id
	att.Plan = c.cfg.Plan
	att.TokensUsed = c.tokens
	att.CostCents = review.CostCents(c.tokens, o.opts.CentsPer1KTokens)
	att.ProcessingTimeMs = time.Since(c.start).Milliseconds()
}

// emit hands the cycle's telemetry to the sink, detached from the cycle
// deadline but bounded by TelemetryTimeout. Failures are logged only.
func (o *Orchestrator) emit(ctx context.Context, c *cycle, att *models.GenerationAttempt) {
	if o.sink == nil {
		return
	}

	rec := &models.TelemetryRecord{
		CycleID:          c.id,
		UserID:           c.userID,
		Plan:             att.Plan,
		AttemptNumber:    att.AttemptNumber,
		Method:           att.Method,
		Approved:         att.Approved,
		TokensUsed:       att.TokensUsed,
		CostCents:        att.CostCents,
		ProcessingTimeMs: att.ProcessingTimeMs,
		Error:            att.Error,
		Timestamp:        time.Now().UTC(),
	}
	if att.Outcome != nil {
		rec.Decision = att.Outcome.Decision
		rec.DecisionReason = att.Outcome.DecisionReason
		rec.ReviewDurationMs = att.Outcome.ReviewDurationMs
	}

	sctx := context.WithoutCancel(ctx)
	if o.opts.TelemetryTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, o.opts.TelemetryTimeout)
		defer cancel()
	}

	if err := o.sink.Record(sctx, rec); err != nil {
		c.logger.Warn("record telemetry", "error", err)
	}
}
