package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/output"
	"github.com/joescharf/rqc/internal/store"
)

// captureUI points the shared UI at buffers and returns them.
func captureUI(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	ui = &output.UI{Out: out, ErrOut: errOut}
	return out, errOut
}

// testCmd returns a command carrying a background context, with the
// given command's flags so Changed() works.
func testCmd(flags *cobra.Command) *cobra.Command {
	c := &cobra.Command{}
	if flags != nil {
		c.Flags().AddFlagSet(flags.Flags())
	}
	c.SetContext(context.Background())
	return c
}

func TestDecideRun(t *testing.T) {
	testEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"all pass", []string{"pass", "pass", "pass"}, "All 3 reviewers approved"},
		{"quorum", []string{"pass", "fail:flat", "pass"}, "2 of 3 reviewers approved"},
		{"veto", []string{"fail:hateful", "pass", "pass"}, "Moderator rejected: hateful"},
		{"both fail", []string{"pass", "fail:flat", "fail"}, "Comedian: flat; Style: did not approve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := captureUI(t)
			require.NoError(t, decideRun(tt.args))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestDecideRun_JSON(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)
	decideJSON = true
	t.Cleanup(func() { decideJSON = false })

	require.NoError(t, decideRun([]string{"fail", "pass", "pass"}))

	var d models.Decision
	require.NoError(t, json.Unmarshal(out.Bytes(), &d))
	assert.Equal(t, models.DecisionRegenerate, d.Action)
	assert.Equal(t, "Moderator rejected: no reason given", d.Reason)
}

func TestDecideRun_InvalidVerdict(t *testing.T) {
	testEnv(t)
	captureUI(t)

	err := decideRun([]string{"pass", "maybe", "pass"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comedian")
}

func TestPlanLifecycle(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)

	planTone = "harsh"
	t.Cleanup(func() { planTone = string(models.ToneBalanced) })
	require.NoError(t, planSetRun(testCmd(nil), "alice", "plus"))
	assert.Contains(t, out.String(), "alice")

	s, err := getStore()
	require.NoError(t, err)
	cfg, err := s.GetReviewConfig(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPlus, cfg.Plan)
	assert.Equal(t, models.ToneHarsh, cfg.Tone)
	assert.Equal(t, 2, cfg.MaxRegenerations)
	assert.True(t, cfg.RQCEnabled)

	out.Reset()
	require.NoError(t, planShowRun(testCmd(nil), "alice"))
	assert.Contains(t, out.String(), "intensity 5/5")

	out.Reset()
	require.NoError(t, planListRun(testCmd(nil)))
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "plus")

	require.NoError(t, planDeleteRun(testCmd(nil), "alice"))
	_, err = s.GetReviewConfig(context.Background(), "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlanSetRun_Overrides(t *testing.T) {
	testEnv(t)
	captureUI(t)

	cmd := testCmd(planSetCmd)
	require.NoError(t, cmd.Flags().Set("max-regenerations", "0"))
	require.NoError(t, cmd.Flags().Set("rqc", "false"))
	t.Cleanup(func() {
		planMaxRegenerations, planRQC = 0, false
		planSetCmd.Flags().Lookup("max-regenerations").Changed = false
		planSetCmd.Flags().Lookup("rqc").Changed = false
	})

	require.NoError(t, planSetRun(cmd, "bob", "custom"))

	s, err := getStore()
	require.NoError(t, err)
	cfg, err := s.GetReviewConfig(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRegenerations)
	assert.False(t, cfg.RQCEnabled)
}

func TestPlanSetRun_Validation(t *testing.T) {
	testEnv(t)
	captureUI(t)

	assert.Error(t, planSetRun(testCmd(nil), "alice", "platinum"))

	planTone = "savage"
	t.Cleanup(func() { planTone = string(models.ToneBalanced) })
	assert.Error(t, planSetRun(testCmd(nil), "alice", "pro"))
}

func TestPlanShowRun_Defaults(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)

	require.NoError(t, planShowRun(testCmd(nil), "nobody"))
	assert.Contains(t, out.String(), "starter_trial")
}

func TestPlanDeleteRun_NotFound(t *testing.T) {
	testEnv(t)
	captureUI(t)

	err := planDeleteRun(testCmd(nil), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func seedTelemetry(t *testing.T) {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	for _, r := range []*models.TelemetryRecord{
		{CycleID: "c1", UserID: "alice", Plan: models.PlanPlus, AttemptNumber: 1, Method: models.MethodFullRQC,
			Approved: true, Decision: models.DecisionApproved, DecisionReason: "All 3 reviewers approved (moderator, comedian, style)",
			TokensUsed: 200, CostCents: 0.04},
		{CycleID: "c2", UserID: "bob", Plan: models.PlanPro, AttemptNumber: 1, Method: models.MethodFallbackOnError,
			TokensUsed: 10, CostCents: 0.01, Error: "backend down"},
	} {
		require.NoError(t, s.Record(context.Background(), r))
	}
}

func TestReportRun_Formats(t *testing.T) {
	testEnv(t)
	seedTelemetry(t)
	t.Cleanup(func() { reportFormat, reportUser = "table", "" })

	t.Run("table", func(t *testing.T) {
		out, _ := captureUI(t)
		reportFormat = "table"
		require.NoError(t, reportRun(testCmd(nil)))
		assert.Contains(t, out.String(), "Approval rate")
		assert.Contains(t, out.String(), "backend down")
	})

	t.Run("json", func(t *testing.T) {
		out, _ := captureUI(t)
		reportFormat = "json"
		require.NoError(t, reportRun(testCmd(nil)))

		var got struct {
			Summary      models.TelemetrySummary   `json:"summary"`
			ApprovalRate float64                   `json:"approval_rate"`
			Records      []*models.TelemetryRecord `json:"records"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, 2, got.Summary.Cycles)
		assert.InDelta(t, 0.5, got.ApprovalRate, 0.0001)
		assert.Len(t, got.Records, 2)
	})

	t.Run("csv", func(t *testing.T) {
		out, _ := captureUI(t)
		reportFormat = "csv"
		require.NoError(t, reportRun(testCmd(nil)))

		rows, err := csv.NewReader(out).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 3)
		assert.Equal(t, "ID", rows[0][0])
	})

	t.Run("markdown filtered by user", func(t *testing.T) {
		out, _ := captureUI(t)
		reportFormat = "markdown"
		reportUser = "alice"
		require.NoError(t, reportRun(testCmd(nil)))
		assert.Contains(t, out.String(), "# Review Report")
		assert.Contains(t, out.String(), "- Cycles: 1")
		assert.NotContains(t, out.String(), "bob")
	})

	t.Run("unknown", func(t *testing.T) {
		captureUI(t)
		reportFormat = "xml"
		assert.Error(t, reportRun(testCmd(nil)))
	})
}

func TestReportRun_Empty(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)
	reportFormat = "table"

	require.NoError(t, reportRun(testCmd(nil)))
	assert.Contains(t, out.String(), "No review cycles")
}

func TestPrintAttempt_FallbackWarnings(t *testing.T) {
	testEnv(t)

	tests := []struct {
		name string
		att  *models.GenerationAttempt
		want string
	}{
		{"approved", &models.GenerationAttempt{Method: models.MethodFullRQC, Approved: true}, ""},
		{"after rqc", &models.GenerationAttempt{Method: models.MethodFallbackAfterRQC}, "regeneration budget"},
		{"on error", &models.GenerationAttempt{Method: models.MethodFallbackOnError, Error: "context deadline exceeded"}, "Fell back after error: context deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut := captureUI(t)
			printAttempt(tt.att)
			if tt.want == "" {
				assert.Empty(t, errOut.String())
				return
			}
			assert.Contains(t, errOut.String(), tt.want)
		})
	}
}

func TestInitDeps_LogLevel(t *testing.T) {
	testEnv(t)
	t.Cleanup(func() { verbose = false })

	viper.Set("log.level", "warn")
	initDeps()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	verbose = true
	initDeps()
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewBackend(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := newBackend(context.Background())
	assert.ErrorIs(t, err, errNoAPIKey)

	viper.Set("backend.provider", "gemini")
	_, err = newBackend(context.Background())
	assert.ErrorIs(t, err, errNoAPIKey)

	viper.Set("backend.provider", "openai")
	_, err = newBackend(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend provider")

	viper.Set("backend.provider", "anthropic")
	viper.Set("anthropic.api_key", "test-key")
	b, err := newBackend(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
