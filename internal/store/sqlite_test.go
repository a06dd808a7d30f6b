package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rqc/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)

	err := s.Migrate(context.Background())
	assert.NoError(t, err)
}

// --- Review configs ---

func TestReviewConfigCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := &models.ReviewConfig{
		UserID:            "user-1",
		Plan:              models.PlanPlus,
		Tone:              models.ToneHarsh,
		CustomStylePrompt: "dry British wit",
		MaxRegenerations:  2,
		RQCEnabled:        true,
	}
	require.NoError(t, s.UpsertReviewConfig(ctx, cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.False(t, cfg.CreatedAt.IsZero())

	got, err := s.GetReviewConfig(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, models.PlanPlus, got.Plan)
	assert.Equal(t, models.ToneHarsh, got.Tone)
	assert.Equal(t, "dry British wit", got.CustomStylePrompt)
	assert.Equal(t, 2, got.MaxRegenerations)
	assert.True(t, got.RQCEnabled)

	// Update keeps id
	originalID := cfg.ID
	update := &models.ReviewConfig{
		UserID:           "user-1",
		Plan:             models.PlanPro,
		Tone:             models.ToneGentle,
		MaxRegenerations: 1,
	}
	require.NoError(t, s.UpsertReviewConfig(ctx, update))
	assert.Equal(t, originalID, update.ID)

	got, err = s.GetReviewConfig(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, got.Plan)
	assert.Equal(t, models.ToneGentle, got.Tone)
	assert.Empty(t, got.CustomStylePrompt)
	assert.False(t, got.RQCEnabled)

	// Delete
	require.NoError(t, s.DeleteReviewConfig(ctx, "user-1"))
	_, err = s.GetReviewConfig(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReviewConfig_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetReviewConfig(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReviewConfig_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteReviewConfig(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertReviewConfig_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertReviewConfig(ctx, &models.ReviewConfig{Plan: models.PlanPro})
	assert.Error(t, err)

	err = s.UpsertReviewConfig(ctx, &models.ReviewConfig{UserID: "u", MaxRegenerations: -1})
	assert.Error(t, err)
}

func TestListReviewConfigs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []*models.ReviewConfig{
		{UserID: "carol", Plan: models.PlanPlus, Tone: models.ToneBalanced},
		{UserID: "alice", Plan: models.PlanPro, Tone: models.ToneBalanced},
		{UserID: "bob", Plan: models.PlanPlus, Tone: models.ToneHarsh},
	} {
		require.NoError(t, s.UpsertReviewConfig(ctx, c))
	}

	all, err := s.ListReviewConfigs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].UserID)
	assert.Equal(t, "carol", all[2].UserID)

	plus, err := s.ListReviewConfigs(ctx, models.PlanPlus)
	require.NoError(t, err)
	require.Len(t, plus, 2)
	assert.Equal(t, "bob", plus[0].UserID)

	none, err := s.ListReviewConfigs(ctx, models.PlanCustom)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- Telemetry ---

func TestRecordAndListTelemetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	records := []*models.TelemetryRecord{
		{CycleID: "c1", UserID: "alice", Plan: models.PlanPlus, AttemptNumber: 1, Method: models.MethodFullRQC,
			Approved: true, Decision: models.DecisionApproved, TokensUsed: 120, CostCents: 0.03, Timestamp: base},
		{CycleID: "c2", UserID: "bob", Plan: models.PlanPro, AttemptNumber: 1, Method: models.MethodBasicModeration,
			Approved: true, TokensUsed: 40, CostCents: 0.01, Timestamp: base.Add(time.Minute)},
		{CycleID: "c3", UserID: "alice", Plan: models.PlanPlus, AttemptNumber: 3, Method: models.MethodFallbackAfterRQC,
			Decision: models.DecisionRegenerate, DecisionReason: "Comedian: flat", TokensUsed: 400, CostCents: 0.08,
			Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, s.Record(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	all, err := s.ListTelemetry(ctx, TelemetryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c3", all[0].CycleID, "newest first")
	assert.Equal(t, models.MethodFallbackAfterRQC, all[0].Method)
	assert.Equal(t, models.DecisionRegenerate, all[0].Decision)
	assert.Equal(t, "Comedian: flat", all[0].DecisionReason)
	assert.InDelta(t, 0.08, all[0].CostCents, 0.0001)

	alice, err := s.ListTelemetry(ctx, TelemetryFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	basic, err := s.ListTelemetry(ctx, TelemetryFilter{Method: models.MethodBasicModeration})
	require.NoError(t, err)
	require.Len(t, basic, 1)
	assert.Equal(t, "bob", basic[0].UserID)

	limited, err := s.ListTelemetry(ctx, TelemetryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &models.TelemetryRecord{CycleID: "c1", Method: models.MethodFallbackOnError, Error: "backend down"}
	require.NoError(t, s.Record(ctx, rec))
	assert.False(t, rec.Timestamp.IsZero())

	got, err := s.ListTelemetry(ctx, TelemetryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "backend down", got[0].Error)
}

func TestTelemetrySummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, r := range []*models.TelemetryRecord{
		{CycleID: "c1", UserID: "alice", Method: models.MethodFullRQC, Approved: true, TokensUsed: 100, CostCents: 0.02, ProcessingTimeMs: 200},
		{CycleID: "c2", UserID: "alice", Method: models.MethodFullRQC, Approved: true, TokensUsed: 300, CostCents: 0.06, ProcessingTimeMs: 400},
		{CycleID: "c3", UserID: "bob", Method: models.MethodFallbackOnError, TokensUsed: 20, CostCents: 0.01},
	} {
		require.NoError(t, s.Record(ctx, r))
	}

	sum, err := s.TelemetrySummary(ctx, TelemetryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Cycles)
	assert.Equal(t, 2, sum.Approved)
	assert.Equal(t, 2, sum.ByMethod[models.MethodFullRQC])
	assert.Equal(t, 1, sum.ByMethod[models.MethodFallbackOnError])
	assert.InDelta(t, 0.09, sum.TotalCostCents, 0.0001)
	assert.InDelta(t, 140.0, sum.AvgTokens, 0.0001)

	aliceSum, err := s.TelemetrySummary(ctx, TelemetryFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, aliceSum.Cycles)
	assert.InDelta(t, 300.0, aliceSum.AvgProcessingMs, 0.0001)
	assert.InDelta(t, 1.0, aliceSum.ApprovalRate(), 0.0001)
}

func TestTelemetrySummary_Empty(t *testing.T) {
	s := newTestStore(t)

	sum, err := s.TelemetrySummary(context.Background(), TelemetryFilter{})
	require.NoError(t, err)
	assert.Zero(t, sum.Cycles)
	assert.Empty(t, sum.ByMethod)
	assert.Zero(t, sum.ApprovalRate())
}

func TestRecord_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Record(ctx, &models.TelemetryRecord{CycleID: "c", AttemptNumber: i + 1, Method: models.MethodFullRQC})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.ListTelemetry(ctx, TelemetryFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
