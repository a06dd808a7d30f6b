package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/rqc/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; concurrent review cycles
	// recording telemetry are serialized through the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Review configs ---

const reviewConfigColumns = `id, user_id, plan, tone, custom_style_prompt, max_regenerations, rqc_enabled, created_at, updated_at`

func scanReviewConfig(row interface{ Scan(...any) error }) (*models.ReviewConfig, error) {
	c := &models.ReviewConfig{}
	var plan, tone string
	err := row.Scan(&c.ID, &c.UserID, &plan, &tone, &c.CustomStylePrompt, &c.MaxRegenerations, &c.RQCEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Plan = models.Plan(plan)
	c.Tone = models.Tone(tone)
	return c, nil
}

func (s *SQLiteStore) GetReviewConfig(ctx context.Context, userID string) (*models.ReviewConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewConfigColumns+` FROM review_configs WHERE user_id = ?`, userID)
	c, err := scanReviewConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review config for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review config: %w", err)
	}
	return c, nil
}

// UpsertReviewConfig inserts or replaces the config for cfg.UserID. The row
// id and creation time of an existing config are preserved.
func (s *SQLiteStore) UpsertReviewConfig(ctx context.Context, cfg *models.ReviewConfig) error {
	if cfg.UserID == "" {
		return fmt.Errorf("upsert review config: user id is required")
	}
	if cfg.MaxRegenerations < 0 {
		return fmt.Errorf("upsert review config: max regenerations must be >= 0 (got %d)", cfg.MaxRegenerations)
	}
	if cfg.ID == "" {
		cfg.ID = newULID()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_configs (`+reviewConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan=excluded.plan, tone=excluded.tone, custom_style_prompt=excluded.custom_style_prompt,
			max_regenerations=excluded.max_regenerations, rqc_enabled=excluded.rqc_enabled,
			updated_at=excluded.updated_at`,
		cfg.ID, cfg.UserID, string(cfg.Plan), string(cfg.Tone), cfg.CustomStylePrompt,
		cfg.MaxRegenerations, boolToInt(cfg.RQCEnabled), cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert review config: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM review_configs WHERE user_id = ?`, cfg.UserID,
	).Scan(&cfg.ID, &cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("reload review config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReviewConfigs(ctx context.Context, plan models.Plan) ([]*models.ReviewConfig, error) {
	query := `SELECT ` + reviewConfigColumns + ` FROM review_configs`
	var args []any
	if plan != "" {
		query += ` WHERE plan = ?`
		args = append(args, string(plan))
	}
	query += ` ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []*models.ReviewConfig
	for rows.Next() {
		c, err := scanReviewConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) DeleteReviewConfig(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM review_configs WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete review config: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review config for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// --- Telemetry ---

// Record stores one telemetry record. It satisfies orchestrator.TelemetrySink.
func (s *SQLiteStore) Record(ctx context.Context, rec *models.TelemetryRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry (id, cycle_id, user_id, plan, attempt_number, method, approved, decision, decision_reason,
			tokens_used, cost_cents, review_duration_ms, processing_time_ms, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CycleID, rec.UserID, string(rec.Plan), rec.AttemptNumber, string(rec.Method),
		boolToInt(rec.Approved), string(rec.Decision), rec.DecisionReason,
		rec.TokensUsed, rec.CostCents, rec.ReviewDurationMs, rec.ProcessingTimeMs, rec.Error, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record telemetry: %w", err)
	}
	return nil
}

// whereClause builds the WHERE clause shared by telemetry queries.
func (f TelemetryFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Method != "" {
		conds = append(conds, "method = ?")
		args = append(args, string(f.Method))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) ListTelemetry(ctx context.Context, filter TelemetryFilter) ([]*models.TelemetryRecord, error) {
	where, args := filter.whereClause()
	query := `SELECT id, cycle_id, user_id, plan, attempt_number, method, approved, decision, decision_reason,
		tokens_used, cost_cents, review_duration_ms, processing_time_ms, error, recorded_at
		FROM telemetry` + where + ` ORDER BY recorded_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.TelemetryRecord
	for rows.Next() {
		r := &models.TelemetryRecord{}
		var plan, method, decision string
		if err := rows.Scan(&r.ID, &r.CycleID, &r.UserID, &plan, &r.AttemptNumber, &method, &r.Approved,
			&decision, &r.DecisionReason, &r.TokensUsed, &r.CostCents, &r.ReviewDurationMs, &r.ProcessingTimeMs,
			&r.Error, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		r.Plan = models.Plan(plan)
		r.Method = models.Method(method)
		r.Decision = models.DecisionAction(decision)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) TelemetrySummary(ctx context.Context, filter TelemetryFilter) (*models.TelemetrySummary, error) {
	where, args := filter.whereClause()
	sum := &models.TelemetrySummary{ByMethod: make(map[models.Method]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(approved), 0), COALESCE(AVG(tokens_used), 0), COALESCE(AVG(cost_cents), 0),
			COALESCE(SUM(cost_cents), 0), COALESCE(AVG(processing_time_ms), 0), COALESCE(AVG(review_duration_ms), 0)
		FROM telemetry`+where, args...,
	).Scan(&sum.Cycles, &sum.Approved, &sum.AvgTokens, &sum.AvgCostCents, &sum.TotalCostCents, &sum.AvgProcessingMs, &sum.AvgReviewMs)
	if err != nil {
		return nil, fmt.Errorf("summarize telemetry: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT method, COUNT(*) FROM telemetry`+where+` GROUP BY method`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize telemetry by method: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, fmt.Errorf("scan telemetry summary: %w", err)
		}
		sum.ByMethod[models.Method(method)] = n
	}
	return sum, rows.Err()
}
