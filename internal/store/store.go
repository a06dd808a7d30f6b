package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/rqc/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TelemetryFilter specifies filters for listing telemetry records.
type TelemetryFilter struct {
	UserID string
	Method models.Method
	Since  time.Time
	Limit  int
}

// Store defines the persistence interface for rqc.
type Store interface {
	// Review configs (the plan/config source)
	GetReviewConfig(ctx context.Context, userID string) (*models.ReviewConfig, error)
	UpsertReviewConfig(ctx context.Context, cfg *models.ReviewConfig) error
	ListReviewConfigs(ctx context.Context, plan models.Plan) ([]*models.ReviewConfig, error)
	DeleteReviewConfig(ctx context.Context, userID string) error

	// Telemetry (the telemetry sink)
	Record(ctx context.Context, rec *models.TelemetryRecord) error
	ListTelemetry(ctx context.Context, filter TelemetryFilter) ([]*models.TelemetryRecord, error)
	TelemetrySummary(ctx context.Context, filter TelemetryFilter) (*models.TelemetrySummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
