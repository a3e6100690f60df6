// Package services – CleanupService
//
// This file implements the retention janitor: an externally-triggered daily
// pass that purges completed uploads (items cascade with them) and audit
// entries older than the configured retention window.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// CleanupResult reports what one retention pass removed.
type CleanupResult struct {
	UploadsDeleted int64     `json:"uploads_deleted"`
	RunLogsDeleted int64     `json:"run_logs_deleted"`
	Cutoff         time.Time `json:"cutoff"`
}

// CleanupService purges data past the retention window.
type CleanupService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// RetentionDays is the age threshold for purging.
	RetentionDays int

	// Now is a clock seam for tests.
	Now func() time.Time
}

// Run executes one retention pass.
func (s *CleanupService) Run(ctx context.Context) (*CleanupResult, error) {
	tr := otel.Tracer("services/CleanupService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(attribute.Int("retention_days", s.RetentionDays)),
	)
	defer span.End()

	days := s.RetentionDays
	if days <= 0 {
		days = 45
	}
	cutoff := s.now().AddDate(0, 0, -days)

	uploads, err := repo.DeleteCompletedUploadsBefore(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}
	logs, err := repo.DeleteRunLogsBefore(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Time("cutoff", cutoff).
		Int64("uploads_deleted", uploads).
		Int64("run_logs_deleted", logs).
		Msg("retention pass finished")

	if err := repo.InsertRunLog(ctx, s.DB, &domain.RunLog{
		WorkspaceHash: "",
		Phase:         domain.PhaseCleanup,
		Level:         domain.LevelInfo,
		Message:       "retention pass finished",
		Code:          int(uploads + logs),
	}); err != nil {
		s.Log.Warn().Err(err).Msg("run log write failed")
	}

	return &CleanupResult{
		UploadsDeleted: uploads,
		RunLogsDeleted: logs,
		Cutoff:         cutoff,
	}, nil
}

func (s *CleanupService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
