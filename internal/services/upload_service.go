// Package services – UploadService
//
// This file implements UploadService, the application-level component that
// owns the lifecycle of bulk-import jobs. It enforces the account quota at
// intake, creates the upload with its items atomically (rolling back the
// upload row when the bulk item insert fails), and exposes cancellation,
// retry-failed, listing, and detail views scoped to one workspace.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// ImportRow is one parsed spreadsheet row accepted into an upload.
type ImportRow struct {
	ChatNumber string
	Name       string
	Text       string
	UserID     string
	DialogID   string
}

// UploadDetail is the per-upload view returned to the owning workspace.
type UploadDetail struct {
	Upload      *domain.Upload      `json:"upload"`
	Items       []domain.UploadItem `json:"items"`
	StateCounts map[string]int      `json:"state_counts"`
}

// UploadService coordinates upload intake and user-facing upload actions.
type UploadService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Workspaces supplies quota checks at intake time.
	Workspaces *WorkspaceService

	// DetailItems bounds the item list in the detail view.
	DetailItems int
	// ListLimit bounds the workspace upload listing.
	ListLimit int

	// Now is a clock seam for tests.
	Now func() time.Time
}

// NewUploadService constructs an UploadService with default view limits.
func NewUploadService(db *gorm.DB, log zerolog.Logger, workspaces *WorkspaceService) *UploadService {
	return &UploadService{
		DB:          db,
		Log:         log,
		Workspaces:  workspaces,
		DetailItems: 100,
		ListLimit:   20,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates quota for the workspace's account, then persists the
// upload and its items. The item insert runs in a transaction with the
// upload row so a failed bulk insert leaves nothing behind.
func (s *UploadService) Create(ctx context.Context, workspaceHash, filename, key, phoneID string, rows []ImportRow) (*domain.Upload, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("workspace.hash", workspaceHash),
			attribute.Int("rows", len(rows)),
		),
	)
	defer span.End()

	if key == "" || phoneID == "" {
		return nil, ErrMissingCredentials
	}
	if len(rows) == 0 {
		return nil, ErrEmptySpreadsheet
	}

	ws, err := repo.GetWorkspace(ctx, s.DB, workspaceHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}

	usage, err := s.Workspaces.AccountUsage(ctx, ws.AccountID)
	if err != nil {
		return nil, err
	}
	if usage.LimitReached() {
		return nil, ErrUsageLimitExceeded
	}

	creds := domain.Credentials{
		Key:       key,
		PhoneID:   phoneID,
		Server:    ws.Server,
		AccountID: ws.AccountID,
	}

	var upload *domain.Upload
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.CreateUpload(ctx, tx, workspaceHash, filename, len(rows), creds)
		if err != nil {
			return err
		}
		items := make([]domain.UploadItem, 0, len(rows))
		for i, r := range rows {
			items = append(items, domain.UploadItem{
				UploadID:      u.ID,
				WorkspaceHash: workspaceHash,
				RowIndex:      i,
				ChatNumber:    r.ChatNumber,
				Name:          r.Name,
				Text:          r.Text,
				UserID:        r.UserID,
				DialogID:      r.DialogID,
			})
		}
		if err := repo.CreateItemsBulk(ctx, tx, items); err != nil {
			return err
		}
		upload = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("workspace", workspaceHash).
		Str("upload_id", upload.ID).
		Int("rows", upload.TotalRows).
		Msg("upload accepted")
	return upload, nil
}

// Get returns the detail view of one upload owned by the workspace.
func (s *UploadService) Get(ctx context.Context, workspaceHash, uploadID string) (*UploadDetail, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("upload.id", uploadID)),
	)
	defer span.End()

	u, err := repo.GetWorkspaceUpload(ctx, s.DB, uploadID, workspaceHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}

	items, err := repo.ListItems(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	limit := s.DetailItems
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}

	counts, err := repo.CountItemsByState(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	return &UploadDetail{Upload: u, Items: items, StateCounts: counts}, nil
}

// List returns the workspace's most recent uploads and whether any is
// still live.
func (s *UploadService) List(ctx context.Context, workspaceHash string) ([]domain.Upload, bool, error) {
	limit := s.ListLimit
	if limit <= 0 {
		limit = 20
	}
	uploads, err := repo.ListUploads(ctx, s.DB, workspaceHash, limit)
	if err != nil {
		return nil, false, err
	}
	hasActive := false
	for _, u := range uploads {
		if !domain.IsTerminalUploadStatus(u.Status) {
			hasActive = true
			break
		}
	}
	return uploads, hasActive, nil
}

// Cancel transitions a queued/running upload to canceled and flips its
// still-queued items to error with the cancellation sentinel code.
func (s *UploadService) Cancel(ctx context.Context, workspaceHash, uploadID string) (*domain.Upload, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("upload.id", uploadID)),
	)
	defer span.End()

	u, err := repo.GetWorkspaceUpload(ctx, s.DB, uploadID, workspaceHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}

	now := s.now()
	var canceledItems int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := repo.MarkUploadCanceled(ctx, tx, u.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrUploadNotCancelable
		}
		canceledItems, err = repo.CancelQueuedItems(ctx, tx, u.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logRun(ctx, workspaceHash, u.ID, domain.PhaseCancel, domain.LevelInfo,
		"upload canceled by user", int(canceledItems))
	s.Log.Info().
		Str("workspace", workspaceHash).
		Str("upload_id", u.ID).
		Int64("canceled_items", canceledItems).
		Msg("upload canceled")

	return repo.GetUpload(ctx, s.DB, u.ID)
}

// RetryFailed resets every error item of the upload back to queued,
// clearing attempts, error detail, and the submission id. A completed
// upload moves back to queued so the scheduler picks it up again.
func (s *UploadService) RetryFailed(ctx context.Context, workspaceHash, uploadID string) (int64, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "RetryFailed",
		trace.WithAttributes(attribute.String("upload.id", uploadID)),
	)
	defer span.End()

	u, err := repo.GetWorkspaceUpload(ctx, s.DB, uploadID, workspaceHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUploadNotFound
		}
		return 0, err
	}

	now := s.now()
	var reset int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.ResetErrorItems(ctx, tx, u.ID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNothingToRetry
		}
		reset = n
		return repo.RequeueCompletedUpload(ctx, tx, u.ID)
	})
	if err != nil {
		return 0, err
	}

	s.logRun(ctx, workspaceHash, u.ID, domain.PhaseRetry, domain.LevelInfo,
		"failed items requeued", int(reset))
	s.Log.Info().
		Str("workspace", workspaceHash).
		Str("upload_id", u.ID).
		Int64("reset_items", reset).
		Msg("retry requested")
	return reset, nil
}

// FailedItems returns the error items of an upload for the failure report.
func (s *UploadService) FailedItems(ctx context.Context, workspaceHash, uploadID string) ([]domain.UploadItem, error) {
	if _, err := repo.GetWorkspaceUpload(ctx, s.DB, uploadID, workspaceHash); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return repo.ListFailedItems(ctx, s.DB, uploadID)
}

// logRun appends an audit entry; failures are downgraded to warnings.
func (s *UploadService) logRun(ctx context.Context, workspaceHash, uploadID, phase, level, msg string, code int) {
	err := repo.InsertRunLog(ctx, s.DB, &domain.RunLog{
		WorkspaceHash: workspaceHash,
		UploadID:      uploadID,
		Phase:         phase,
		Level:         level,
		Message:       msg,
		Code:          code,
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("upload_id", uploadID).Msg("run log write failed")
	}
}

func (s *UploadService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
