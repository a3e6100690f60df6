// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Upload
// model.
//
// Error semantics:
//   - When an upload is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// CreateUpload inserts a new Upload row in queued state with a generated
// UUID primary key and UTC creation time.
func CreateUpload(ctx context.Context, db *gorm.DB, workspaceHash, filename string, totalRows int, creds domain.Credentials) (*domain.Upload, error) {
	u := &domain.Upload{
		ID:            uuid.NewString(),
		WorkspaceHash: workspaceHash,
		Filename:      filename,
		TotalRows:     totalRows,
		Status:        domain.UploadStatusQueued,
		Credentials:   creds,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUpload fetches an upload by ID, or ErrNotFound.
func GetUpload(ctx context.Context, db *gorm.DB, id string) (*domain.Upload, error) {
	var u domain.Upload
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetWorkspaceUpload fetches an upload by ID, enforcing workspace
// ownership. Returns ErrNotFound when missing or owned by another
// workspace.
func GetWorkspaceUpload(ctx context.Context, db *gorm.DB, id, workspaceHash string) (*domain.Upload, error) {
	var u domain.Upload
	err := db.WithContext(ctx).
		Where("id = ? AND workspace_hash = ?", id, workspaceHash).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FirstActiveUpload returns the single upload the scheduler should drive
// for the workspace: the oldest one in queued/running/checking, or
// ErrNotFound when the workspace is idle.
func FirstActiveUpload(ctx context.Context, db *gorm.DB, workspaceHash string) (*domain.Upload, error) {
	var u domain.Upload
	err := db.WithContext(ctx).
		Where("workspace_hash = ? AND status IN ?", workspaceHash, domain.ActiveUploadStatuses).
		Order("created_at asc").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUploadStatus returns only the current status of an upload. It is used
// as the cheap terminal-state guard right before item writes.
func GetUploadStatus(ctx context.Context, db *gorm.DB, id string) (string, error) {
	var status string
	err := db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("id = ?", id).
		Pluck("status", &status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", ErrNotFound
	}
	return status, nil
}

// ListUploads returns the most recent uploads of a workspace (newest
// first), capped at limit.
func ListUploads(ctx context.Context, db *gorm.DB, workspaceHash string, limit int) ([]domain.Upload, error) {
	var out []domain.Upload
	err := db.WithContext(ctx).
		Where("workspace_hash = ?", workspaceHash).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateUploadStatus sets the status of an upload unconditionally.
func UpdateUploadStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UploadAggregate is the full set of fields the aggregator recomputes
// after each tick pass. Nil time pointers clear the columns.
type UploadAggregate struct {
	ProcessedRows int
	SucceededRows int
	FailedRows    int
	Status        string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// ApplyUploadAggregate writes one aggregation result to the upload row.
func ApplyUploadAggregate(ctx context.Context, db *gorm.DB, id string, agg UploadAggregate) error {
	return db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_rows": agg.ProcessedRows,
			"succeeded_rows": agg.SucceededRows,
			"failed_rows":    agg.FailedRows,
			"status":         agg.Status,
			"started_at":     agg.StartedAt,
			"completed_at":   agg.CompletedAt,
		}).Error
}

// MarkUploadCanceled sets the upload to canceled and stamps completion.
// Only uploads still in queued/running may be canceled; the affected row
// count tells the caller whether the transition happened.
func MarkUploadCanceled(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("id = ? AND status IN ?", id, []string{domain.UploadStatusQueued, domain.UploadStatusRunning}).
		Updates(map[string]any{
			"status":       domain.UploadStatusCanceled,
			"completed_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// RequeueCompletedUpload moves a completed upload back to queued (used by
// retry-failed). Uploads in any other status are left alone.
func RequeueCompletedUpload(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("id = ? AND status = ?", id, domain.UploadStatusCompleted).
		Updates(map[string]any{
			"status":       domain.UploadStatusQueued,
			"completed_at": nil,
		}).Error
}

// DeleteUpload removes an upload row; items cascade.
func DeleteUpload(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Delete(&domain.Upload{}, "id = ?", id).Error
}

// DeleteCompletedUploadsBefore purges completed uploads whose completion
// predates the cutoff. Items cascade via the FK. Returns the number of
// uploads removed.
func DeleteCompletedUploadsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", domain.UploadStatusCompleted, cutoff).
		Delete(&domain.Upload{})
	return res.RowsAffected, res.Error
}

// CountUploads returns the total number of upload rows.
func CountUploads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Upload{}).Count(&total).Error
	return total, err
}

// CountActiveUploads returns the number of uploads in a live status.
func CountActiveUploads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Upload{}).
		Where("status IN ?", domain.ActiveUploadStatuses).
		Count(&total).Error
	return total, err
}

// ListUploadsPage returns a page of uploads ordered by creation time
// descending, for the admin API.
func ListUploadsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Upload, error) {
	var out []domain.Upload
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
