// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the RunLog
// model, the append-only audit trail of pipeline activity.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// InsertRunLog appends one audit entry.
func InsertRunLog(ctx context.Context, db *gorm.DB, entry *domain.RunLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

// ListRunLogsPage returns a page of audit entries, newest first. An empty
// workspaceHash lists across all workspaces (admin view).
func ListRunLogsPage(ctx context.Context, db *gorm.DB, workspaceHash string, offset, limit int) ([]domain.RunLog, error) {
	q := db.WithContext(ctx).Model(&domain.RunLog{})
	if workspaceHash != "" {
		q = q.Where("workspace_hash = ?", workspaceHash)
	}
	var out []domain.RunLog
	err := q.Order("id desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// ListUploadRunLogs returns all audit entries of one upload in insertion
// order.
func ListUploadRunLogs(ctx context.Context, db *gorm.DB, uploadID string) ([]domain.RunLog, error) {
	var out []domain.RunLog
	err := db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// DeleteRunLogsBefore purges audit entries older than the cutoff and
// returns the number removed.
func DeleteRunLogsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("at < ?", cutoff).
		Delete(&domain.RunLog{})
	return res.RowsAffected, res.Error
}

// CountRunLogs returns the number of audit entries, scoped to one
// workspace when workspaceHash is non-empty.
func CountRunLogs(ctx context.Context, db *gorm.DB, workspaceHash string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.RunLog{})
	if workspaceHash != "" {
		q = q.Where("workspace_hash = ?", workspaceHash)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}
