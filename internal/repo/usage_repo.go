// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UsageRecord ledger, which tracks confirmed chat additions per account.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// InsertUsageRecord appends one usage delta for an account.
func InsertUsageRecord(ctx context.Context, db *gorm.DB, accountID, workspaceHash, uploadID string, chatsAdded int) error {
	rec := &domain.UsageRecord{
		AccountID:     accountID,
		WorkspaceHash: workspaceHash,
		UploadID:      uploadID,
		ChatsAdded:    chatsAdded,
		CreatedAt:     time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(rec).Error
}

// AccountUsage sums the confirmed additions recorded for an account.
func AccountUsage(ctx context.Context, db *gorm.DB, accountID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("account_id = ?", accountID).
		Select("coalesce(sum(chats_added), 0)").
		Scan(&total).Error
	return total, err
}

// UploadUsage sums the additions already credited for one upload. The
// aggregator reports it when a recount comes back below the persisted
// counter, to show how much the ledger actually holds.
func UploadUsage(ctx context.Context, db *gorm.DB, uploadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("upload_id = ?", uploadID).
		Select("coalesce(sum(chats_added), 0)").
		Scan(&total).Error
	return total, err
}
