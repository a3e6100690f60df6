// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UploadItem model, which carries the per-row state machine.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// waitingStates covers the canonical waiting state plus the legacy alias
// still present in rows written by earlier deployments.
var waitingStates = []string{domain.ItemStateWaitingCheck, domain.ItemStateWaitingLegacy}

// CreateItemsBulk inserts all items of an upload in one batched insert.
// IDs are generated here; callers only provide row content. The insert is
// transactional: either every row lands or none do.
func CreateItemsBulk(ctx context.Context, db *gorm.DB, items []domain.UploadItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].State == "" {
			items[i].State = domain.ItemStateQueued
		}
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
	}
	return db.WithContext(ctx).CreateInBatches(items, 200).Error
}

// NextQueuedItem returns the queued item with the lowest row index, or
// ErrNotFound when the upload has drained its queue. Row order is the
// submission order contract.
func NextQueuedItem(ctx context.Context, db *gorm.DB, uploadID string) (*domain.UploadItem, error) {
	var item domain.UploadItem
	err := db.WithContext(ctx).
		Where("upload_id = ? AND state = ?", uploadID, domain.ItemStateQueued).
		Order("row_index asc").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem fetches an item by ID, or ErrNotFound.
func GetItem(ctx context.Context, db *gorm.DB, id string) (*domain.UploadItem, error) {
	var item domain.UploadItem
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CountItemsByState returns per-state item counts for one upload. States
// with no rows are absent from the map.
func CountItemsByState(ctx context.Context, db *gorm.DB, uploadID string) (map[string]int, error) {
	type row struct {
		State string
		N     int
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Select("state, count(*) as n").
		Where("upload_id = ?", uploadID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.State] = r.N
	}
	return out, nil
}

// ListWaitingCheckItems returns items awaiting platform confirmation,
// oldest rows first. Rows without a submission id cannot be checked and
// are excluded; the submit path always records the id before entering a
// waiting state.
func ListWaitingCheckItems(ctx context.Context, db *gorm.DB, uploadID string, limit int) ([]domain.UploadItem, error) {
	var out []domain.UploadItem
	err := db.WithContext(ctx).
		Where("upload_id = ? AND state IN ? AND chat_add_id <> ''", uploadID, waitingStates).
		Order("row_index asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListItems returns all items of an upload in row order.
func ListItems(ctx context.Context, db *gorm.DB, uploadID string) ([]domain.UploadItem, error) {
	var out []domain.UploadItem
	err := db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("row_index asc").
		Find(&out).Error
	return out, err
}

// ListFailedItems returns the error items of an upload in row order, for
// the failure report.
func ListFailedItems(ctx context.Context, db *gorm.DB, uploadID string) ([]domain.UploadItem, error) {
	var out []domain.UploadItem
	err := db.WithContext(ctx).
		Where("upload_id = ? AND state = ?", uploadID, domain.ItemStateError).
		Order("row_index asc").
		Find(&out).Error
	return out, err
}

// MarkItemAdding transitions an item to adding and bumps its attempt
// counter. The state predicate keeps concurrent tick runs from double
// submitting the same row.
func MarkItemAdding(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("id = ? AND state = ?", id, domain.ItemStateQueued).
		Updates(map[string]any{
			"state":      domain.ItemStateAdding,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkItemWaitingCheck records a successful chat_add submission: the
// platform id is stored and the item moves to waiting_batch_check.
func MarkItemWaitingCheck(ctx context.Context, db *gorm.DB, id, chatAddID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":       domain.ItemStateWaitingCheck,
			"chat_add_id": chatAddID,
			"updated_at":  at,
		}).Error
}

// MarkItemDone records a confirmed addition.
func MarkItemDone(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      domain.ItemStateDone,
			"updated_at": at,
		}).Error
}

// MarkItemError records a failed item with the platform error code and
// message.
func MarkItemError(ctx context.Context, db *gorm.DB, id string, code int, msg string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":              domain.ItemStateError,
			"last_error_code":    code,
			"last_error_message": msg,
			"updated_at":         at,
		}).Error
}

// RefreshItemDescription stores the platform's latest description without
// changing state. Used when a status check reports still pending.
func RefreshItemDescription(ctx context.Context, db *gorm.DB, id, msg string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error_message": msg,
			"updated_at":         at,
		}).Error
}

// ResetErrorItems requeues the failed items of an upload for another pass:
// state back to queued, attempts and error details cleared, submission id
// dropped. Returns the number of items reset.
func ResetErrorItems(ctx context.Context, db *gorm.DB, uploadID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("upload_id = ? AND state = ?", uploadID, domain.ItemStateError).
		Updates(map[string]any{
			"state":              domain.ItemStateQueued,
			"attempts":           0,
			"chat_add_id":        "",
			"last_error_code":    0,
			"last_error_message": "",
			"updated_at":         at,
		})
	return res.RowsAffected, res.Error
}

// CancelQueuedItems marks every still-queued item of an upload as error
// with the cancellation code. Items already in flight or settled keep
// their state. Returns the number of items canceled.
func CancelQueuedItems(ctx context.Context, db *gorm.DB, uploadID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Where("upload_id = ? AND state = ?", uploadID, domain.ItemStateQueued).
		Updates(map[string]any{
			"state":              domain.ItemStateError,
			"last_error_code":    domain.CancelErrorCode,
			"last_error_message": "canceled by user",
			"updated_at":         at,
		})
	return res.RowsAffected, res.Error
}

// CountItems returns the total number of item rows.
func CountItems(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.UploadItem{}).Count(&total).Error
	return total, err
}

// GlobalItemStateCounts returns per-state item counts across all uploads,
// for the admin dashboard.
func GlobalItemStateCounts(ctx context.Context, db *gorm.DB) (map[string]int, error) {
	type row struct {
		State string
		N     int
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.UploadItem{}).
		Select("state, count(*) as n").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.State] = r.N
	}
	return out, nil
}
