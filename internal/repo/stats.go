// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries
// used by the admin dashboard. Each function is context-aware and safe to
// call from services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// RecentlyUpdatedItems returns the items most recently touched by the
// pipeline, newest first, for the admin dashboard.
func RecentlyUpdatedItems(ctx context.Context, db *gorm.DB, limit int) ([]domain.UploadItem, error) {
	var out []domain.UploadItem
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListItemsPage returns a page of items across all uploads ordered by
// update time descending, for the admin API.
func ListItemsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.UploadItem, error) {
	var out []domain.UploadItem
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
