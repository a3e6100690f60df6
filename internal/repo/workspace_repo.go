// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Workspace
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertWorkspace inserts the workspace row or, when the fingerprint
// already exists, refreshes its account and server identifiers. The
// rate-limiting timestamps are deliberately left untouched on conflict so
// that re-validation cannot reset the outbound gate.
func UpsertWorkspace(ctx context.Context, db *gorm.DB, ws *domain.Workspace) error {
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_id", "server"}),
		}).
		Create(ws).Error
}

// GetWorkspace fetches a workspace by fingerprint, or ErrNotFound.
func GetWorkspace(ctx context.Context, db *gorm.DB, hash string) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := db.WithContext(ctx).
		Where("workspace_hash = ?", hash).
		First(&ws).Error
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListWorkspacesByStaleness returns all workspaces ordered by
// last_outbound_at ascending with nulls first, i.e. the workspace that has
// waited longest (or has never made a call) comes first. This ordering is
// the tick driver's starvation guard.
func ListWorkspacesByStaleness(ctx context.Context, db *gorm.DB) ([]domain.Workspace, error) {
	var out []domain.Workspace
	// SQLite sorts NULL first on ASC, which is exactly the wanted order.
	err := db.WithContext(ctx).
		Order("last_outbound_at asc").
		Find(&out).Error
	return out, err
}

// TouchOutbound stamps last_outbound_at (and, for successful additions,
// last_addition_at) after an outbound platform call.
func TouchOutbound(ctx context.Context, db *gorm.DB, hash string, at time.Time, addition bool) error {
	updates := map[string]any{"last_outbound_at": at}
	if addition {
		updates["last_addition_at"] = at
	}
	res := db.WithContext(ctx).
		Model(&domain.Workspace{}).
		Where("workspace_hash = ?", hash).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCheckingStarted stamps checking_started_at when a workspace's active
// upload first enters the checking phase.
func MarkCheckingStarted(ctx context.Context, db *gorm.DB, hash string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Workspace{}).
		Where("workspace_hash = ?", hash).
		Update("checking_started_at", at).Error
}

// CountWorkspaces returns the total number of workspace rows.
func CountWorkspaces(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Workspace{}).Count(&total).Error
	return total, err
}

// ListWorkspacesPage returns a page of workspaces ordered by creation time
// descending, for the admin API.
func ListWorkspacesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Workspace, error) {
	var out []domain.Workspace
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
