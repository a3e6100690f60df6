// Package services – AdminService
//
// This file implements the read-only operator view: a dashboard of global
// counters plus paginated listings over workspaces, uploads, items, and the
// audit trail. It never mutates pipeline state.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// Dashboard aggregates the operator overview.
type Dashboard struct {
	Workspaces    int64               `json:"workspaces"`
	Uploads       int64               `json:"uploads"`
	ActiveUploads int64               `json:"active_uploads"`
	Items         int64               `json:"items"`
	ItemsByState  map[string]int      `json:"items_by_state"`
	RecentItems   []domain.UploadItem `json:"recent_items"`
}

// AdminService serves the operator API.
type AdminService struct {
	DB *gorm.DB

	// RecentItems bounds the dashboard's recently-updated item list.
	RecentItems int
}

// NewAdminService constructs an AdminService with default view limits.
func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{DB: db, RecentItems: 50}
}

// Dashboard builds the operator overview.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Dashboard")
	defer span.End()

	workspaces, err := repo.CountWorkspaces(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	uploads, err := repo.CountUploads(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	active, err := repo.CountActiveUploads(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	items, err := repo.CountItems(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	byState, err := repo.GlobalItemStateCounts(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	limit := s.RecentItems
	if limit <= 0 {
		limit = 50
	}
	recent, err := repo.RecentlyUpdatedItems(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Workspaces:    workspaces,
		Uploads:       uploads,
		ActiveUploads: active,
		Items:         items,
		ItemsByState:  byState,
		RecentItems:   recent,
	}, nil
}

// Workspaces returns one page of workspaces, newest first.
func (s *AdminService) Workspaces(ctx context.Context, page, pageSize int) ([]domain.Workspace, int64, error) {
	offset, limit := pageWindow(page, pageSize)
	total, err := repo.CountWorkspaces(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.ListWorkspacesPage(ctx, s.DB, offset, limit)
	return rows, total, err
}

// Uploads returns one page of uploads, newest first.
func (s *AdminService) Uploads(ctx context.Context, page, pageSize int) ([]domain.Upload, int64, error) {
	offset, limit := pageWindow(page, pageSize)
	total, err := repo.CountUploads(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.ListUploadsPage(ctx, s.DB, offset, limit)
	return rows, total, err
}

// Items returns one page of items across all uploads, most recently
// updated first.
func (s *AdminService) Items(ctx context.Context, page, pageSize int) ([]domain.UploadItem, int64, error) {
	offset, limit := pageWindow(page, pageSize)
	total, err := repo.CountItems(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.ListItemsPage(ctx, s.DB, offset, limit)
	return rows, total, err
}

// Logs returns one page of the audit trail, newest first. A non-empty
// workspaceHash narrows the view to one tenant.
func (s *AdminService) Logs(ctx context.Context, workspaceHash string, page, pageSize int) ([]domain.RunLog, int64, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Logs",
		trace.WithAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize)),
	)
	defer span.End()

	offset, limit := pageWindow(page, pageSize)
	total, err := repo.CountRunLogs(ctx, s.DB, workspaceHash)
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.ListRunLogsPage(ctx, s.DB, workspaceHash, offset, limit)
	return rows, total, err
}

// pageWindow applies the defaults used across paginated listings.
func pageWindow(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
