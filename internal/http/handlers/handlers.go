// Handler wiring and shared transport helpers.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. All tenant-facing
// endpoints are scoped by the workspace fingerprint presented in the
// X-Workspace-Hash header.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/http/middleware"
	"github.com/tbourn/go-chat-import-backend/internal/services"
	"github.com/tbourn/go-chat-import-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CredentialService validates external credentials and resolves workspaces.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CredentialService interface {
	// CheckCredentials probes the platform and upserts the workspace.
	CheckCredentials(ctx context.Context, server, key, accountID, phoneID string) (*services.CredentialCheck, error)
}

// UploadService owns the lifecycle of bulk-import jobs.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UploadService interface {
	// Create persists a new upload with its parsed rows.
	Create(ctx context.Context, workspaceHash, filename, key, phoneID string, rows []services.ImportRow) (*domain.Upload, error)
	// Get returns the detail view of one upload owned by the workspace.
	Get(ctx context.Context, workspaceHash, uploadID string) (*services.UploadDetail, error)
	// List returns recent uploads plus an any-still-live flag.
	List(ctx context.Context, workspaceHash string) ([]domain.Upload, bool, error)
	// Cancel stops a queued/running upload.
	Cancel(ctx context.Context, workspaceHash, uploadID string) (*domain.Upload, error)
	// RetryFailed requeues the upload's error items.
	RetryFailed(ctx context.Context, workspaceHash, uploadID string) (int64, error)
	// FailedItems returns the error items for the failure report.
	FailedItems(ctx context.Context, workspaceHash, uploadID string) ([]domain.UploadItem, error)
}

// TickService drives one pass of the import pipeline.
type TickService interface {
	// Tick processes every due workspace once.
	Tick(ctx context.Context) (*services.TickResult, error)
}

// CleanupService purges data past the retention window.
type CleanupService interface {
	// Run executes one retention pass.
	Run(ctx context.Context) (*services.CleanupResult, error)
}

// AdminService serves the read-only operator API.
type AdminService interface {
	Dashboard(ctx context.Context) (*services.Dashboard, error)
	Workspaces(ctx context.Context, page, pageSize int) ([]domain.Workspace, int64, error)
	Uploads(ctx context.Context, page, pageSize int) ([]domain.Upload, int64, error)
	Items(ctx context.Context, page, pageSize int) ([]domain.UploadItem, int64, error)
	Logs(ctx context.Context, workspaceHash string, page, pageSize int) ([]domain.RunLog, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the import backend. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	credSvc    CredentialService
	uploadSvc  UploadService
	tickSvc    TickService
	cleanupSvc CleanupService
	adminSvc   AdminService
}

// New constructs a Handlers instance bound to the given services.
func New(credSvc CredentialService, uploadSvc UploadService, tickSvc TickService, cleanupSvc CleanupService, adminSvc AdminService) *Handlers {
	return &Handlers{
		credSvc:    credSvc,
		uploadSvc:  uploadSvc,
		tickSvc:    tickSvc,
		cleanupSvc: cleanupSvc,
		adminSvc:   adminSvc,
	}
}

// workspaceHash extracts the tenant fingerprint from the request. The
// second return value is false when the header is absent or blank.
func workspaceHash(c *gin.Context) (string, bool) {
	h := strings.TrimSpace(c.GetHeader(middleware.HeaderWorkspaceHash))
	return h, h != ""
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// pageOf computes the pagination envelope for a listing.
func pageOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
