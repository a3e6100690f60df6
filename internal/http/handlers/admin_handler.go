// Admin HTTP handlers.
//
// Read-only operator endpoints behind AdminAuth: a dashboard of global
// counters plus paginated listings over workspaces, uploads, items, and
// the audit trail. Responses on the listing routes are gzip-compressed by
// the router.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// AdminWorkspacesResponse wraps a page of workspaces.
type AdminWorkspacesResponse struct {
	Workspaces []domain.Workspace `json:"workspaces"`
	Pagination Pagination         `json:"pagination"`
}

// AdminUploadsResponse wraps a page of uploads.
type AdminUploadsResponse struct {
	Uploads    []domain.Upload `json:"uploads"`
	Pagination Pagination      `json:"pagination"`
}

// AdminItemsResponse wraps a page of items.
type AdminItemsResponse struct {
	Items      []domain.UploadItem `json:"items"`
	Pagination Pagination          `json:"pagination"`
}

// AdminLogsResponse wraps a page of the audit trail.
type AdminLogsResponse struct {
	Logs       []domain.RunLog `json:"logs"`
	Pagination Pagination      `json:"pagination"`
}

// AdminAuthCheck godoc
// @ID          adminAuthCheck
// @Summary     Verify the admin secret
// @Description Returns 200 when the X-Admin-Secret header matches. The check itself happens in middleware.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true  "Admin secret"
//
// @Success     200  {object}  map[string]bool
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Router      /admin/auth [post]
func (h *Handlers) AdminAuthCheck(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"authorized": true})
}

// AdminDashboard godoc
// @ID          adminDashboard
// @Summary     Operator dashboard
// @Description Global counters, items by state, and the most recently updated items.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true  "Admin secret"
//
// @Success     200  {object}  services.Dashboard
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/dashboard [get]
func (h *Handlers) AdminDashboard(c *gin.Context) {
	dash, err := h.adminSvc.Dashboard(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, dash)
}

// AdminWorkspaces godoc
// @ID          adminWorkspaces
// @Summary     List workspaces (paginated)
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true   "Admin secret"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.AdminWorkspacesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/workspaces [get]
func (h *Handlers) AdminWorkspaces(c *gin.Context) {
	page, pageSize := clampPagination(c)
	rows, total, err := h.adminSvc.Workspaces(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AdminWorkspacesResponse{
		Workspaces: rows,
		Pagination: pageOf(page, pageSize, total),
	})
}

// AdminUploads godoc
// @ID          adminUploads
// @Summary     List uploads (paginated)
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true   "Admin secret"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.AdminUploadsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/uploads [get]
func (h *Handlers) AdminUploads(c *gin.Context) {
	page, pageSize := clampPagination(c)
	rows, total, err := h.adminSvc.Uploads(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AdminUploadsResponse{
		Uploads:    rows,
		Pagination: pageOf(page, pageSize, total),
	})
}

// AdminItems godoc
// @ID          adminItems
// @Summary     List items across all uploads (paginated)
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true   "Admin secret"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.AdminItemsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/items [get]
func (h *Handlers) AdminItems(c *gin.Context) {
	page, pageSize := clampPagination(c)
	rows, total, err := h.adminSvc.Items(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AdminItemsResponse{
		Items:      rows,
		Pagination: pageOf(page, pageSize, total),
	})
}

// AdminLogs godoc
// @ID          adminLogs
// @Summary     List the audit trail (paginated)
// @Description Newest first. An optional workspace query parameter narrows the view to one tenant.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Secret  header  string  true   "Admin secret"
// @Param       workspace       query   string  false  "Workspace fingerprint filter"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.AdminLogsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/logs [get]
func (h *Handlers) AdminLogs(c *gin.Context) {
	page, pageSize := clampPagination(c)
	rows, total, err := h.adminSvc.Logs(c.Request.Context(), c.Query("workspace"), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AdminLogsResponse{
		Logs:       rows,
		Pagination: pageOf(page, pageSize, total),
	})
}
