// Upload HTTP handlers.
//
// This file exposes the tenant-facing REST endpoints for bulk-import jobs:
//   - POST   /uploads                (multipart intake)
//   - GET    /uploads                (recent uploads + active flag)
//   - GET    /uploads/template       (downloadable intake template)
//   - GET    /uploads/{id}           (detail with items and state counts)
//   - POST   /uploads/{id}/cancel    (user cancellation)
//   - POST   /uploads/{id}/retry     (requeue failed items)
//   - GET    /uploads/{id}/failures  (xlsx failure report)
//
// All endpoints are scoped by the X-Workspace-Hash header; an upload is
// never visible outside its owning workspace.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/services"
	"github.com/tbourn/go-chat-import-backend/internal/xlsxio"
)

// xlsxContentType is the MIME type of generated workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateUploadResponse is returned after a spreadsheet is accepted.
type CreateUploadResponse struct {
	UploadID  string `json:"upload_id"`
	TotalRows int    `json:"total_rows"`
	Status    string `json:"status"`
}

// ListUploadsResponse wraps the workspace's recent uploads.
type ListUploadsResponse struct {
	Uploads          []domain.Upload `json:"uploads"`
	HasActiveUploads bool            `json:"has_active_uploads"`
}

// RetryUploadResponse reports how many items were requeued.
type RetryUploadResponse struct {
	ResetItems int64 `json:"reset_items"`
}

// failUpload translates service-level sentinel errors into the response
// envelope. Unrecognized errors become 500s.
func failUpload(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrWorkspaceNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "workspace not found, validate credentials first")
	case errors.Is(err, services.ErrUploadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "upload not found")
	case errors.Is(err, services.ErrMissingCredentials):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrEmptySpreadsheet):
		fail(c, http.StatusBadRequest, ErrCodeParseFailed, "spreadsheet has no importable rows")
	case errors.Is(err, services.ErrUsageLimitExceeded):
		fail(c, http.StatusForbidden, ErrCodeLimitExceeded, "account usage limit reached")
	case errors.Is(err, services.ErrUploadNotCancelable):
		fail(c, http.StatusConflict, ErrCodeNotCancelable, "upload is not in a cancelable state")
	case errors.Is(err, services.ErrNothingToRetry):
		fail(c, http.StatusConflict, ErrCodeNothingToRetry, "upload has no failed items")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateUpload godoc
// @ID          createUpload
// @Summary     Submit a spreadsheet of contacts
// @Description Accepts a multipart xlsx file plus the call-time credential fields, validates required columns, enforces the account quota, and creates the upload with its items.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Workspace-Hash  header    string  true  "Workspace fingerprint"
// @Param       file              formData  file    true  "xlsx file with chat_number and name columns"
// @Param       key               formData  string  true  "Platform API key"
// @Param       phone_id          formData  string  true  "Platform phone identifier"
//
// @Success     201  {object}  handlers.CreateUploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad file or missing fields"
// @Failure     403  {object}  handlers.ErrorResponse  "Usage limit reached"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown workspace"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads [post]
func (h *Handlers) CreateUpload(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}
	defer src.Close()

	parsed, err := xlsxio.Parse(src)
	if err != nil {
		if errors.Is(err, xlsxio.ErrMissingColumns) || errors.Is(err, xlsxio.ErrNoWorksheet) {
			fail(c, http.StatusBadRequest, ErrCodeParseFailed, err.Error())
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeParseFailed, "file is not a readable xlsx workbook")
		return
	}

	rows := make([]services.ImportRow, 0, len(parsed))
	for _, r := range parsed {
		rows = append(rows, services.ImportRow{
			ChatNumber: r.ChatNumber,
			Name:       r.Name,
			Text:       r.Text,
			UserID:     r.UserID,
			DialogID:   r.DialogID,
		})
	}

	upload, err := h.uploadSvc.Create(
		c.Request.Context(),
		hash,
		fileHeader.Filename,
		c.PostForm("key"),
		c.PostForm("phone_id"),
		rows,
	)
	if err != nil {
		failUpload(c, err)
		return
	}
	ok(c, http.StatusCreated, CreateUploadResponse{
		UploadID:  upload.ID,
		TotalRows: upload.TotalRows,
		Status:    upload.Status,
	})
}

// ListUploads godoc
// @ID          listUploads
// @Summary     List recent uploads
// @Description Returns the workspace's most recent uploads and whether any is still live.
// @Tags        Uploads
// @Produce     json
//
// @Param       X-Workspace-Hash  header  string  true  "Workspace fingerprint"
//
// @Success     200  {object}  handlers.ListUploadsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing workspace header"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads [get]
func (h *Handlers) ListUploads(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}

	uploads, hasActive, err := h.uploadSvc.List(c.Request.Context(), hash)
	if err != nil {
		failUpload(c, err)
		return
	}
	ok(c, http.StatusOK, ListUploadsResponse{
		Uploads:          uploads,
		HasActiveUploads: hasActive,
	})
}

// GetUpload godoc
// @ID          getUpload
// @Summary     Upload detail
// @Description Returns the upload row, its first items by row order, and live per-state counts.
// @Tags        Uploads
// @Produce     json
//
// @Param       X-Workspace-Hash  header  string  true  "Workspace fingerprint"
// @Param       id                path    string  true  "Upload ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.UploadDetail
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Upload not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads/{id} [get]
func (h *Handlers) GetUpload(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}
	uploadID := c.Param("id")
	if _, err := uuid.Parse(uploadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "upload id must be a UUID")
		return
	}

	detail, err := h.uploadSvc.Get(c.Request.Context(), hash, uploadID)
	if err != nil {
		failUpload(c, err)
		return
	}
	ok(c, http.StatusOK, detail)
}

// CancelUpload godoc
// @ID          cancelUpload
// @Summary     Cancel an upload
// @Description Stops a queued or running upload; still-queued items are flipped to error with the cancellation code.
// @Tags        Uploads
// @Produce     json
//
// @Param       X-Workspace-Hash  header  string  true  "Workspace fingerprint"
// @Param       id                path    string  true  "Upload ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Upload
// @Failure     404  {object}  handlers.ErrorResponse  "Upload not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Upload not cancelable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads/{id}/cancel [post]
func (h *Handlers) CancelUpload(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}

	upload, err := h.uploadSvc.Cancel(c.Request.Context(), hash, c.Param("id"))
	if err != nil {
		failUpload(c, err)
		return
	}
	ok(c, http.StatusOK, upload)
}

// RetryUpload godoc
// @ID          retryUpload
// @Summary     Retry failed items
// @Description Resets every error item of the upload back to queued and requeues a completed upload for the scheduler.
// @Tags        Uploads
// @Produce     json
//
// @Param       X-Workspace-Hash  header  string  true  "Workspace fingerprint"
// @Param       id                path    string  true  "Upload ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.RetryUploadResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Upload not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Nothing to retry"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads/{id}/retry [post]
func (h *Handlers) RetryUpload(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}

	reset, err := h.uploadSvc.RetryFailed(c.Request.Context(), hash, c.Param("id"))
	if err != nil {
		failUpload(c, err)
		return
	}
	ok(c, http.StatusOK, RetryUploadResponse{ResetItems: reset})
}

// DownloadTemplate godoc
// @ID          downloadTemplate
// @Summary     Download the intake template
// @Description Streams a generated xlsx with the expected headers and one example row.
// @Tags        Uploads
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//
// @Success     200  {file}    file
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads/template [get]
func (h *Handlers) DownloadTemplate(c *gin.Context) {
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="`+xlsxio.TemplateFilename+`"`)
	if err := xlsxio.WriteTemplate(c.Writer); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DownloadFailures godoc
// @ID          downloadFailures
// @Summary     Download the failure report
// @Description Streams an xlsx of the upload's error items with row, contact fields, and error detail.
// @Tags        Uploads
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//
// @Param       X-Workspace-Hash  header  string  true  "Workspace fingerprint"
// @Param       id                path    string  true  "Upload ID (UUID)"  format(uuid)
//
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Upload not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads/{id}/failures [get]
func (h *Handlers) DownloadFailures(c *gin.Context) {
	hash, okHash := workspaceHash(c)
	if !okHash {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Workspace-Hash header required")
		return
	}
	uploadID := c.Param("id")

	items, err := h.uploadSvc.FailedItems(c.Request.Context(), hash, uploadID)
	if err != nil {
		failUpload(c, err)
		return
	}

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="`+xlsxio.FailuresFilename(uploadID)+`"`)
	if err := xlsxio.WriteFailures(c.Writer, items); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
