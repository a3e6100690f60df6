package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/services"
)

//
// Fakes for the service contracts. Each fake records the arguments it was
// called with and returns scripted values.
//

type fakeCredSvc struct {
	check *services.CredentialCheck
	err   error

	gotServer, gotKey, gotAccountID, gotPhoneID string
}

func (f *fakeCredSvc) CheckCredentials(_ context.Context, server, key, accountID, phoneID string) (*services.CredentialCheck, error) {
	f.gotServer, f.gotKey, f.gotAccountID, f.gotPhoneID = server, key, accountID, phoneID
	if f.err != nil {
		return nil, f.err
	}
	return f.check, nil
}

type fakeUploadSvc struct {
	createUpload *domain.Upload
	createErr    error

	detail *services.UploadDetail
	getErr error

	uploads   []domain.Upload
	hasActive bool
	listErr   error

	cancelUpload *domain.Upload
	cancelErr    error

	retryReset int64
	retryErr   error

	failed    []domain.UploadItem
	failedErr error

	gotHash     string
	gotFilename string
	gotKey      string
	gotPhoneID  string
	gotRows     []services.ImportRow
	gotUploadID string
}

func (f *fakeUploadSvc) Create(_ context.Context, hash, filename, key, phoneID string, rows []services.ImportRow) (*domain.Upload, error) {
	f.gotHash, f.gotFilename, f.gotKey, f.gotPhoneID, f.gotRows = hash, filename, key, phoneID, rows
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createUpload, nil
}

func (f *fakeUploadSvc) Get(_ context.Context, hash, uploadID string) (*services.UploadDetail, error) {
	f.gotHash, f.gotUploadID = hash, uploadID
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.detail, nil
}

func (f *fakeUploadSvc) List(_ context.Context, hash string) ([]domain.Upload, bool, error) {
	f.gotHash = hash
	if f.listErr != nil {
		return nil, false, f.listErr
	}
	return f.uploads, f.hasActive, nil
}

func (f *fakeUploadSvc) Cancel(_ context.Context, hash, uploadID string) (*domain.Upload, error) {
	f.gotHash, f.gotUploadID = hash, uploadID
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelUpload, nil
}

func (f *fakeUploadSvc) RetryFailed(_ context.Context, hash, uploadID string) (int64, error) {
	f.gotHash, f.gotUploadID = hash, uploadID
	if f.retryErr != nil {
		return 0, f.retryErr
	}
	return f.retryReset, nil
}

func (f *fakeUploadSvc) FailedItems(_ context.Context, hash, uploadID string) ([]domain.UploadItem, error) {
	f.gotHash, f.gotUploadID = hash, uploadID
	if f.failedErr != nil {
		return nil, f.failedErr
	}
	return f.failed, nil
}

type fakeTickSvc struct {
	res *services.TickResult
	err error
}

func (f *fakeTickSvc) Tick(context.Context) (*services.TickResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeCleanupSvc struct {
	res *services.CleanupResult
	err error
}

func (f *fakeCleanupSvc) Run(context.Context) (*services.CleanupResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeAdminSvc struct {
	dash *services.Dashboard
	err  error

	workspaces []domain.Workspace
	uploads    []domain.Upload
	items      []domain.UploadItem
	logs       []domain.RunLog
	total      int64

	gotPage, gotPageSize int
	gotWorkspace         string
}

func (f *fakeAdminSvc) Dashboard(context.Context) (*services.Dashboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dash, nil
}

func (f *fakeAdminSvc) Workspaces(_ context.Context, page, pageSize int) ([]domain.Workspace, int64, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	return f.workspaces, f.total, f.err
}

func (f *fakeAdminSvc) Uploads(_ context.Context, page, pageSize int) ([]domain.Upload, int64, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	return f.uploads, f.total, f.err
}

func (f *fakeAdminSvc) Items(_ context.Context, page, pageSize int) ([]domain.UploadItem, int64, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	return f.items, f.total, f.err
}

func (f *fakeAdminSvc) Logs(_ context.Context, workspaceHash string, page, pageSize int) ([]domain.RunLog, int64, error) {
	f.gotWorkspace, f.gotPage, f.gotPageSize = workspaceHash, page, pageSize
	return f.logs, f.total, f.err
}

// handlerRouter mounts every endpoint without any middleware, mirroring the
// paths the real router registers.
func handlerRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/credentials/check", h.CheckCredentials)
	r.POST("/uploads", h.CreateUpload)
	r.GET("/uploads", h.ListUploads)
	r.GET("/uploads/template", h.DownloadTemplate)
	r.GET("/uploads/:id", h.GetUpload)
	r.POST("/uploads/:id/cancel", h.CancelUpload)
	r.POST("/uploads/:id/retry", h.RetryUpload)
	r.GET("/uploads/:id/failures", h.DownloadFailures)
	r.GET("/tick", h.RunTick)
	r.POST("/tick", h.RunTick)
	r.POST("/cleanup/daily", h.RunCleanup)
	r.POST("/admin/auth", h.AdminAuthCheck)
	r.GET("/admin/dashboard", h.AdminDashboard)
	r.GET("/admin/workspaces", h.AdminWorkspaces)
	r.GET("/admin/uploads", h.AdminUploads)
	r.GET("/admin/items", h.AdminItems)
	r.GET("/admin/logs", h.AdminLogs)
	return r
}

// intakeWorkbook builds a minimal valid intake sheet.
func intakeWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := []any{"chat_number", "name", "text"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("set header: %v", err)
	}
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return &buf
}

// uploadBody builds the multipart form for POST /uploads.
func uploadBody(t *testing.T, file io.Reader, key, phoneID string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		fw, err := mw.CreateFormFile("file", "contacts.xlsx")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.Copy(fw, file); err != nil {
			t.Fatalf("copy file: %v", err)
		}
	}
	_ = mw.WriteField("key", key)
	_ = mw.WriteField("phone_id", phoneID)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func assertErrorCode(t *testing.T, body []byte, wantCode string) {
	t.Helper()
	if !bytes.Contains(body, []byte(`"code":"`+wantCode+`"`)) {
		t.Fatalf("expected error code %q, body: %s", wantCode, body)
	}
}

func assertStatus(t *testing.T, got, want int, body []byte) {
	t.Helper()
	if got != want {
		t.Fatalf("status = %d, want %d, body: %s", got, want, body)
	}
}
