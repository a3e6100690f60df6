// Package services – ItemMachine
//
// This file implements the per-item state machine: the only component that
// transitions upload items. An addition attempt moves a queued item through
// adding into waiting_batch_check (on platform acknowledgement) or error; a
// status check settles a waiting item into done, refreshes its description
// while pending, or fails it. Every transition is also written to the
// run_logs audit trail.
//
// Cancellation race: an in-flight platform call can finish after the user
// cancels the upload. Item writes therefore re-read the upload status first
// and become no-ops once the upload is terminal.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/chatguru"
	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// Item actions reported in tick results.
const (
	ActionAdd        = "add"
	ActionBatchCheck = "batch_check"
)

// ItemResult is the outcome of one item transition, returned to the tick
// caller.
type ItemResult struct {
	Success bool   `json:"success"`
	ItemID  string `json:"itemId"`
	Action  string `json:"action"`
	Pending bool   `json:"pending,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ItemMachine drives single-item transitions against the external
// platform.
type ItemMachine struct {
	DB     *gorm.DB
	Client chatguru.Client
	Log    zerolog.Logger

	// DefaultServer substitutes a missing workspace server identifier.
	DefaultServer string

	// Now is a clock seam for tests.
	Now func() time.Time
}

// Submit performs one addition attempt for a queued item. The returned
// result always carries the item id and the "add" action.
func (m *ItemMachine) Submit(ctx context.Context, ws *domain.Workspace, upload *domain.Upload, item *domain.UploadItem) ItemResult {
	res := ItemResult{ItemID: item.ID, Action: ActionAdd}

	claimed, err := repo.MarkItemAdding(ctx, m.DB, item.ID, m.now())
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if !claimed {
		res.Error = "item is no longer queued"
		return res
	}

	creds, err := m.resolveCredentials(ws, upload)
	if err != nil {
		m.failItem(ctx, ws.Hash, item, domain.PhaseChatAdd, 0, err.Error())
		res.Error = err.Error()
		return res
	}

	sub, err := m.Client.SubmitContact(ctx, creds, chatguru.Contact{
		ChatNumber: item.ChatNumber,
		Name:       item.Name,
		Text:       item.Text,
		UserID:     item.UserID,
		DialogID:   item.DialogID,
	})
	if err != nil {
		code := 0
		var se *chatguru.SubmissionError
		if errors.As(err, &se) {
			code = se.Code
		}
		m.failItem(ctx, ws.Hash, item, domain.PhaseChatAdd, code, err.Error())
		res.Error = err.Error()
		return res
	}

	if m.uploadIsTerminal(ctx, upload.ID) {
		m.Log.Warn().
			Str("workspace", ws.Hash).
			Str("item_id", item.ID).
			Msg("dropping addition result, upload reached terminal status mid-call")
		res.Error = "upload is terminal"
		return res
	}

	if err := repo.MarkItemWaitingCheck(ctx, m.DB, item.ID, sub.ChatAddID, m.now()); err != nil {
		res.Error = err.Error()
		return res
	}
	m.logRun(ctx, ws.Hash, item, domain.PhaseChatAdd, domain.LevelInfo,
		"chat add accepted: "+sub.ChatAddID, 0)

	res.Success = true
	return res
}

// Check performs one status check for a waiting item. Pending results keep
// the item waiting and only refresh its description.
func (m *ItemMachine) Check(ctx context.Context, ws *domain.Workspace, upload *domain.Upload, item *domain.UploadItem) ItemResult {
	res := ItemResult{ItemID: item.ID, Action: ActionBatchCheck}

	creds, err := m.resolveCredentials(ws, upload)
	if err != nil {
		m.failItem(ctx, ws.Hash, item, domain.PhaseAddStatus, 0, err.Error())
		res.Error = err.Error()
		return res
	}

	st, err := m.Client.CheckSubmissionStatus(ctx, creds, item.ChatNumber, item.ChatAddID)
	if err != nil {
		m.failItem(ctx, ws.Hash, item, domain.PhaseAddStatus, 0, err.Error())
		res.Error = err.Error()
		return res
	}

	if m.uploadIsTerminal(ctx, upload.ID) {
		m.Log.Warn().
			Str("workspace", ws.Hash).
			Str("item_id", item.ID).
			Msg("dropping check result, upload reached terminal status mid-call")
		res.Error = "upload is terminal"
		return res
	}

	if st.Done() {
		if err := repo.MarkItemDone(ctx, m.DB, item.ID, m.now()); err != nil {
			res.Error = err.Error()
			return res
		}
		m.logRun(ctx, ws.Hash, item, domain.PhaseAddStatus, domain.LevelInfo,
			"chat addition confirmed", 0)
		res.Success = true
		return res
	}

	// Still pending on the platform side.
	msg := st.Description
	if msg == "" {
		msg = "still processing"
	}
	if err := repo.RefreshItemDescription(ctx, m.DB, item.ID, msg, m.now()); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Pending = true
	return res
}

// resolveCredentials merges the upload's captured secrets with the
// workspace's validated server and account identifiers.
func (m *ItemMachine) resolveCredentials(ws *domain.Workspace, upload *domain.Upload) (domain.Credentials, error) {
	creds := upload.Credentials
	if creds.Key == "" || creds.PhoneID == "" {
		return domain.Credentials{}, errors.New("upload is missing platform credentials")
	}
	creds.Server = ws.Server
	if creds.Server == "" {
		creds.Server = m.DefaultServer
	}
	creds.AccountID = ws.AccountID
	return creds, nil
}

// uploadIsTerminal re-reads the upload status right before an item write.
func (m *ItemMachine) uploadIsTerminal(ctx context.Context, uploadID string) bool {
	status, err := repo.GetUploadStatus(ctx, m.DB, uploadID)
	if err != nil {
		return false
	}
	return domain.IsTerminalUploadStatus(status)
}

// failItem persists an error transition plus its audit entry.
func (m *ItemMachine) failItem(ctx context.Context, workspaceHash string, item *domain.UploadItem, phase string, code int, msg string) {
	if m.uploadIsTerminal(ctx, item.UploadID) {
		return
	}
	if err := repo.MarkItemError(ctx, m.DB, item.ID, code, msg, m.now()); err != nil {
		m.Log.Warn().Err(err).Str("item_id", item.ID).Msg("item error write failed")
	}
	m.logRun(ctx, workspaceHash, item, phase, domain.LevelError, msg, code)
}

// logRun appends an audit entry; failures are downgraded to warnings.
func (m *ItemMachine) logRun(ctx context.Context, workspaceHash string, item *domain.UploadItem, phase, level, msg string, code int) {
	err := repo.InsertRunLog(ctx, m.DB, &domain.RunLog{
		WorkspaceHash: workspaceHash,
		UploadID:      item.UploadID,
		ItemID:        item.ID,
		Phase:         phase,
		Level:         level,
		Message:       msg,
		Code:          code,
	})
	if err != nil {
		m.Log.Warn().Err(err).Str("item_id", item.ID).Msg("run log write failed")
	}
}

func (m *ItemMachine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}
