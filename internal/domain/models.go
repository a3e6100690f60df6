// Package domain defines the persistence models for workspaces, uploads,
// upload items, run logs, and usage records. These types are mapped with
// GORM and form the core data layer of the bulk chat import application.
package domain

import "time"

// Upload lifecycle statuses. An upload is "active" (selectable by the tick
// driver) while in queued, running, or checking; completed, failed, and
// canceled are terminal except for an explicit retry-reset.
const (
	UploadStatusQueued    = "queued"
	UploadStatusRunning   = "running"
	UploadStatusChecking  = "checking"
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
	UploadStatusCanceled  = "canceled"
)

// Item processing states. The happy path is
// queued → adding → waiting_batch_check → done; error is reachable from
// adding and waiting_batch_check and can be reset to queued by a retry.
const (
	ItemStateQueued       = "queued"
	ItemStateAdding       = "adding"
	ItemStateWaitingCheck = "waiting_batch_check"
	ItemStateDone         = "done"
	ItemStateError        = "error"

	// ItemStateWaitingLegacy is the pre-2.0 spelling of waiting_batch_check.
	// It is honored on reads for old rows and never written.
	ItemStateWaitingLegacy = "waiting_status"
)

// Run log phase tags and severities.
const (
	PhaseTick      = "tick"
	PhaseChatAdd   = "chat_add"
	PhaseAddStatus = "chat_add_status"
	PhaseRetry     = "retry"
	PhaseCancel    = "cancel"
	PhaseCleanup   = "cleanup"

	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// CancelErrorCode is the sentinel error code written to queued items when
// their upload is canceled by the user.
const CancelErrorCode = -1

// ActiveUploadStatuses lists the statuses the scheduler considers live.
var ActiveUploadStatuses = []string{UploadStatusQueued, UploadStatusRunning, UploadStatusChecking}

// IsTerminalUploadStatus reports whether the status permits no further
// scheduler-driven mutation of the upload.
func IsTerminalUploadStatus(status string) bool {
	switch status {
	case UploadStatusCompleted, UploadStatusFailed, UploadStatusCanceled:
		return true
	}
	return false
}

// IsWaitingCheck reports whether an item state means "submitted, awaiting
// platform confirmation", accepting the legacy alias.
func IsWaitingCheck(state string) bool {
	return state == ItemStateWaitingCheck || state == ItemStateWaitingLegacy
}

// Credentials are the secrets needed to call the external platform on
// behalf of one upload. They are captured once at upload time and owned by
// the upload row (never re-entered per item). Server and AccountID are
// resolved from the already-validated workspace when the call is made.
type Credentials struct {
	Key       string `json:"key"`
	PhoneID   string `json:"phone_id"`
	Server    string `json:"server,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// Workspace is a tenant scope derived deterministically from a set of
// external credentials: the same credentials always hash to the same row,
// which makes re-validation idempotent.
//
// The two timestamps are the shared rate-limiting resource per tenant:
// LastOutboundAt gates the 10-second call spacing and LastAdditionAt
// starts the settle period before the checking phase.
type Workspace struct {
	Hash              string     `json:"workspace_hash"      gorm:"column:workspace_hash;type:char(64);primaryKey"`
	AccountID         string     `json:"account_id"          gorm:"type:varchar(64);index"`
	Server            string     `json:"server"              gorm:"type:varchar(32)"`
	LastOutboundAt    *time.Time `json:"last_outbound_at"    gorm:"index"`
	LastAdditionAt    *time.Time `json:"last_addition_at"`
	CheckingStartedAt *time.Time `json:"checking_started_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TableName returns the database table name for Workspace.
func (Workspace) TableName() string { return "workspaces" }

// Upload represents one bulk-import job: a spreadsheet accepted from a
// user, its aggregate row counters, and the credentials used to submit its
// rows. Counters and status are recomputed by the aggregator after every
// tick pass; user cancellation is the only outside writer of Status.
type Upload struct {
	ID            string      `json:"id"             gorm:"type:char(36);primaryKey"`
	WorkspaceHash string      `json:"workspace_hash" gorm:"type:char(64);not null;index:idx_ws_uploads"`
	Filename      string      `json:"filename"       gorm:"type:varchar(255);not null"`
	TotalRows     int         `json:"total_rows"     gorm:"not null;default:0"`
	ProcessedRows int         `json:"processed_rows" gorm:"not null;default:0"`
	SucceededRows int         `json:"succeeded_rows" gorm:"not null;default:0"`
	FailedRows    int         `json:"failed_rows"    gorm:"not null;default:0"`
	Status        string      `json:"status"         gorm:"type:varchar(16);not null;default:'queued';index"`
	Credentials   Credentials `json:"-"              gorm:"serializer:json"`
	StartedAt     *time.Time  `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at"`
	CreatedAt     time.Time   `json:"created_at"`
}

// TableName returns the database table name for Upload.
func (Upload) TableName() string { return "uploads" }

// UploadItem is one contact row of an upload and its individual processing
// state. RowIndex is unique within an upload and defines the strict FIFO
// order of the addition phase. ChatAddID is empty until the platform
// acknowledges the addition; Attempts counts addition attempts only.
type UploadItem struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UploadID      string    `json:"upload_id"       gorm:"type:char(36);not null;index:idx_item_state,priority:1;uniqueIndex:ux_upload_row,priority:1"`
	WorkspaceHash string    `json:"workspace_hash"  gorm:"type:char(64);not null;index"`
	RowIndex      int       `json:"row_index"       gorm:"not null;uniqueIndex:ux_upload_row,priority:2"`
	ChatNumber    string    `json:"chat_number"     gorm:"type:varchar(32);not null"`
	Name          string    `json:"name"            gorm:"type:varchar(255);not null"`
	Text          string    `json:"text,omitempty"       gorm:"type:text"`
	UserID        string    `json:"user_id,omitempty"    gorm:"type:varchar(64)"`
	DialogID      string    `json:"dialog_id,omitempty"  gorm:"type:varchar(64)"`
	State         string    `json:"state"           gorm:"type:varchar(24);not null;default:'queued';index:idx_item_state,priority:2"`
	ChatAddID     string    `json:"chat_add_id,omitempty" gorm:"type:varchar(64)"`
	Attempts      int       `json:"attempts"        gorm:"not null;default:0"`
	LastErrorCode int       `json:"last_error_code,omitempty"`
	LastErrorMsg  string    `json:"last_error_message,omitempty" gorm:"column:last_error_message;type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Upload is the owning job. Items are cascade-deleted with it.
	Upload Upload `json:"-" gorm:"foreignKey:UploadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UploadItem.
func (UploadItem) TableName() string { return "upload_items" }

// RunLog is an append-only audit record. The core only ever inserts rows;
// reading is left to the admin API.
type RunLog struct {
	ID            uint      `json:"id"             gorm:"primaryKey;autoIncrement"`
	WorkspaceHash string    `json:"workspace_hash" gorm:"type:char(64);not null;index"`
	UploadID      string    `json:"upload_id,omitempty" gorm:"type:char(36);index"`
	ItemID        string    `json:"item_id,omitempty"   gorm:"type:char(36)"`
	Phase         string    `json:"phase"          gorm:"type:varchar(24);not null"`
	Level         string    `json:"level"          gorm:"type:varchar(8);not null"`
	Message       string    `json:"message"        gorm:"type:text"`
	Code          int       `json:"code,omitempty"`
	At            time.Time `json:"at"             gorm:"autoCreateTime;index"`
}

// TableName returns the database table name for RunLog.
func (RunLog) TableName() string { return "run_logs" }

// UsageRecord is one ledger entry of successful additions attributed to an
// external account. Each row stores the delta of newly-succeeded items
// observed by one aggregation pass, never a running total; cumulative
// usage is the sum over all rows for the account.
type UsageRecord struct {
	ID            uint      `json:"id"             gorm:"primaryKey;autoIncrement"`
	AccountID     string    `json:"account_id"     gorm:"type:varchar(64);not null;index"`
	WorkspaceHash string    `json:"workspace_hash" gorm:"type:char(64);not null"`
	UploadID      string    `json:"upload_id"      gorm:"type:char(36);not null"`
	ChatsAdded    int       `json:"chats_added"    gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for UsageRecord.
func (UsageRecord) TableName() string { return "usage_records" }
