// Package services – Aggregator
//
// This file implements the Aggregator, the only writer of upload counters
// and (cancellation aside) upload status. After every tick pass it recounts
// items by state, rolls the counts up into the upload row, and credits the
// usage ledger with the delta of newly-confirmed additions.
//
// Invariants enforced here:
//   - processed_rows == succeeded_rows + failed_rows after every pass.
//   - An upload is never reported completed while any item is queued, even
//     if a stale counter read momentarily suggests otherwise.
//   - Canceled uploads are never touched.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// Aggregator recomputes upload aggregates from item states.
type Aggregator struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now is a clock seam for tests.
	Now func() time.Time
}

// Recompute rolls up the item states of one upload into its counters and
// status, and records the usage delta for newly-confirmed additions.
func (a *Aggregator) Recompute(ctx context.Context, uploadID string) error {
	upload, err := repo.GetUpload(ctx, a.DB, uploadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	// User cancellation is final; an aggregation pass must not resurrect
	// the upload.
	if upload.Status == domain.UploadStatusCanceled {
		return nil
	}

	counts, err := repo.CountItemsByState(ctx, a.DB, upload.ID)
	if err != nil {
		return err
	}

	queued := counts[domain.ItemStateQueued]
	adding := counts[domain.ItemStateAdding]
	waiting := counts[domain.ItemStateWaitingCheck] + counts[domain.ItemStateWaitingLegacy]
	succeeded := counts[domain.ItemStateDone]
	failed := counts[domain.ItemStateError]

	total := 0
	for _, n := range counts {
		total += n
	}
	processing := adding + waiting
	processed := succeeded + failed

	completed := processed == total && queued == 0 && processing == 0
	// Safety clamp: queued items always hold the upload open.
	if queued > 0 {
		completed = false
	}

	status := domain.UploadStatusRunning
	switch {
	case completed:
		status = domain.UploadStatusCompleted
	case queued == 0 && adding == 0 && waiting > 0:
		status = domain.UploadStatusChecking
	}

	now := a.now()

	// Credit the ledger with newly-confirmed additions. Ledger failures
	// are logged and swallowed; they must never stall the pipeline. A
	// recount below the persisted counter means a write went missing
	// somewhere; it is reported, never applied.
	switch delta := succeeded - upload.SucceededRows; {
	case delta > 0:
		a.recordUsage(ctx, upload, delta)
	case delta < 0:
		credited, creditErr := repo.UploadUsage(ctx, a.DB, upload.ID)
		a.Log.Warn().
			Err(creditErr).
			Str("upload_id", upload.ID).
			Int("succeeded", succeeded).
			Int("recorded", upload.SucceededRows).
			Int64("credited", credited).
			Msg("negative usage delta, not applied")
	}

	startedAt := upload.StartedAt
	if startedAt == nil && (processing > 0 || processed > 0) {
		startedAt = &now
	}
	var completedAt *time.Time
	if status == domain.UploadStatusCompleted {
		completedAt = &now
	}

	return repo.ApplyUploadAggregate(ctx, a.DB, upload.ID, repo.UploadAggregate{
		ProcessedRows: processed,
		SucceededRows: succeeded,
		FailedRows:    failed,
		Status:        status,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
	})
}

func (a *Aggregator) recordUsage(ctx context.Context, upload *domain.Upload, delta int) {
	accountID := upload.Credentials.AccountID
	if accountID == "" {
		ws, err := repo.GetWorkspace(ctx, a.DB, upload.WorkspaceHash)
		if err != nil {
			a.warnUsage(ctx, upload, err)
			return
		}
		accountID = ws.AccountID
	}
	if accountID == "" {
		return
	}
	if err := repo.InsertUsageRecord(ctx, a.DB, accountID, upload.WorkspaceHash, upload.ID, delta); err != nil {
		a.warnUsage(ctx, upload, err)
	}
}

func (a *Aggregator) warnUsage(ctx context.Context, upload *domain.Upload, cause error) {
	a.Log.Warn().Err(cause).Str("upload_id", upload.ID).Msg("usage ledger write failed")
	err := repo.InsertRunLog(ctx, a.DB, &domain.RunLog{
		WorkspaceHash: upload.WorkspaceHash,
		UploadID:      upload.ID,
		Phase:         domain.PhaseTick,
		Level:         domain.LevelWarn,
		Message:       "failed to track usage: " + cause.Error(),
	})
	if err != nil {
		a.Log.Warn().Err(err).Str("upload_id", upload.ID).Msg("run log write failed")
	}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}
