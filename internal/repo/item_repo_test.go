package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// seedUpload inserts the parent upload row required by the items'
// foreign-key constraint before item fixtures reference it.
func seedUpload(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	up := domain.Upload{
		ID:            id,
		WorkspaceHash: testHash(0),
		Filename:      "f.xlsx",
		Status:        domain.UploadStatusQueued,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.Create(&up).Error; err != nil {
		t.Fatalf("seed upload: %v", err)
	}
}

func itemFixtures(uploadID string, n int) []domain.UploadItem {
	items := make([]domain.UploadItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.UploadItem{
			UploadID:      uploadID,
			WorkspaceHash: testHash(0),
			RowIndex:      i,
			ChatNumber:    fmt.Sprintf("55119900%02d", i),
			Name:          fmt.Sprintf("Contact %d", i),
		})
	}
	return items
}

func TestCreateItemsBulk_AssignsIDsAndDefaults(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	if err := CreateItemsBulk(context.Background(), db, nil); err != nil {
		t.Fatalf("empty bulk must be a no-op: %v", err)
	}

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("CreateItemsBulk: %v", err)
	}

	got, err := ListItems(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, it := range got {
		if it.ID == "" || it.State != domain.ItemStateQueued || it.RowIndex != i {
			t.Fatalf("item %d not defaulted: %+v", i, it)
		}
	}
}

func TestCreateItemsBulk_DuplicateRowIndexFailsWholeInsert(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 2)
	items[1].RowIndex = 0 // collide with items[0]
	if err := CreateItemsBulk(context.Background(), db, items); err == nil {
		t.Fatalf("expected unique-index violation")
	}
}

func TestNextQueuedItem_StrictRowOrder(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := NextQueuedItem(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("NextQueuedItem: %v", err)
	}
	if first.RowIndex != 0 {
		t.Fatalf("expected row 0 first, got %d", first.RowIndex)
	}

	if err := MarkItemDone(context.Background(), db, first.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkItemDone: %v", err)
	}
	second, err := NextQueuedItem(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("NextQueuedItem second: %v", err)
	}
	if second.RowIndex != 1 {
		t.Fatalf("expected row 1 next, got %d", second.RowIndex)
	}

	// Drained queue -> ErrNotFound.
	for _, it := range items[1:] {
		_ = MarkItemDone(context.Background(), db, it.ID, time.Now().UTC())
	}
	if _, err := NextQueuedItem(context.Background(), db, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound when drained, got %v", err)
	}
}

func TestMarkItemAdding_GuardsStateAndCountsAttempts(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 1)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	id := items[0].ID

	now := time.Now().UTC()
	okClaim, err := MarkItemAdding(context.Background(), db, id, now)
	if err != nil || !okClaim {
		t.Fatalf("MarkItemAdding = %v, %v", okClaim, err)
	}
	got, _ := GetItem(context.Background(), db, id)
	if got.State != domain.ItemStateAdding || got.Attempts != 1 {
		t.Fatalf("claim not applied: %+v", got)
	}

	// Second claim on the same item is rejected by the state predicate.
	okClaim, err = MarkItemAdding(context.Background(), db, id, now)
	if err != nil || okClaim {
		t.Fatalf("double claim must fail, got %v, %v", okClaim, err)
	}
}

func TestItemTransitions_WaitingDoneError(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 2)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()

	if err := MarkItemWaitingCheck(context.Background(), db, items[0].ID, "cg_1", now); err != nil {
		t.Fatalf("MarkItemWaitingCheck: %v", err)
	}
	got, _ := GetItem(context.Background(), db, items[0].ID)
	if got.State != domain.ItemStateWaitingCheck || got.ChatAddID != "cg_1" {
		t.Fatalf("waiting transition not applied: %+v", got)
	}

	if err := MarkItemError(context.Background(), db, items[1].ID, 400, "invalid number", now); err != nil {
		t.Fatalf("MarkItemError: %v", err)
	}
	got, _ = GetItem(context.Background(), db, items[1].ID)
	if got.State != domain.ItemStateError || got.LastErrorCode != 400 || got.LastErrorMsg != "invalid number" {
		t.Fatalf("error transition not applied: %+v", got)
	}

	if err := RefreshItemDescription(context.Background(), db, items[0].ID, "still syncing", now); err != nil {
		t.Fatalf("RefreshItemDescription: %v", err)
	}
	got, _ = GetItem(context.Background(), db, items[0].ID)
	if got.State != domain.ItemStateWaitingCheck || got.LastErrorMsg != "still syncing" {
		t.Fatalf("refresh must keep state: %+v", got)
	}
}

func TestListWaitingCheckItems_IncludesLegacyAliasExcludesUnsubmitted(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 4)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()

	// Row 0: canonical waiting state. Row 1: legacy alias spelling.
	// Row 2: waiting but without a submission id. Row 3: still queued.
	if err := MarkItemWaitingCheck(context.Background(), db, items[0].ID, "cg_0", now); err != nil {
		t.Fatalf("row 0: %v", err)
	}
	if err := db.Model(&domain.UploadItem{}).Where("id = ?", items[1].ID).
		Updates(map[string]any{"state": domain.ItemStateWaitingLegacy, "chat_add_id": "cg_1"}).Error; err != nil {
		t.Fatalf("row 1: %v", err)
	}
	if err := db.Model(&domain.UploadItem{}).Where("id = ?", items[2].ID).
		Update("state", domain.ItemStateWaitingCheck).Error; err != nil {
		t.Fatalf("row 2: %v", err)
	}

	list, err := ListWaitingCheckItems(context.Background(), db, "u1", 50)
	if err != nil {
		t.Fatalf("ListWaitingCheckItems: %v", err)
	}
	if len(list) != 2 || list[0].RowIndex != 0 || list[1].RowIndex != 1 {
		t.Fatalf("unexpected waiting set: %+v", list)
	}
}

func TestResetErrorItems_ClearsProgress(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()

	// One failed item with history, one done, one queued.
	if okClaim, _ := MarkItemAdding(context.Background(), db, items[0].ID, now); !okClaim {
		t.Fatalf("claim failed")
	}
	if err := MarkItemError(context.Background(), db, items[0].ID, 500, "platform glitch", now); err != nil {
		t.Fatalf("fail item: %v", err)
	}
	if err := MarkItemDone(context.Background(), db, items[1].ID, now); err != nil {
		t.Fatalf("done item: %v", err)
	}

	n, err := ResetErrorItems(context.Background(), db, "u1", now)
	if err != nil {
		t.Fatalf("ResetErrorItems: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset item, got %d", n)
	}
	got, _ := GetItem(context.Background(), db, items[0].ID)
	if got.State != domain.ItemStateQueued || got.Attempts != 0 || got.ChatAddID != "" ||
		got.LastErrorCode != 0 || got.LastErrorMsg != "" {
		t.Fatalf("reset incomplete: %+v", got)
	}
	// Done and queued items untouched.
	if got, _ := GetItem(context.Background(), db, items[1].ID); got.State != domain.ItemStateDone {
		t.Fatalf("done item must survive reset: %+v", got)
	}
}

func TestCancelQueuedItems_OnlyQueuedRows(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()
	if err := MarkItemWaitingCheck(context.Background(), db, items[0].ID, "cg_0", now); err != nil {
		t.Fatalf("waiting item: %v", err)
	}

	n, err := CancelQueuedItems(context.Background(), db, "u1", now)
	if err != nil {
		t.Fatalf("CancelQueuedItems: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 canceled items, got %d", n)
	}
	for _, id := range []string{items[1].ID, items[2].ID} {
		got, _ := GetItem(context.Background(), db, id)
		if got.State != domain.ItemStateError || got.LastErrorCode != domain.CancelErrorCode {
			t.Fatalf("cancel sentinel missing: %+v", got)
		}
	}
	// The in-flight item keeps its state.
	if got, _ := GetItem(context.Background(), db, items[0].ID); got.State != domain.ItemStateWaitingCheck {
		t.Fatalf("waiting item must survive cancel: %+v", got)
	}
}

func TestCountItemsByState(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()
	if err := MarkItemDone(context.Background(), db, items[0].ID, now); err != nil {
		t.Fatalf("done: %v", err)
	}

	counts, err := CountItemsByState(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("CountItemsByState: %v", err)
	}
	if counts[domain.ItemStateQueued] != 2 || counts[domain.ItemStateDone] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	global, err := GlobalItemStateCounts(context.Background(), db)
	if err != nil {
		t.Fatalf("GlobalItemStateCounts: %v", err)
	}
	if global[domain.ItemStateQueued] != 2 || global[domain.ItemStateDone] != 1 {
		t.Fatalf("unexpected global counts: %+v", global)
	}
}

func TestListFailedItems(t *testing.T) {
	db := newImportRepoDB(t, &domain.Upload{}, &domain.UploadItem{})
	seedUpload(t, db, "u1")

	items := itemFixtures("u1", 3)
	if err := CreateItemsBulk(context.Background(), db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()
	if err := MarkItemError(context.Background(), db, items[2].ID, 400, "bad number", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := MarkItemError(context.Background(), db, items[0].ID, 500, "glitch", now); err != nil {
		t.Fatalf("fail: %v", err)
	}

	failed, err := ListFailedItems(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ListFailedItems: %v", err)
	}
	if len(failed) != 2 || failed[0].RowIndex != 0 || failed[1].RowIndex != 2 {
		t.Fatalf("unexpected failed set: %+v", failed)
	}
}
