package xlsxio

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

const failuresSheet = "Failures"

// FailuresFilename is the suggested download name for an upload's failure
// report.
func FailuresFilename(uploadID string) string {
	return "failures-" + uploadID + ".xlsx"
}

var failureHeaders = []string{
	"row_index", ColChatNumber, ColName, ColText, ColUserID, ColDialogID,
	"error_code", "error_message", "chat_add_id",
}

// WriteFailures streams a workbook of failed items, one row per item in
// row order.
func WriteFailures(w io.Writer, items []domain.UploadItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), failuresSheet); err != nil {
		return err
	}

	header := make([]any, len(failureHeaders))
	for i, h := range failureHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(failuresSheet, "A1", &header); err != nil {
		return err
	}

	for i, item := range items {
		code := ""
		if item.LastErrorCode != 0 {
			code = strconv.Itoa(item.LastErrorCode)
		}
		row := []any{
			item.RowIndex,
			item.ChatNumber,
			item.Name,
			item.Text,
			item.UserID,
			item.DialogID,
			code,
			item.LastErrorMsg,
			item.ChatAddID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(failuresSheet, cell, &row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(failuresSheet, "A1", "I1", bold); err != nil {
		return err
	}

	return f.Write(w)
}
