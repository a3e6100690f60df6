// Package xlsxio reads and writes the spreadsheet formats of the import
// flow: the intake sheet with contact rows, the downloadable template, and
// the failure report.
package xlsxio

import (
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers of the intake sheet. The first two are required; the rest
// are optional per row.
const (
	ColChatNumber = "chat_number"
	ColName       = "name"
	ColText       = "text"
	ColUserID     = "user_id"
	ColDialogID   = "dialog_id"
)

// Headers lists the template columns in order.
var Headers = []string{ColChatNumber, ColName, ColText, ColUserID, ColDialogID}

var (
	// ErrNoWorksheet is returned when the workbook holds no sheets.
	ErrNoWorksheet = errors.New("no worksheet found in file")

	// ErrMissingColumns is returned when the header row lacks the required
	// chat_number or name columns.
	ErrMissingColumns = errors.New("missing required columns: chat_number, name")
)

// Row is one parsed contact row.
type Row struct {
	ChatNumber string
	Name       string
	Text       string
	UserID     string
	DialogID   string
}

// Parse reads the first worksheet of an xlsx stream. The header row must
// contain chat_number and name; rows missing either value are skipped.
// All cell values are trimmed.
func Parse(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}

	idx := headerIndex(rows[0])
	if _, ok := idx[ColChatNumber]; !ok {
		return nil, ErrMissingColumns
	}
	if _, ok := idx[ColName]; !ok {
		return nil, ErrMissingColumns
	}

	out := make([]Row, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		chatNumber := cellAt(cells, idx, ColChatNumber)
		name := cellAt(cells, idx, ColName)
		if chatNumber == "" || name == "" {
			continue
		}
		out = append(out, Row{
			ChatNumber: chatNumber,
			Name:       name,
			Text:       cellAt(cells, idx, ColText),
			UserID:     cellAt(cells, idx, ColUserID),
			DialogID:   cellAt(cells, idx, ColDialogID),
		})
	}
	return out, nil
}

// headerIndex maps trimmed header names to their column positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h != "" {
			idx[h] = i
		}
	}
	return idx
}

func cellAt(cells []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
