package xlsxio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// buildSheet produces an xlsx stream with the given header and rows.
func buildSheet(t *testing.T, header []string, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		t.Fatalf("set header: %v", err)
	}
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return &buf
}

func TestParse_HappyPath(t *testing.T) {
	buf := buildSheet(t,
		[]string{"chat_number", "name", "text", "user_id", "dialog_id"},
		[][]string{
			{" 5511999 ", " Alice ", " hi ", "u1", "d1"},
			{"5511888", "Bob", "", "", ""},
		},
	)

	rows, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Values are trimmed.
	if rows[0].ChatNumber != "5511999" || rows[0].Name != "Alice" || rows[0].Text != "hi" {
		t.Fatalf("row 0 not trimmed: %+v", rows[0])
	}
	if rows[1].ChatNumber != "5511888" || rows[1].Text != "" {
		t.Fatalf("row 1 mismatch: %+v", rows[1])
	}
}

func TestParse_ColumnOrderIndependent(t *testing.T) {
	buf := buildSheet(t,
		[]string{"name", "text", "chat_number"},
		[][]string{{"Alice", "hello", "5511999"}},
	)

	rows, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 1 || rows[0].ChatNumber != "5511999" || rows[0].Name != "Alice" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParse_SkipsIncompleteRows(t *testing.T) {
	buf := buildSheet(t,
		[]string{"chat_number", "name"},
		[][]string{
			{"5511999", "Alice"},
			{"", "NoNumber"},
			{"5511777", ""},
			{"5511888", "Bob"},
		},
	)

	rows, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "Alice" || rows[1].Name != "Bob" {
		t.Fatalf("invalid rows not skipped: %+v", rows)
	}
}

func TestParse_MissingRequiredColumns(t *testing.T) {
	buf := buildSheet(t,
		[]string{"phone", "name"},
		[][]string{{"5511999", "Alice"}},
	)

	_, err := Parse(buf)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestParse_NotASpreadsheet(t *testing.T) {
	if _, err := Parse(bytes.NewBufferString("plain text")); err == nil {
		t.Fatalf("expected error for non-xlsx input")
	}
}

func TestWriteTemplate_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTemplate(&buf); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open generated template: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(templateSheet)
	if err != nil {
		t.Fatalf("read template sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + example row, got %d rows", len(rows))
	}
	for i, want := range Headers {
		if rows[0][i] != want {
			t.Fatalf("header %d = %q; want %q", i, rows[0][i], want)
		}
	}

	// The template must parse through the intake reader.
	var again bytes.Buffer
	if err := WriteTemplate(&again); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	parsed, err := Parse(&again)
	if err != nil {
		t.Fatalf("Parse(template): %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected the example row, got %d", len(parsed))
	}
}

func TestWriteFailures_CarriesErrorDetail(t *testing.T) {
	items := []domain.UploadItem{
		{RowIndex: 3, ChatNumber: "5511999", Name: "Alice", LastErrorCode: 400, LastErrorMsg: "bad number", ChatAddID: "cg_1"},
		{RowIndex: 7, ChatNumber: "5511888", Name: "Bob", LastErrorCode: -1, LastErrorMsg: "canceled by user"},
	}

	var buf bytes.Buffer
	if err := WriteFailures(&buf, items); err != nil {
		t.Fatalf("WriteFailures: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open failures workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(failuresSheet)
	if err != nil {
		t.Fatalf("read failures sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "3" || rows[1][6] != "400" || rows[1][7] != "bad number" {
		t.Fatalf("row 1 mismatch: %v", rows[1])
	}
	if rows[2][6] != "-1" {
		t.Fatalf("cancellation code missing: %v", rows[2])
	}
}
