package xlsxio

import (
	"io"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "Chats"

// TemplateFilename is the suggested download name for the intake template.
const TemplateFilename = "add-chats-template.xlsx"

// WriteTemplate streams the intake template workbook: the expected headers
// in bold plus one example row.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), templateSheet); err != nil {
		return err
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(templateSheet, "A1", &header); err != nil {
		return err
	}
	example := []any{"5511999888777", "Maria Souza", "Hello, first message", "user123", "dialog456"}
	if err := f.SetSheetRow(templateSheet, "A2", &example); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(templateSheet, "A1", "E1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(templateSheet, "A", "E", 24); err != nil {
		return err
	}

	return f.Write(w)
}
