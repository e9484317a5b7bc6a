package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const filesSheet = "Files"

var filesHeader = []any{
	"Name", "Kind", "Status", "Size (bytes)", "Summary", "Keywords", "Categories",
	"Confidence", "Retries", "Error", "Uploaded", "Processed",
}

// XLSXReportWriter renders the file inventory as a single-sheet workbook.
type XLSXReportWriter struct{}

func NewXLSXReportWriter() *XLSXReportWriter {
	return &XLSXReportWriter{}
}

func (XLSXReportWriter) WriteFilesReport(w io.Writer, files []domain.FileSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", filesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(filesSheet, "A1", &filesHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(filesSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, file := range files {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			file.OriginalName,
			string(file.Kind),
			string(file.Status),
			file.SizeBytes,
			file.Summary,
			strings.Join(file.Keywords, ", "),
			strings.Join(file.Categories, ", "),
			file.Confidence,
			file.RetryCount,
			file.Error,
			file.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(file.ProcessedAt),
		}
		if err := f.SetSheetRow(filesSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(filesSheet, "A", "A", 40)
	_ = f.SetColWidth(filesSheet, "E", "E", 80)
	_ = f.SetColWidth(filesSheet, "F", "G", 30)
	if err := f.SetPanes(filesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
