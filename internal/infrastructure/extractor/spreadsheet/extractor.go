package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Extractor flattens xlsx workbooks into tab-separated text, one block per sheet.
type Extractor struct {
	maxRows int
}

func NewExtractor(maxRows int) *Extractor {
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &Extractor{maxRows: maxRows}
}

func (e *Extractor) Name() string {
	return domain.MethodSpreadsheet
}

func (e *Extractor) Supports(file *domain.File) bool {
	return file.MimeType == xlsxMime || strings.EqualFold(filepath.Ext(file.OriginalName), ".xlsx")
}

func (e *Extractor) Extract(_ context.Context, _ *domain.File, data []byte) (domain.Extraction, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = book.Close()
	}()

	var (
		b     strings.Builder
		total int
	)
	sheets := book.GetSheetList()
	for _, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", sheet)
		for _, row := range rows {
			if total >= e.maxRows {
				break
			}
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
			total++
		}
		b.WriteByte('\n')
	}

	return domain.Extraction{
		Text:      strings.TrimSpace(b.String()),
		Method:    domain.MethodSpreadsheet,
		PageCount: len(sheets),
	}, nil
}
