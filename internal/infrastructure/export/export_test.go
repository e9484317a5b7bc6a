package export

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func TestWriteFilesReport(t *testing.T) {
	processed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	files := []domain.FileSummary{
		{
			File: domain.File{
				OriginalName: "algebra.pdf",
				Kind:         domain.KindDocument,
				Status:       domain.StatusCompleted,
				SizeBytes:    2048,
				CreatedAt:    processed.Add(-time.Hour),
				ProcessedAt:  &processed,
			},
			Summary:    "Linear equations",
			Keywords:   []string{"algebra", "equations"},
			Categories: []string{"mathematics"},
			Confidence: 0.9,
		},
		{File: domain.File{OriginalName: "broken.png", Kind: domain.KindImage, Status: domain.StatusError, Error: "no text"}},
	}

	var buf bytes.Buffer
	if err := NewXLSXReportWriter().WriteFilesReport(&buf, files); err != nil {
		t.Fatalf("WriteFilesReport() error = %v", err)
	}

	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(filesSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "Name" || rows[1][0] != "algebra.pdf" || rows[1][5] != "algebra, equations" {
		t.Fatalf("unexpected rows: %v", rows[:2])
	}
	if rows[1][11] != "2026-03-01T10:00:00Z" {
		t.Fatalf("processed = %q", rows[1][11])
	}
	if rows[2][2] != "error" || rows[2][9] != "no text" {
		t.Fatalf("unexpected error row: %v", rows[2])
	}
}

func TestBuildPackage(t *testing.T) {
	var buf bytes.Buffer
	text := "Intro line one\nline two\n\n<b>Second</b> & more\n\n\n"
	if err := NewSCORMBuilder().BuildPackage(&buf, "Fractions & Ratios", text); err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[f.Name] = string(data)
	}

	manifest, ok := contents["imsmanifest.xml"]
	if !ok {
		t.Fatalf("manifest missing: %v", contents)
	}
	if !strings.Contains(manifest, "<schemaversion>1.2</schemaversion>") || !strings.Contains(manifest, "<title>Fractions &amp; Ratios</title>") {
		t.Fatalf("unexpected manifest: %s", manifest)
	}

	index := contents["index.html"]
	if !strings.Contains(index, "<p>Intro line one line two</p>") {
		t.Fatalf("paragraphs not folded: %s", index)
	}
	if !strings.Contains(index, "&lt;b&gt;Second&lt;/b&gt; &amp; more") {
		t.Fatalf("text not escaped: %s", index)
	}
	if !strings.Contains(index, "LMSInitialize") {
		t.Fatalf("scorm api adapter missing")
	}
	if strings.Count(index, "<p>") != 2 {
		t.Fatalf("expected 2 paragraphs: %s", index)
	}
}

func TestParagraphsSkipsBlankBlocks(t *testing.T) {
	got := paragraphs("\r\n\r\na\r\nb\r\n\r\n   \n\nc")
	if strings.Join(got, "|") != "a b|c" {
		t.Fatalf("paragraphs() = %q", got)
	}
}
