package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// Extractor reads the embedded text layer of a PDF page by page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return domain.MethodPDFText
}

func (e *Extractor) Supports(file *domain.File) bool {
	return file.MimeType == "application/pdf"
}

func (e *Extractor) Extract(ctx context.Context, _ *domain.File, data []byte) (result domain.Extraction, err error) {
	// The parser panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			result = domain.Extraction{}
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	parts := make([]string, 0, pages)
	var pageErrs []error
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 && len(pageErrs) > 0 {
		return domain.Extraction{}, errors.Join(pageErrs...)
	}

	return domain.Extraction{
		Text:      strings.Join(parts, "\n\n"),
		Method:    domain.MethodPDFText,
		PageCount: pages,
	}, nil
}

var disableConfigDir sync.Once

// PageCount reads the page tree with pdfcpu in relaxed mode.
func PageCount(data []byte) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}
