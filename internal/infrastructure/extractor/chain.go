package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

// Step is one extraction strategy in the fallback chain.
type Step interface {
	Name() string
	Supports(file *domain.File) bool
	Extract(ctx context.Context, file *domain.File, data []byte) (domain.Extraction, error)
}

type Options struct {
	// MinChars is the trimmed length at which a step's text is accepted without trying later steps.
	MinChars int
	MaxBytes int64
	// PageCounter fills PageCount for PDFs when the winning step did not.
	PageCounter func(data []byte) (int, error)
	Observe     func(step string, chars int, err error)
}

type Chain struct {
	storage ports.ObjectStorage
	steps   []Step
	opts    Options
}

func NewChain(storage ports.ObjectStorage, opts Options, steps ...Step) *Chain {
	if opts.MinChars <= 0 {
		opts.MinChars = 50
	}
	return &Chain{storage: storage, steps: steps, opts: opts}
}

func (c *Chain) Extract(ctx context.Context, file *domain.File) (domain.Extraction, error) {
	data, err := c.read(ctx, file)
	if err != nil {
		return domain.Extraction{}, err
	}

	var (
		best    domain.Extraction
		bestLen int
		errs    []error
		tried   int
	)
	for _, step := range c.steps {
		if !step.Supports(file) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		tried++

		result, err := step.Extract(ctx, file, data)
		result.Text = cleanText(result.Text)
		chars := utf8.RuneCountInString(result.Text)
		if c.opts.Observe != nil {
			c.opts.Observe(step.Name(), chars, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Name(), err))
			slog.Debug("extraction_step_failed", "file_id", file.ID, "step", step.Name(), "error", err)
			continue
		}
		if result.Method == "" {
			result.Method = step.Name()
		}
		if chars >= c.opts.MinChars {
			return c.finish(file, data, result), nil
		}
		if chars > bestLen {
			best, bestLen = result, chars
		}
	}

	if bestLen > 0 {
		return c.finish(file, data, best), nil
	}
	if tried == 0 {
		errs = append(errs, fmt.Errorf("no extractor supports %s", file.MimeType))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no extractor produced text"))
	}
	return domain.Extraction{}, domain.WrapError(domain.ErrExtractionFailed, "extract "+file.ID, errors.Join(errs...))
}

func (c *Chain) read(ctx context.Context, file *domain.File) ([]byte, error) {
	reader, err := c.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if c.opts.MaxBytes > 0 {
		src = io.LimitReader(reader, c.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	if c.opts.MaxBytes > 0 && int64(len(data)) > c.opts.MaxBytes {
		return nil, domain.WrapError(domain.ErrExtractionFailed, "read source file",
			fmt.Errorf("file exceeds processing limit of %d bytes", c.opts.MaxBytes))
	}
	return data, nil
}

func (c *Chain) finish(file *domain.File, data []byte, result domain.Extraction) domain.Extraction {
	if result.PageCount == 0 && c.opts.PageCounter != nil && file.MimeType == "application/pdf" {
		if pages, err := c.opts.PageCounter(data); err == nil {
			result.PageCount = pages
		} else {
			slog.Debug("pdf_page_count_failed", "file_id", file.ID, "error", err)
		}
	}
	return result
}

// cleanText drops NUL bytes and invalid UTF-8 so that undecodable text layers do not count toward MinChars.
func cleanText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToValidUTF8(text, ""), "\x00", ""))
}
