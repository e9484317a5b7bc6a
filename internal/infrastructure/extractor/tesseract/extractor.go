package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

type Options struct {
	Languages         string
	MaxPages          int
	Concurrency       int
	DPI               int
	TempDir           string
	DisablePreprocess bool
	Runner            Runner
}

// Extractor OCRs images directly and PDFs after rasterising them with pdftoppm.
// Each image is binarised before OCR; the untouched image is retried when that yields nothing.
type Extractor struct {
	languages   string
	maxPages    int
	concurrency int
	dpi         int
	tempDir     string
	preprocess  bool
	runner      Runner
}

func NewExtractor(opts Options) *Extractor {
	if opts.Languages == "" {
		opts.Languages = "eng"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	return &Extractor{
		languages:   opts.Languages,
		maxPages:    opts.MaxPages,
		concurrency: opts.Concurrency,
		dpi:         opts.DPI,
		tempDir:     opts.TempDir,
		preprocess:  !opts.DisablePreprocess,
		runner:      opts.Runner,
	}
}

func (e *Extractor) Name() string {
	return domain.MethodTesseract
}

func (e *Extractor) Supports(file *domain.File) bool {
	return file.Kind == domain.KindImage || file.MimeType == "application/pdf"
}

func (e *Extractor) Extract(ctx context.Context, file *domain.File, data []byte) (domain.Extraction, error) {
	dir, err := os.MkdirTemp(e.tempDir, "docvault-ocr-")
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	if file.MimeType == "application/pdf" {
		return e.extractPDF(ctx, dir, data)
	}

	ext := strings.ToLower(filepath.Ext(file.OriginalName))
	if ext == "" {
		ext = ".img"
	}
	input := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return domain.Extraction{}, fmt.Errorf("write ocr input: %w", err)
	}
	text, _, err := e.recognize(ctx, input)
	if err != nil {
		return domain.Extraction{}, err
	}
	return domain.Extraction{Text: text, Method: domain.MethodTesseract, PageCount: 1}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, dir string, data []byte) (domain.Extraction, error) {
	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return domain.Extraction{}, fmt.Errorf("write ocr input: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	if _, err := e.runner.Run(ctx, "pdftoppm",
		"-r", strconv.Itoa(e.dpi),
		"-png",
		"-f", "1",
		"-l", strconv.Itoa(e.maxPages),
		input, prefix,
	); err != nil {
		return domain.Extraction{}, fmt.Errorf("rasterise pdf: %w", err)
	}

	pages, err := listPages(dir)
	if err != nil {
		return domain.Extraction{}, err
	}
	if len(pages) == 0 {
		return domain.Extraction{}, errors.New("rasterise pdf: no pages produced")
	}

	texts := make([]string, len(pages))
	original := make([]bool, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, page := range pages {
		g.Go(func() error {
			text, raw, err := e.recognize(gctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			texts[i], original[i] = text, raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Extraction{}, err
	}

	var b strings.Builder
	for i, text := range texts {
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if original[i] {
			fmt.Fprintf(&b, "--- Page %d (original) ---\n%s", i+1, text)
		} else {
			fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, text)
		}
	}
	return domain.Extraction{Text: b.String(), Method: domain.MethodTesseract, PageCount: len(pages)}, nil
}

// recognize OCRs the preprocessed copy of an image. The bool is true when that copy
// produced nothing and the text came from the untouched image.
func (e *Extractor) recognize(ctx context.Context, image string) (string, bool, error) {
	if !e.preprocess {
		text, err := e.ocr(ctx, image)
		return text, false, err
	}

	prepared := preparedPath(image)
	if err := preprocessFile(image, prepared); err != nil {
		slog.Debug("ocr_preprocess_skipped", "image", filepath.Base(image), "error", err)
		text, err := e.ocr(ctx, image)
		return text, false, err
	}
	text, err := e.ocr(ctx, prepared)
	if err != nil {
		return "", false, err
	}
	if text != "" {
		return text, false, nil
	}

	text, err = e.ocr(ctx, image)
	if err != nil {
		return "", false, err
	}
	return text, text != "", nil
}

func (e *Extractor) ocr(ctx context.Context, image string) (string, error) {
	out, err := e.runner.Run(ctx, "tesseract", image, "stdout", "-l", e.languages, "--oem", "3", "--psm", "6")
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// listPages returns pdftoppm output files ordered by page number. pdftoppm zero-pads
// the suffix depending on the page count, so lexical order is not enough.
func listPages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("list rasterised pages: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})
	return matches, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
