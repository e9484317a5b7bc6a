package plaintext

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".xml": true, ".html": true, ".htm": true, ".log": true, ".srt": true, ".vtt": true,
}

// Extractor reads files that already are UTF-8 text.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return domain.MethodEmbeddedText
}

func (e *Extractor) Supports(file *domain.File) bool {
	mimeType := strings.ToLower(file.MimeType)
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return true
	case mimeType == "application/json", mimeType == "application/xml":
		return true
	default:
		return textExtensions[strings.ToLower(filepath.Ext(file.OriginalName))]
	}
}

func (e *Extractor) Extract(_ context.Context, file *domain.File, data []byte) (domain.Extraction, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return domain.Extraction{}, errors.New("content is not valid UTF-8 text: " + file.OriginalName)
	}
	return domain.Extraction{
		Text:   strings.TrimSpace(string(data)),
		Method: domain.MethodEmbeddedText,
	}, nil
}
