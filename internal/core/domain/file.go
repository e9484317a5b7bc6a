package domain

import (
	"strings"
	"time"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusPending, StatusProcessing, StatusError},
	StatusProcessing: {StatusCompleted, StatusError, StatusPending},
	StatusError:      {StatusPending},
	StatusCompleted:  {StatusPending},
}

// CanTransition reports whether a file may move from one processing status to another.
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type FileKind string

const (
	KindDocument FileKind = "document"
	KindImage    FileKind = "image"
	KindVideo    FileKind = "video"
	KindAudio    FileKind = "audio"
)

func KindFromMime(mimeType string) FileKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

type File struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id,omitempty"`
	Filename            string           `json:"filename"`
	OriginalName        string           `json:"original_name"`
	MimeType            string           `json:"mime_type"`
	Kind                FileKind         `json:"kind"`
	SizeBytes           int64            `json:"size_bytes"`
	ContentHash         string           `json:"content_hash"`
	StoragePath         string           `json:"storage_path"`
	SourceURL           string           `json:"source_url,omitempty"`
	Status              ProcessingStatus `json:"processing_status"`
	Error               string           `json:"processing_error,omitempty"`
	RetryCount          int              `json:"retry_count"`
	ProcessingStartedAt *time.Time       `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time       `json:"processed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`

	// Duplicate is set on upload responses when identical content already existed.
	Duplicate bool `json:"duplicate,omitempty"`
}

// FileSummary is the list view of a file. It never carries extracted text or embeddings.
type FileSummary struct {
	File
	Summary     string   `json:"summary,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	TextPreview string   `json:"text_preview,omitempty"`
}

type FileDetail struct {
	File
	Metadata *FileMetadata `json:"metadata,omitempty"`
}

type FileMetadata struct {
	FileID           string    `json:"file_id"`
	Summary          string    `json:"summary"`
	Keywords         []string  `json:"keywords"`
	Topics           []string  `json:"topics"`
	Categories       []string  `json:"categories"`
	ExtractedText    string    `json:"extracted_text,omitempty"`
	ExtractionMethod string    `json:"extraction_method"`
	PageCount        int       `json:"page_count,omitempty"`
	Embedding        []float32 `json:"-"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Analysis is what the language model returns for an extracted text.
type Analysis struct {
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Topics     []string `json:"topics"`
	Categories []string `json:"categories"`
	Confidence float64  `json:"confidence"`
}

const (
	MethodEmbeddedText = "embedded_text"
	MethodSpreadsheet  = "spreadsheet"
	MethodPDFText      = "pdf_text"
	MethodWhisper      = "whisper"
	MethodTesseract    = "tesseract"
	MethodVision       = "google_vision"
)

type Extraction struct {
	Text      string
	Method    string
	PageCount int
}

type ProcessingJob struct {
	FileID     string    `json:"file_id" msgpack:"file_id"`
	Attempt    int       `json:"attempt" msgpack:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`
}

type FileQuery struct {
	UserID string
	Status ProcessingStatus
	Kind   FileKind
	Limit  int
	Offset int
}

type StatusCounts map[ProcessingStatus]int

type RetryReport struct {
	Requeued []string `json:"requeued"`
	Failed   []string `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

type UploadRequest struct {
	UserID    string
	Filename  string
	MimeType  string
	SourceURL string
}
