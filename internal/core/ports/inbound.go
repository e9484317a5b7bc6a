package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// FileIngestor is the inbound contract for upload orchestration.
type FileIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest, body io.Reader) (*domain.File, error)
	ImportFromURL(ctx context.Context, userID, rawURL string) (*domain.File, error)
}

// FileCatalog is the non-blocking read model over uploaded files.
type FileCatalog interface {
	List(ctx context.Context, query domain.FileQuery) ([]domain.FileSummary, error)
	Get(ctx context.Context, userID, id string, includeText bool) (*domain.FileDetail, error)
	Stats(ctx context.Context, userID string) (domain.StatusCounts, error)
	Delete(ctx context.Context, userID, id string) error
	OpenContent(ctx context.Context, userID, id string) (*domain.File, io.ReadCloser, error)
}

// FileProcessor is the inbound contract for asynchronous file processing.
type FileProcessor interface {
	ProcessJob(ctx context.Context, job domain.ProcessingJob) error
}

// RetryService surfaces stuck files and puts them back in the queue.
type RetryService interface {
	ListStuck(ctx context.Context, userID string) ([]domain.File, error)
	RetryStuck(ctx context.Context, userID string) (domain.RetryReport, error)
	RetryFile(ctx context.Context, userID, id string) (*domain.File, error)
}

type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
	History(ctx context.Context, userID string, limit int) ([]domain.SearchHistoryEntry, error)
}

type ChatService interface {
	Ask(ctx context.Context, req domain.ChatRequest) (*domain.Answer, error)
}

type ReportService interface {
	WriteFilesReport(ctx context.Context, userID string, w io.Writer) error
	WriteSCORMPackage(ctx context.Context, userID, fileID string, w io.Writer) error
}

type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.IssuedSession, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}
