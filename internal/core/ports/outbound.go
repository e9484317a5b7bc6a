package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// FileRepository persists file rows and their processing state.
type FileRepository interface {
	Create(ctx context.Context, file *domain.File) error
	GetByID(ctx context.Context, userID, id string) (*domain.File, error)
	FindByHash(ctx context.Context, userID, contentHash string) (*domain.File, error)
	List(ctx context.Context, query domain.FileQuery) ([]domain.FileSummary, error)
	CountByStatus(ctx context.Context, userID string) (domain.StatusCounts, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ProcessingStatus, errMessage string) error
	Requeue(ctx context.Context, id string, from domain.ProcessingStatus) (*domain.File, error)
	ListStuck(ctx context.Context, userID string, olderThan time.Time, limit int) ([]domain.File, error)
	Delete(ctx context.Context, userID, id string) error
}

// MetadataRepository stores analysis results and answers similarity queries.
type MetadataRepository interface {
	Save(ctx context.Context, meta *domain.FileMetadata) error
	Get(ctx context.Context, fileID string, includeText bool) (*domain.FileMetadata, error)
	SearchSimilar(ctx context.Context, vector []float32, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error)
	SearchKeyword(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error)
}

type SearchHistoryRepository interface {
	Record(ctx context.Context, entry *domain.SearchHistoryEntry) error
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.SearchHistoryEntry, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// ObjectStorage stores original uploads.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes processing jobs.
type MessageQueue interface {
	PublishFileUploaded(ctx context.Context, job domain.ProcessingJob) error
	SubscribeFileUploaded(ctx context.Context, handler func(context.Context, domain.ProcessingJob) error) error
}

// ContentExtractor runs the text extraction fallback chain for a stored file.
type ContentExtractor interface {
	Extract(ctx context.Context, file *domain.File) (domain.Extraction, error)
}

// Analyzer derives summary, keywords, topics and categories from text.
type Analyzer interface {
	Analyze(ctx context.Context, filename, text string) (domain.Analysis, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Chunker interface {
	Split(text string) []string
}

type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []domain.SearchHit) (string, error)
}

// LinkResolver turns a shared link into a downloadable body.
type LinkResolver interface {
	Resolve(ctx context.Context, rawURL string) (*RemoteFile, error)
}

type RemoteFile struct {
	Filename string
	MimeType string
	Body     io.ReadCloser
}

type FilesReportWriter interface {
	WriteFilesReport(w io.Writer, files []domain.FileSummary) error
}

type PackageBuilder interface {
	BuildPackage(w io.Writer, title, text string) error
}
