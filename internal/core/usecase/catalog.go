package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// FileCatalogUseCase serves list and detail views without touching large columns
// unless a caller explicitly asks for the extracted text.
type FileCatalogUseCase struct {
	repo         ports.FileRepository
	metadata     ports.MetadataRepository
	storage      ports.ObjectStorage
	stuckTimeout time.Duration
	now          func() time.Time
}

func NewFileCatalogUseCase(
	repo ports.FileRepository,
	metadata ports.MetadataRepository,
	storage ports.ObjectStorage,
	stuckTimeout time.Duration,
) *FileCatalogUseCase {
	if stuckTimeout <= 0 {
		stuckTimeout = 10 * time.Minute
	}
	return &FileCatalogUseCase{
		repo:         repo,
		metadata:     metadata,
		storage:      storage,
		stuckTimeout: stuckTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (uc *FileCatalogUseCase) List(ctx context.Context, query domain.FileQuery) ([]domain.FileSummary, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list files", fmt.Errorf("unknown status %q", query.Status))
	}
	query.Limit = normalizeLimit(query.Limit, defaultListLimit, maxListLimit)
	if query.Offset < 0 {
		query.Offset = 0
	}

	files, err := uc.repo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (uc *FileCatalogUseCase) Get(ctx context.Context, userID, id string, includeText bool) (*domain.FileDetail, error) {
	file, err := uc.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}

	detail := &domain.FileDetail{File: *file}
	if file.Status != domain.StatusCompleted {
		return detail, nil
	}

	meta, err := uc.metadata.Get(ctx, file.ID, includeText)
	if err != nil {
		if domain.IsKind(err, domain.ErrFileNotFound) {
			return detail, nil
		}
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	detail.Metadata = meta
	return detail, nil
}

func (uc *FileCatalogUseCase) Stats(ctx context.Context, userID string) (domain.StatusCounts, error) {
	counts, err := uc.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count files by status: %w", err)
	}
	for _, status := range []domain.ProcessingStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusError,
	} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

func (uc *FileCatalogUseCase) Delete(ctx context.Context, userID, id string) error {
	file, err := uc.repo.GetByID(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("fetch file: %w", err)
	}
	if file.Status == domain.StatusProcessing && inFlight(file, uc.now(), uc.stuckTimeout) {
		return domain.WrapError(domain.ErrConflict, "delete file", errors.New("file is currently processing"))
	}

	if err := uc.repo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if err := uc.storage.Delete(ctx, file.StoragePath); err != nil {
		slog.Warn("delete_object_failed", "file_id", id, "storage_path", file.StoragePath, "error", err)
	}
	return nil
}

func (uc *FileCatalogUseCase) OpenContent(ctx context.Context, userID, id string) (*domain.File, io.ReadCloser, error) {
	file, err := uc.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch file: %w", err)
	}
	reader, err := uc.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored object: %w", err)
	}
	return file, reader, nil
}

func normalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
