package usecase

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type IngestFileUseCase struct {
	repo     ports.FileRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	resolver ports.LinkResolver
	maxBytes int64
}

func NewIngestFileUseCase(
	repo ports.FileRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	resolver ports.LinkResolver,
	maxBytes int64,
) *IngestFileUseCase {
	return &IngestFileUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		resolver: resolver,
		maxBytes: maxBytes,
	}
}

func (uc *IngestFileUseCase) Upload(
	ctx context.Context,
	req domain.UploadRequest,
	body io.Reader,
) (*domain.File, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	buffered := bufio.NewReaderSize(body, 512)
	head, _ := buffered.Peek(512)
	mimeType := detectMimeType(req.MimeType, req.Filename, head)

	var source io.Reader = buffered
	if uc.maxBytes > 0 {
		source = io.LimitReader(buffered, uc.maxBytes+1)
	}
	counter := &countingHasher{hash: sha256.New()}
	if err := uc.storage.Save(ctx, storageKey, io.TeeReader(source, counter)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	if counter.n == 0 {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is empty"))
	}
	if uc.maxBytes > 0 && counter.n > uc.maxBytes {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}

	contentHash := hex.EncodeToString(counter.hash.Sum(nil))
	existing, err := uc.repo.FindByHash(ctx, req.UserID, contentHash)
	if err != nil && !domain.IsKind(err, domain.ErrFileNotFound) {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("lookup duplicate: %w", err)
	}
	if existing != nil {
		uc.discard(ctx, storageKey)
		existing.Duplicate = true
		return existing, nil
	}

	file := &domain.File{
		ID:           id,
		UserID:       req.UserID,
		Filename:     storageKey,
		OriginalName: req.Filename,
		MimeType:     mimeType,
		Kind:         domain.KindFromMime(mimeType),
		SizeBytes:    counter.n,
		ContentHash:  contentHash,
		StoragePath:  storageKey,
		SourceURL:    req.SourceURL,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, file); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create file record: %w", err)
	}

	job := domain.ProcessingJob{FileID: file.ID, Attempt: 1, EnqueuedAt: now}
	if err := uc.queue.PublishFileUploaded(ctx, job); err != nil {
		// The row stays pending; the stuck sweep picks it up later.
		return nil, fmt.Errorf("publish processing job: %w", err)
	}

	return file, nil
}

func (uc *IngestFileUseCase) ImportFromURL(ctx context.Context, userID, rawURL string) (*domain.File, error) {
	if uc.resolver == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "import", errors.New("link import is not configured"))
	}
	remote, err := uc.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("resolve link: %w", err)
	}
	defer remote.Body.Close()

	return uc.Upload(ctx, domain.UploadRequest{
		UserID:    userID,
		Filename:  remote.Filename,
		MimeType:  remote.MimeType,
		SourceURL: rawURL,
	}, remote.Body)
}

func (uc *IngestFileUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		slog.Warn("discard_object_failed", "storage_path", key, "error", err)
	}
}

type countingHasher struct {
	hash interface {
		io.Writer
		Sum([]byte) []byte
	}
	n int64
}

func (c *countingHasher) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.hash.Write(p)
}

func detectMimeType(declared, filename string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	if len(head) > 0 {
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
		if sniffed != "" {
			return sniffed
		}
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "file.bin"
	}
	return base
}
