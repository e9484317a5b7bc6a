package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const previewChars = 300

const fileColumns = `id, user_id, filename, original_name, mime_type, kind, size_bytes, content_hash, storage_path,
	source_url, processing_status, processing_error, retry_count, processing_started_at, processed_at, created_at, updated_at`

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO files (`+fileColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		file.ID, file.UserID, file.Filename, file.OriginalName, file.MimeType, string(file.Kind), file.SizeBytes,
		file.ContentHash, file.StoragePath, file.SourceURL, string(file.Status), file.Error, file.RetryCount,
		file.ProcessingStartedAt, file.ProcessedAt, file.CreatedAt, file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, userID, id string) (*domain.File, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE id = $1 AND ($2 = '' OR user_id = $2)
`, id, userID)

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "get file", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return file, nil
}

func (r *FileRepository) FindByHash(ctx context.Context, userID, contentHash string) (*domain.File, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE user_id = $1 AND content_hash = $2
ORDER BY created_at
LIMIT 1
`, userID, contentHash)

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "find file by hash", fmt.Errorf("hash=%s", contentHash))
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return file, nil
}

// List reads the catalog view. Full extracted text and embeddings are never selected.
func (r *FileRepository) List(ctx context.Context, query domain.FileQuery) ([]domain.FileSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.user_id, f.filename, f.original_name, f.mime_type, f.kind, f.size_bytes, f.content_hash, f.storage_path,
	f.source_url, f.processing_status, f.processing_error, f.retry_count, f.processing_started_at, f.processed_at,
	f.created_at, f.updated_at,
	m.summary, m.keywords, m.categories, m.confidence, left(m.extracted_text, $6)
FROM files f
LEFT JOIN file_metadata m ON m.file_id = f.id
WHERE ($1 = '' OR f.user_id = $1)
	AND ($2 = '' OR f.processing_status = $2)
	AND ($3 = '' OR f.kind = $3)
ORDER BY f.created_at DESC
LIMIT $4 OFFSET $5
`, query.UserID, string(query.Status), string(query.Kind), query.Limit, query.Offset, previewChars)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FileSummary, 0)
	for rows.Next() {
		var (
			summary    domain.FileSummary
			status     string
			kind       string
			started    sql.NullTime
			processed  sql.NullTime
			metaSum    sql.NullString
			keywords   []byte
			categories []byte
			confidence sql.NullFloat64
			preview    sql.NullString
		)
		f := &summary.File
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.Filename, &f.OriginalName, &f.MimeType, &kind, &f.SizeBytes, &f.ContentHash,
			&f.StoragePath, &f.SourceURL, &status, &f.Error, &f.RetryCount, &started, &processed,
			&f.CreatedAt, &f.UpdatedAt,
			&metaSum, &keywords, &categories, &confidence, &preview,
		); err != nil {
			return nil, fmt.Errorf("scan file summary: %w", err)
		}
		f.Status = domain.ProcessingStatus(status)
		f.Kind = domain.FileKind(kind)
		f.ProcessingStartedAt = nullTimePtr(started)
		f.ProcessedAt = nullTimePtr(processed)
		summary.Summary = metaSum.String
		summary.Confidence = confidence.Float64
		summary.TextPreview = preview.String
		if summary.Keywords, err = decodeStrings(keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
		if summary.Categories, err = decodeStrings(categories); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}

func (r *FileRepository) CountByStatus(ctx context.Context, userID string) (domain.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT processing_status, count(*)
FROM files
WHERE ($1 = '' OR user_id = $1)
GROUP BY processing_status
`, userID)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	defer rows.Close()

	counts := domain.StatusCounts{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.ProcessingStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// TransitionStatus applies a compare-and-set on processing_status.
func (r *FileRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.ProcessingStatus,
	errMessage string,
) error {
	if !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrConflict, "transition status", fmt.Errorf("%s -> %s is not allowed", from, to))
	}

	now := time.Now().UTC()
	var startedAt, processedAt any
	switch to {
	case domain.StatusProcessing:
		startedAt = now
	case domain.StatusCompleted, domain.StatusError:
		processedAt = now
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE files
SET processing_status = $3,
	processing_error = $4,
	updated_at = $5,
	processing_started_at = COALESCE($6, processing_started_at),
	processed_at = COALESCE($7, processed_at)
WHERE id = $1 AND processing_status = $2
`, id, string(from), string(to), errMessage, now, startedAt, processedAt)
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file status rows affected: %w", err)
	}
	if affected == 0 {
		return r.missOrConflict(ctx, "transition status", id, from)
	}
	return nil
}

func (r *FileRepository) Requeue(ctx context.Context, id string, from domain.ProcessingStatus) (*domain.File, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE files
SET processing_status = 'pending',
	processing_error = '',
	retry_count = retry_count + 1,
	processing_started_at = NULL,
	updated_at = $3
WHERE id = $1 AND processing_status = $2
RETURNING `+fileColumns, id, string(from), time.Now().UTC())

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, "requeue", id, from)
		}
		return nil, fmt.Errorf("requeue file: %w", err)
	}
	return file, nil
}

func (r *FileRepository) ListStuck(ctx context.Context, userID string, olderThan time.Time, limit int) ([]domain.File, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE processing_status IN ('pending', 'processing')
	AND updated_at < $2
	AND ($1 = '' OR user_id = $1)
ORDER BY updated_at
LIMIT $3
`, userID, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck files: %w", err)
	}
	defer rows.Close()

	out := make([]domain.File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck file: %w", err)
		}
		out = append(out, *file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck files: %w", err)
	}
	return out, nil
}

func (r *FileRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM files
WHERE id = $1 AND ($2 = '' OR user_id = $2)
`, id, userID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrFileNotFound, "delete file", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *FileRepository) missOrConflict(ctx context.Context, op, id string, from domain.ProcessingStatus) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT processing_status FROM files WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrFileNotFound, op, fmt.Errorf("id=%s", id))
		}
		return fmt.Errorf("%s: read current status: %w", op, err)
	}
	return domain.WrapError(domain.ErrConflict, op, fmt.Errorf("expected status %s, found %s", from, current))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	var (
		file      domain.File
		kind      string
		status    string
		started   sql.NullTime
		processed sql.NullTime
	)
	if err := row.Scan(
		&file.ID, &file.UserID, &file.Filename, &file.OriginalName, &file.MimeType, &kind, &file.SizeBytes,
		&file.ContentHash, &file.StoragePath, &file.SourceURL, &status, &file.Error, &file.RetryCount,
		&started, &processed, &file.CreatedAt, &file.UpdatedAt,
	); err != nil {
		return nil, err
	}
	file.Kind = domain.FileKind(kind)
	file.Status = domain.ProcessingStatus(status)
	file.ProcessingStartedAt = nullTimePtr(started)
	file.ProcessedAt = nullTimePtr(processed)
	return &file, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func decodeStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}
