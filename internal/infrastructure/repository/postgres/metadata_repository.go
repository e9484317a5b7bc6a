package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) Save(ctx context.Context, meta *domain.FileMetadata) error {
	keywords, err := encodeStrings(meta.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	topics, err := encodeStrings(meta.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	categories, err := encodeStrings(meta.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	var embedding any
	if len(meta.Embedding) > 0 {
		embedding = pgvector.NewVector(meta.Embedding)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO file_metadata (
	file_id, summary, keywords, topics, categories, extracted_text, extraction_method, page_count,
	embedding, confidence, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (file_id) DO UPDATE SET
	summary = EXCLUDED.summary,
	keywords = EXCLUDED.keywords,
	topics = EXCLUDED.topics,
	categories = EXCLUDED.categories,
	extracted_text = EXCLUDED.extracted_text,
	extraction_method = EXCLUDED.extraction_method,
	page_count = EXCLUDED.page_count,
	embedding = EXCLUDED.embedding,
	confidence = EXCLUDED.confidence,
	updated_at = EXCLUDED.updated_at
`,
		meta.FileID, meta.Summary, keywords, topics, categories, sanitizeText(meta.ExtractedText), meta.ExtractionMethod,
		meta.PageCount, embedding, meta.Confidence, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert file metadata: %w", err)
	}
	return nil
}

// Get loads metadata without the embedding. The extracted text is read only on request.
func (r *MetadataRepository) Get(ctx context.Context, fileID string, includeText bool) (*domain.FileMetadata, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT file_id, summary, keywords, topics, categories,
	CASE WHEN $2 THEN extracted_text ELSE '' END,
	extraction_method, page_count, confidence, created_at, updated_at
FROM file_metadata
WHERE file_id = $1
`, fileID, includeText)

	var (
		meta                         domain.FileMetadata
		keywords, topics, categories []byte
	)
	err := row.Scan(
		&meta.FileID, &meta.Summary, &keywords, &topics, &categories, &meta.ExtractedText,
		&meta.ExtractionMethod, &meta.PageCount, &meta.Confidence, &meta.CreatedAt, &meta.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "get metadata", fmt.Errorf("file_id=%s", fileID))
		}
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	if meta.Keywords, err = decodeStrings(keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if meta.Topics, err = decodeStrings(topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	if meta.Categories, err = decodeStrings(categories); err != nil {
		return nil, fmt.Errorf("unmarshal categories: %w", err)
	}
	return &meta, nil
}

// SearchSimilar ranks completed files by cosine similarity of their pooled embedding.
func (r *MetadataRepository) SearchSimilar(
	ctx context.Context,
	vector []float32,
	filter domain.SearchFilter,
	limit int,
) ([]domain.SearchHit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.original_name, f.mime_type, m.summary, m.keywords, m.categories, left(m.extracted_text, $6),
	1 - (m.embedding <=> $1) AS score
FROM file_metadata m
JOIN files f ON f.id = m.file_id
WHERE f.processing_status = 'completed'
	AND m.embedding IS NOT NULL
	AND ($2 = '' OR f.user_id = $2)
	AND ($3 = '' OR m.categories @> jsonb_build_array($3::text))
	AND 1 - (m.embedding <=> $1) >= $4
ORDER BY m.embedding <=> $1
LIMIT $5
`, pgvector.NewVector(vector), filter.UserID, filter.Category, filter.MinScore, limit, previewChars)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

// SearchKeyword matches the generated full-text vector, or a substring of the filename, summary or keywords.
func (r *MetadataRepository) SearchKeyword(
	ctx context.Context,
	query string,
	filter domain.SearchFilter,
	limit int,
) ([]domain.SearchHit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.original_name, f.mime_type, m.summary, m.keywords, m.categories, left(m.extracted_text, $5),
	ts_rank(m.search_vector, plainto_tsquery('simple', $1)) AS score
FROM file_metadata m
JOIN files f ON f.id = m.file_id
WHERE f.processing_status = 'completed'
	AND ($2 = '' OR f.user_id = $2)
	AND ($3 = '' OR m.categories @> jsonb_build_array($3::text))
	AND (
		m.search_vector @@ plainto_tsquery('simple', $1)
		OR f.original_name ILIKE $6 ESCAPE '\'
		OR m.summary ILIKE $6 ESCAPE '\'
		OR m.keywords::text ILIKE $6 ESCAPE '\'
	)
ORDER BY score DESC, f.created_at DESC
LIMIT $4
`, query, filter.UserID, filter.Category, limit, previewChars, containsPattern(query))
	if err != nil {
		return nil, fmt.Errorf("keyword query: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]domain.SearchHit, error) {
	out := make([]domain.SearchHit, 0)
	for rows.Next() {
		var (
			hit                  domain.SearchHit
			keywords, categories []byte
			err                  error
		)
		if err := rows.Scan(
			&hit.FileID, &hit.OriginalName, &hit.MimeType, &hit.Summary, &keywords, &categories,
			&hit.TextPreview, &hit.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if hit.Keywords, err = decodeStrings(keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
		if hit.Categories, err = decodeStrings(categories); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE substring pattern in which the query's wildcards match literally.
func containsPattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

// sanitizeText drops what Postgres rejects in TEXT columns: NUL bytes and invalid UTF-8.
func sanitizeText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
