package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101701

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables and indexes. embeddingDims fixes the vector column width.
func EnsureSchema(ctx context.Context, db *sql.DB, embeddingDims int) error {
	if embeddingDims <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", embeddingDims)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, schemaDDL(embeddingDims)); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func schemaDDL(embeddingDims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token_hash TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	kind TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	content_hash TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL,
	processing_error TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	processing_started_at TIMESTAMPTZ,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_user_created ON files(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_files_user_hash ON files(user_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_files_status_updated ON files(processing_status, updated_at);

CREATE TABLE IF NOT EXISTS file_metadata (
	file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
	summary TEXT NOT NULL DEFAULT '',
	keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	topics JSONB NOT NULL DEFAULT '[]'::jsonb,
	categories JSONB NOT NULL DEFAULT '[]'::jsonb,
	extracted_text TEXT NOT NULL DEFAULT '',
	extraction_method TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	embedding vector(%d),
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	search_vector tsvector GENERATED ALWAYS AS (
		to_tsvector('simple', coalesce(summary, '') || ' ' || coalesce(extracted_text, ''))
	) STORED,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_metadata_embedding ON file_metadata USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_file_metadata_search ON file_metadata USING gin (search_vector);
CREATE INDEX IF NOT EXISTS idx_file_metadata_categories ON file_metadata USING gin (categories);

CREATE TABLE IF NOT EXISTS search_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL,
	mode TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_history_user_created ON search_history(user_id, created_at DESC);
`, embeddingDims)
}
