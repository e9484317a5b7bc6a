package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type SearchHistoryRepository struct {
	db *sql.DB
}

func NewSearchHistoryRepository(db *sql.DB) *SearchHistoryRepository {
	return &SearchHistoryRepository{db: db}
}

func (r *SearchHistoryRepository) Record(ctx context.Context, entry *domain.SearchHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO search_history (id, user_id, query, mode, result_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ID, entry.UserID, entry.Query, string(entry.Mode), entry.ResultCount, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search history: %w", err)
	}
	return nil
}

func (r *SearchHistoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.SearchHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, query, mode, result_count, created_at
FROM search_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchHistoryEntry, 0)
	for rows.Next() {
		var (
			entry domain.SearchHistoryEntry
			mode  string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Query, &mode, &entry.ResultCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		entry.Mode = domain.SearchMode(mode)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history: %w", err)
	}
	return out, nil
}
