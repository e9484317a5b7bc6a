package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type SearchUseCase struct {
	embedder     ports.Embedder
	metadata     ports.MetadataRepository
	history      ports.SearchHistoryRepository
	defaultLimit int
	minScore     float64
}

func NewSearchUseCase(
	embedder ports.Embedder,
	metadata ports.MetadataRepository,
	history ports.SearchHistoryRepository,
	defaultLimit int,
	minScore float64,
) *SearchUseCase {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &SearchUseCase{
		embedder:     embedder,
		metadata:     metadata,
		history:      history,
		defaultLimit: defaultLimit,
		minScore:     minScore,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SearchSemantic
	}
	limit := normalizeLimit(req.Limit, uc.defaultLimit, 50)
	filter := domain.SearchFilter{
		UserID:   req.UserID,
		Category: strings.TrimSpace(req.Category),
		MinScore: uc.minScore,
	}

	var (
		hits []domain.SearchHit
		err  error
	)
	switch mode {
	case domain.SearchSemantic:
		hits, err = uc.semantic(ctx, query, filter, limit)
	case domain.SearchKeyword:
		hits, err = uc.metadata.SearchKeyword(ctx, query, filter, limit)
		if err != nil {
			err = fmt.Errorf("keyword search: %w", err)
		}
	case domain.SearchHybrid:
		hits, err = uc.hybrid(ctx, query, filter, limit)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unknown mode %q", mode))
	}
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}

	uc.record(ctx, req.UserID, query, mode, len(hits))

	return &domain.SearchResult{
		Query: query,
		Mode:  mode,
		Hits:  hits,
	}, nil
}

func (uc *SearchUseCase) History(ctx context.Context, userID string, limit int) ([]domain.SearchHistoryEntry, error) {
	entries, err := uc.history.ListRecent(ctx, userID, normalizeLimit(limit, 20, 100))
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	return entries, nil
}

func (uc *SearchUseCase) semantic(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.metadata.SearchSimilar(ctx, vector, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

func (uc *SearchUseCase) hybrid(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error) {
	candidates := limit * 2
	semantic, err := uc.semantic(ctx, query, filter, candidates)
	if err != nil {
		return nil, err
	}
	keyword, err := uc.metadata.SearchKeyword(ctx, query, filter, candidates)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := rerankHits(query, fuseHitsRRF(defaultRRFK, semantic, keyword), limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (uc *SearchUseCase) record(ctx context.Context, userID, query string, mode domain.SearchMode, count int) {
	entry := &domain.SearchHistoryEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Query:       query,
		Mode:        mode,
		ResultCount: count,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.history.Record(ctx, entry); err != nil {
		slog.Warn("search_history_record_failed", "user_id", userID, "error", err)
	}
}
