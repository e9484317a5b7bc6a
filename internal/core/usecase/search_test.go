package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type memoryHistory struct {
	entries   []domain.SearchHistoryEntry
	recordErr error
}

func (h *memoryHistory) Record(_ context.Context, entry *domain.SearchHistoryEntry) error {
	if h.recordErr != nil {
		return h.recordErr
	}
	h.entries = append(h.entries, *entry)
	return nil
}

func (h *memoryHistory) ListRecent(_ context.Context, userID string, limit int) ([]domain.SearchHistoryEntry, error) {
	var out []domain.SearchHistoryEntry
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if h.entries[i].UserID == userID {
			out = append(out, h.entries[i])
		}
	}
	return out, nil
}

func TestSearchSemantic(t *testing.T) {
	meta := newMemoryMetadataRepo()
	meta.hits = []domain.SearchHit{{FileID: "f1", Score: 0.9}}
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2}}
	history := &memoryHistory{}
	uc := NewSearchUseCase(embedder, meta, history, 10, 0.3)

	result, err := uc.Search(context.Background(), domain.SearchRequest{UserID: "u1", Query: "  photosynthesis ", Category: "biology"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Mode != domain.SearchSemantic || result.Query != "photosynthesis" {
		t.Fatalf("unexpected result header %+v", result)
	}
	if len(result.Hits) != 1 || result.Hits[0].FileID != "f1" {
		t.Fatalf("unexpected hits %+v", result.Hits)
	}
	if meta.lastFilter.UserID != "u1" || meta.lastFilter.Category != "biology" || meta.lastFilter.MinScore != 0.3 {
		t.Fatalf("unexpected filter %+v", meta.lastFilter)
	}
	if meta.lastLimit != 10 {
		t.Fatalf("expected default limit 10, got %d", meta.lastLimit)
	}
	if len(history.entries) != 1 || history.entries[0].ResultCount != 1 {
		t.Fatalf("expected history entry, got %+v", history.entries)
	}
}

func TestSearchKeywordDoesNotEmbed(t *testing.T) {
	meta := newMemoryMetadataRepo()
	embedder := &stubEmbedder{vector: []float32{1}}
	uc := NewSearchUseCase(embedder, meta, &memoryHistory{}, 10, 0)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "invoice", Mode: domain.SearchKeyword, Limit: 500})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(embedder.inputs) != 0 {
		t.Fatalf("keyword search must not call the embedder")
	}
	if meta.lastKeyword != "invoice" || meta.lastLimit != 50 {
		t.Fatalf("unexpected keyword call %q limit=%d", meta.lastKeyword, meta.lastLimit)
	}
	if result.Hits == nil {
		t.Fatalf("expected empty, non-nil hits")
	}
}

func TestSearchValidation(t *testing.T) {
	uc := NewSearchUseCase(&stubEmbedder{}, newMemoryMetadataRepo(), &memoryHistory{}, 10, 0)

	if _, err := uc.Search(context.Background(), domain.SearchRequest{Query: " "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty query, got %v", err)
	}
	if _, err := uc.Search(context.Background(), domain.SearchRequest{Query: "x", Mode: "fuzzy"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown mode, got %v", err)
	}
}

func TestSearchHistoryFailureDoesNotFailSearch(t *testing.T) {
	uc := NewSearchUseCase(&stubEmbedder{vector: []float32{1}}, newMemoryMetadataRepo(), &memoryHistory{recordErr: errors.New("db down")}, 10, 0)

	if _, err := uc.Search(context.Background(), domain.SearchRequest{Query: "x"}); err != nil {
		t.Fatalf("expected search to succeed, got %v", err)
	}
}

func TestSearchEmbedErrorPropagates(t *testing.T) {
	uc := NewSearchUseCase(&stubEmbedder{err: domain.ErrTemporary}, newMemoryMetadataRepo(), &memoryHistory{}, 10, 0)

	if _, err := uc.Search(context.Background(), domain.SearchRequest{Query: "x"}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestSearchHistoryScopedByUser(t *testing.T) {
	history := &memoryHistory{entries: []domain.SearchHistoryEntry{
		{ID: "1", UserID: "u1", Query: "a"},
		{ID: "2", UserID: "u2", Query: "b"},
		{ID: "3", UserID: "u1", Query: "c"},
	}}
	uc := NewSearchUseCase(&stubEmbedder{}, newMemoryMetadataRepo(), history, 10, 0)

	entries, err := uc.History(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "3" {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestSearchHybridFusesBothLists(t *testing.T) {
	meta := newMemoryMetadataRepo()
	meta.hits = []domain.SearchHit{{FileID: "f1", Summary: "alpha"}, {FileID: "f2"}, {FileID: "f3"}}
	embedder := &stubEmbedder{vector: []float32{1}}
	uc := NewSearchUseCase(embedder, meta, &memoryHistory{}, 2, 0)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "alpha", Mode: domain.SearchHybrid})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Hits) != 2 || result.Hits[0].FileID != "f1" {
		t.Fatalf("unexpected hybrid hits %+v", result.Hits)
	}
	if len(embedder.inputs) != 1 || meta.lastKeyword != "alpha" || meta.lastLimit != 4 {
		t.Fatalf("expected both searches with doubled candidates, keyword=%q limit=%d", meta.lastKeyword, meta.lastLimit)
	}
}
