package usecase

import (
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func TestFuseHitsRRFPrefersOverlap(t *testing.T) {
	semantic := []domain.SearchHit{{FileID: "a"}, {FileID: "b"}}
	keyword := []domain.SearchHit{{FileID: "b", Summary: "from keyword"}, {FileID: "c"}}

	fused := fuseHitsRRF(60, semantic, keyword)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}
	if fused[0].FileID != "b" {
		t.Fatalf("expected hit present in both lists first, got %s", fused[0].FileID)
	}
	if fused[0].Summary != "from keyword" {
		t.Fatalf("expected richer summary to be kept, got %q", fused[0].Summary)
	}
}

func TestRerankHitsBoostsTokenOverlap(t *testing.T) {
	hits := []domain.SearchHit{
		{FileID: "x", Score: 0.5, Summary: "cooking recipes"},
		{FileID: "y", Score: 0.5, Summary: "Фотосинтез у растений", OriginalName: "bio.pdf"},
	}

	out := rerankHits("фотосинтез растений", hits, 0)
	if out[0].FileID != "y" {
		t.Fatalf("expected overlapping hit first, got %s", out[0].FileID)
	}
}

func TestRerankHitsKeepsTail(t *testing.T) {
	hits := []domain.SearchHit{{FileID: "a", Score: 3}, {FileID: "b", Score: 2}, {FileID: "c", Score: 1}}
	out := rerankHits("q", hits, 2)
	if len(out) != 3 || out[2].FileID != "c" {
		t.Fatalf("expected tail preserved, got %+v", out)
	}
}
