package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const defaultRRFK = 60

// fuseHitsRRF merges ranked lists with reciprocal rank fusion.
func fuseHitsRRF(rrfK int, lists ...[]domain.SearchHit) []domain.SearchHit {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	type fused struct {
		hit   domain.SearchHit
		score float64
	}
	acc := make(map[string]*fused)
	for _, list := range lists {
		for rank, hit := range list {
			entry, ok := acc[hit.FileID]
			if !ok {
				entry = &fused{hit: hit}
				acc[hit.FileID] = entry
			} else {
				entry.hit = preferRicherHit(entry.hit, hit)
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	out := make([]domain.SearchHit, 0, len(acc))
	for _, entry := range acc {
		hit := entry.hit
		hit.Score = entry.score
		out = append(out, hit)
	}
	sortHits(out)
	return out
}

// rerankHits blends the fused score with query token overlap on the summary,
// keywords and filename of the top candidates.
func rerankHits(query string, hits []domain.SearchHit, topN int) []domain.SearchHit {
	if len(hits) == 0 {
		return hits
	}
	if topN <= 0 || topN > len(hits) {
		topN = len(hits)
	}

	head := make([]domain.SearchHit, topN)
	copy(head, hits[:topN])
	queryTokens := toTokenSet(query)

	minScore, maxScore := head[0].Score, head[0].Score
	for _, hit := range head[1:] {
		minScore = min(minScore, hit.Score)
		maxScore = max(maxScore, hit.Score)
	}
	spread := maxScore - minScore
	normalize := func(v float64) float64 {
		if spread <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / spread
	}

	for i := range head {
		text := head[i].Summary + " " + strings.Join(head[i].Keywords, " ") + " " + head[i].TextPreview
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		nameHit := filenameTokenHit(queryTokens, head[i].OriginalName)
		head[i].Score = 0.60*normalize(head[i].Score) + 0.30*overlap + 0.10*nameHit
	}
	sortHits(head)

	return append(head, hits[topN:]...)
}

func sortHits(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FileID < hits[j].FileID
	})
}

func preferRicherHit(current, candidate domain.SearchHit) domain.SearchHit {
	if current.Summary == "" {
		current.Summary = candidate.Summary
	}
	if current.TextPreview == "" {
		current.TextPreview = candidate.TextPreview
	}
	if len(current.Keywords) == 0 {
		current.Keywords = candidate.Keywords
	}
	if len(current.Categories) == 0 {
		current.Categories = candidate.Categories
	}
	if current.OriginalName == "" {
		current.OriginalName = candidate.OriginalName
	}
	return current
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func filenameTokenHit(query map[string]struct{}, filename string) float64 {
	if len(query) == 0 || filename == "" {
		return 0
	}
	filename = strings.ToLower(filename)
	for token := range query {
		if strings.Contains(filename, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}
