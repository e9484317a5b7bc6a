package domain

import "time"

type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchKeyword  SearchMode = "keyword"
	SearchHybrid   SearchMode = "hybrid"
)

type SearchRequest struct {
	UserID   string
	Query    string
	Limit    int
	Category string
	Mode     SearchMode
}

type SearchFilter struct {
	UserID   string
	Category string
	MinScore float64
}

type SearchHit struct {
	FileID       string   `json:"file_id"`
	OriginalName string   `json:"original_name"`
	MimeType     string   `json:"mime_type"`
	Summary      string   `json:"summary"`
	Keywords     []string `json:"keywords"`
	Categories   []string `json:"categories"`
	TextPreview  string   `json:"text_preview,omitempty"`
	Score        float64  `json:"score"`
}

type SearchResult struct {
	Query string      `json:"query"`
	Mode  SearchMode  `json:"mode"`
	Hits  []SearchHit `json:"hits"`
}

type SearchHistoryEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id,omitempty"`
	Query       string     `json:"query"`
	Mode        SearchMode `json:"mode"`
	ResultCount int        `json:"result_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ChatRequest struct {
	UserID   string
	Question string
	FileID   string
}

type Answer struct {
	Text    string      `json:"text"`
	Sources []SearchHit `json:"sources"`
}
