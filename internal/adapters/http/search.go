package httpadapter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		Limit    int    `json:"limit"`
		Category string `json:"category"`
		Mode     string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := rt.svc.Search.Search(r.Context(), domain.SearchRequest{
		UserID:   userIDFromContext(r.Context()),
		Query:    req.Query,
		Limit:    req.Limit,
		Category: req.Category,
		Mode:     domain.SearchMode(strings.ToLower(strings.TrimSpace(req.Mode))),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, string(result.Mode), len(result.Hits))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) searchHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	entries, err := rt.svc.Search.History(r.Context(), userIDFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.SearchHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		FileID   string `json:"file_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer, err := rt.svc.Chat.Ask(r.Context(), domain.ChatRequest{
		UserID:   userIDFromContext(r.Context()),
		Question: req.Question,
		FileID:   strings.TrimSpace(req.FileID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		scope := "library"
		if req.FileID != "" {
			scope = "file"
		}
		rt.metrics.RecordChat(serviceName, scope, len(answer.Sources))
	}
	writeJSON(w, http.StatusOK, answer)
}
