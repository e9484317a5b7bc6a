package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type handlers struct {
	svc    Services
	userID string
}

func (h *handlers) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	result, err := h.svc.Search.Search(ctx, domain.SearchRequest{
		UserID:   h.userID,
		Query:    query,
		Limit:    req.GetInt("limit", 0),
		Category: req.GetString("category", ""),
		Mode:     domain.SearchMode(req.GetString("mode", "")),
	})
	if err != nil {
		return toolError("search_files", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) getFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("file_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("file_id is required"), nil
	}

	detail, err := h.svc.Catalog.Get(ctx, h.userID, strings.TrimSpace(id), req.GetBool("include_text", false))
	if err != nil {
		return toolError("get_file", err), nil
	}
	return jsonResult(detail)
}

func (h *handlers) listStuckFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := h.svc.Retry.ListStuck(ctx, h.userID)
	if err != nil {
		return toolError("list_stuck_files", err), nil
	}
	if files == nil {
		files = []domain.File{}
	}
	return jsonResult(map[string]any{"files": files, "count": len(files)})
}

// toolError reports domain failures to the client as tool errors. Unclassified
// errors are logged and replaced by a generic message.
func toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrFileNotFound),
		domain.IsKind(err, domain.ErrConflict),
		domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError(err.Error())
	default:
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
