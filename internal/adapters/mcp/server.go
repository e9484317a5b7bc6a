package mcpadapter

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	serverName    = "docvault"
	serverVersion = "1.0.0"
)

// Services are the read-side ports exposed as MCP tools.
type Services struct {
	Search  ports.SearchService
	Catalog ports.FileCatalog
	Retry   ports.RetryService
}

type Server struct {
	mcp      *server.MCPServer
	handlers *handlers
}

// NewServer registers the search, file lookup and stuck-file tools. Every tool call
// acts on behalf of userID.
func NewServer(svc Services, userID string) *Server {
	h := &handlers{svc: svc, userID: userID}
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Search uploaded files by meaning. Returns ranked hits with summaries."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 10)")),
		mcp.WithString("category", mcp.Description("Only return files tagged with this category")),
		mcp.WithString("mode", mcp.Description("semantic, keyword or hybrid"), mcp.Enum("semantic", "keyword", "hybrid")),
	), h.searchFiles)

	s.AddTool(mcp.NewTool("get_file",
		mcp.WithDescription("Fetch a file with its analysis. Set include_text to return the extracted text."),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File identifier")),
		mcp.WithBoolean("include_text", mcp.Description("Include the full extracted text")),
	), h.getFile)

	s.AddTool(mcp.NewTool("list_stuck_files",
		mcp.WithDescription("List files that have been pending or processing for too long."),
	), h.listStuckFiles)

	return &Server{mcp: s, handlers: h}
}

// ServeStdio serves the protocol over in/out until ctx is cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
