package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/library"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// MCPDeps holds dependencies for the MCP server. Unlike the HTTP routes the
// MCP server acts for one configured reader, so the session is fixed.
type MCPDeps struct {
	Library   *library.Engine
	Assistant *assistant.Assistant
	Composer  *composer.Composer
	Session   session.Session
}

// NewMCPServer creates an MCP server with all shelfwise tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.Composer == nil {
		deps.Composer = composer.New(0)
	}

	s := server.NewMCPServer(
		"shelfwise",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("shelfwise: the reader's WeRead library, reading statistics, notes and a reading assistant."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("reading_stats",
			mcp.WithDescription("Reading statistics derived from the reader's shelf: books, finished books, reading time, words."),
		),
		mcpReadingStats(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_books",
			mcp.WithDescription("Books read in the last 30 days with their reading progress, most recent first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of books (default 10)")),
		),
		mcpRecentBooks(deps),
	)

	s.AddTool(
		mcp.NewTool("book_notes",
			mcp.WithDescription("All highlights, annotations and reviews of one book, ordered by chapter."),
			mcp.WithString("book_id", mcp.Description("WeRead book id"), mcp.Required()),
		),
		mcpBookNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_assistant",
			mcp.WithDescription("Ask the reading assistant a question, optionally about specific books."),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
			mcp.WithArray("book_ids", mcp.Description("Optional book ids to use as context (at most 10)")),
		),
		mcpAskAssistant(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"weread://shelf",
			"Entire Shelf",
			mcp.WithResourceDescription("Every book on the reader's shelf as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceShelf(deps),
	)

	return s
}

func mcpReadingStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Session.IsZero() {
			return mcpError(msgNoCookie), nil
		}
		stats, err := deps.Library.ReadingStats(ctx, deps.Session)
		if err != nil {
			return mcpFailure("reading stats", err), nil
		}
		return mcpJSON(stats)
	}
}

func mcpRecentBooks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Session.IsZero() {
			return mcpError(msgNoCookie), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		shelf, err := deps.Library.Shelf(ctx, deps.Session)
		if err != nil {
			return mcpFailure("loading shelf", err), nil
		}
		recent := deps.Library.RecentBooks(ctx, deps.Session, shelf)
		if len(recent) > limit {
			recent = recent[:limit]
		}
		return mcpJSON(recent)
	}
}

func mcpBookNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Session.IsZero() {
			return mcpError(msgNoCookie), nil
		}
		bookID, err := req.RequireString("book_id")
		if err != nil {
			return mcpError("book_id is required"), nil
		}
		bundle, err := deps.Library.NotesForBook(ctx, deps.Session, bookID)
		if err != nil {
			return mcpFailure("loading notes", err), nil
		}
		return mcpJSON(bundle)
	}
}

func mcpAskAssistant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		var contextText string
		if ids := req.GetStringSlice("book_ids", nil); len(ids) > 0 && !deps.Session.IsZero() {
			contextText = deps.Library.BooksContext(ctx, deps.Session, deps.Composer, ids)
		}
		return mcpText(deps.Assistant.Ask(ctx, question, contextText)), nil
	}
}

func mcpResourceShelf(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Session.IsZero() {
			return nil, errors.New(msgNoCookie)
		}
		shelf, err := deps.Library.Shelf(ctx, deps.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to load shelf: %w", err)
		}
		if shelf == nil {
			shelf = []weread.Book{}
		}

		b, err := json.Marshal(shelf)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal shelf: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

const msgNoCookie = "no WeRead cookie configured (set weread.cookie)"

func mcpFailure(what string, err error) *mcp.CallToolResult {
	env := Classify(err)
	return mcpError(fmt.Sprintf("%s failed [%s]: %s", what, env.Code, env.Message))
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
