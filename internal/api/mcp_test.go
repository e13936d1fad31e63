package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/library"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, gw *mockGateway, llm *mockCompleter) MCPDeps {
	t.Helper()
	s, err := session.New(testCookie)
	if err != nil {
		t.Fatal(err)
	}
	engine := library.NewEngine(gw)
	comp := composer.New(0)
	return MCPDeps{
		Library:   engine,
		Assistant: assistant.New(llm, comp, engine, "test-model"),
		Composer:  comp,
		Session:   s,
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_ReadingStats(t *testing.T) {
	gw := &mockGateway{shelf: []weread.Book{{Finished: true, ReadingTime: 60}, {ReadingTime: 120}}}
	handler := mcpReadingStats(newTestMCPDeps(t, gw, &mockCompleter{}))

	result, err := handler(context.Background(), makeCallToolRequest("reading_stats", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var stats library.ReadingStats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if stats.TotalBooks != 2 || stats.TotalReadingTime != 180 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMCPTool_NoCookieConfigured(t *testing.T) {
	deps := newTestMCPDeps(t, &mockGateway{}, &mockCompleter{})
	deps.Session = session.Session{}

	result, err := mcpBookNotes(deps)(context.Background(), makeCallToolRequest("book_notes", map[string]interface{}{"book_id": "b1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "cookie") {
		t.Errorf("result = %+v, want cookie error", result)
	}
}

func TestMCPTool_BookNotes(t *testing.T) {
	gw := &mockGateway{bookmarks: map[string]weread.Bookmarks{"b1": {
		Chapters: []weread.Chapter{{UID: 7, Index: 1, Title: "序"}},
		Notes:    []weread.Note{{ID: "n1", ChapterUID: 7, Text: "划线内容"}},
	}}}
	handler := mcpBookNotes(newTestMCPDeps(t, gw, &mockCompleter{}))

	result, err := handler(context.Background(), makeCallToolRequest("book_notes", map[string]interface{}{"book_id": "b1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var bundle library.NoteBundle
	if err := json.Unmarshal([]byte(toolText(t, result)), &bundle); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(bundle.Notes) != 1 || bundle.Notes[0].ChapterTitle != "序" {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestMCPTool_BookNotes_MissingID(t *testing.T) {
	handler := mcpBookNotes(newTestMCPDeps(t, &mockGateway{}, &mockCompleter{}))

	result, _ := handler(context.Background(), makeCallToolRequest("book_notes", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error result without book_id")
	}
}

func TestMCPTool_BookNotes_ExpiredSession(t *testing.T) {
	gw := &mockGateway{}
	deps := newTestMCPDeps(t, gw, &mockCompleter{})
	deps.Library = library.NewEngine(&expiringGateway{mockGateway: gw})

	result, _ := mcpBookNotes(deps)(context.Background(), makeCallToolRequest("book_notes", map[string]interface{}{"book_id": "b1"}))
	if !result.IsError || !strings.Contains(toolText(t, result), CodeCookieExpired) {
		t.Errorf("result = %s, want COOKIE_EXPIRED", toolText(t, result))
	}
}

// expiringGateway fails bookmark fetches with an expired session.
type expiringGateway struct {
	*mockGateway
}

func (g *expiringGateway) Bookmarks(context.Context, session.Session, string) (weread.Bookmarks, error) {
	return weread.Bookmarks{}, &weread.Error{Op: "bookmarks", Code: weread.CodeSessionExpired}
}

func TestMCPTool_RecentBooksLimit(t *testing.T) {
	now := time.Now()
	gw := &mockGateway{shelf: []weread.Book{
		{BookID: "old", LastReadAt: now.Add(-48 * time.Hour).Unix()},
		{BookID: "new", LastReadAt: now.Add(-time.Hour).Unix()},
	}}
	deps := newTestMCPDeps(t, gw, &mockCompleter{})

	result, err := mcpRecentBooks(deps)(context.Background(), makeCallToolRequest("recent_books", map[string]interface{}{"limit": 1}))
	if err != nil || result.IsError {
		t.Fatalf("result = %+v err = %v", result, err)
	}
	var recent []library.RecentBook
	if err := json.Unmarshal([]byte(toolText(t, result)), &recent); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "new" || recent[0].Progress != 50 {
		t.Errorf("recent = %+v, want only the most recent book", recent)
	}
}

func TestMCPTool_AskAssistant(t *testing.T) {
	gw := &mockGateway{books: map[string]weread.Book{"b1": {BookID: "b1", Title: "围城", Author: "钱钟书"}}}
	llm := &mockCompleter{answer: "关于婚姻"}
	handler := mcpAskAssistant(newTestMCPDeps(t, gw, llm))

	result, err := handler(context.Background(), makeCallToolRequest("ask_assistant", map[string]interface{}{
		"question": "这本书讲什么",
		"book_ids": []interface{}{"b1"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "关于婚姻" {
		t.Errorf("answer = %q", got)
	}
	if prompt := llm.lastUserMessage(t); !strings.Contains(prompt, "《围城》- 钱钟书") {
		t.Errorf("prompt = %q, want book context", prompt)
	}
}

func TestMCPResource_Shelf(t *testing.T) {
	gw := &mockGateway{shelf: []weread.Book{{BookID: "b1", Title: "T"}}}
	handler := mcpResourceShelf(newTestMCPDeps(t, gw, &mockCompleter{}))

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "weread://shelf"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "weread://shelf" || !strings.Contains(tc.Text, `"bookId":"b1"`) {
		t.Errorf("resource = %+v", tc)
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	s := NewMCPServer(newTestMCPDeps(t, &mockGateway{}, &mockCompleter{}), "test")
	if s == nil {
		t.Fatal("nil server")
	}
}
