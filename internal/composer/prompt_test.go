package composer

import (
	"strings"
	"testing"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kalambet/shelfwise/internal/weread"
)

func TestMessages_NoContext(t *testing.T) {
	c := New(0)
	msgs := c.Messages(AskSystemPrompt, "hello", "")

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != AskSystemPrompt {
		t.Errorf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleUser || msgs[1].Content != "hello" {
		t.Errorf("unexpected user message: %+v", msgs[1])
	}
}

func TestMessages_ContextFoldedIntoUserTurn(t *testing.T) {
	c := New(0)
	msgs := c.Messages(StreamSystemPrompt, "谁是作者？", "《活着》- 余华")

	want := "基于以下上下文回答问题：\n\n上下文：《活着》- 余华\n\n问题：谁是作者？"
	if msgs[1].Content != want {
		t.Errorf("user content = %q, want %q", msgs[1].Content, want)
	}
	if !strings.HasSuffix(msgs[0].Content, "请根据上下文内容输出笔记原文。") {
		t.Errorf("stream system prompt missing note instruction: %q", msgs[0].Content)
	}
}

func TestMessages_NoSystem(t *testing.T) {
	msgs := New(0).Messages("", "q", "")
	if len(msgs) != 1 || msgs[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc..."},
		{"读书笔记整理", 2, "读书..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestOrganizeMessages(t *testing.T) {
	notes := []OrganizedNote{
		{BookTitle: "B1", BookAuthor: "A1", ChapterTitle: "C1", Type: LabelHighlight, Content: strings.Repeat("x", 250), Range: "1-2"},
		{BookTitle: "B2", BookAuthor: "A2", ChapterTitle: "C2", Type: LabelNote, Content: "short", Range: "3-4"},
	}
	msgs := New(0).OrganizeMessages(notes, 200)

	if msgs[0].Content != OrganizeSystemPrompt {
		t.Errorf("system = %q", msgs[0].Content)
	}
	user := msgs[1].Content
	if !strings.Contains(user, "《B1》- A1\n章节：C1\n类型：划线\n内容："+strings.Repeat("x", 200)+"...\n位置：1-2\n") {
		t.Errorf("first note not rendered or not truncated:\n%s", user)
	}
	if !strings.Contains(user, "\n---\n《B2》- A2") {
		t.Errorf("notes not separated:\n%s", user)
	}
	if strings.Contains(user, strings.Repeat("x", 201)) {
		t.Error("content longer than 200 runes leaked into prompt")
	}
}

func TestBookContext_SingleBookWithNotes(t *testing.T) {
	c := New(0)
	got := c.BookContext([]BookEntry{{
		Book: weread.Book{Title: "活着", Author: "余华", Category: "文学", Rating: 95, WordCount: 120000},
		Notes: []weread.Note{
			{Type: weread.NoteHighlight, ChapterTitle: "第一章", Range: "1-9", Text: "人是为活着本身而活着"},
			{Type: weread.NoteReview, Text: "好书"},
		},
	}})

	for _, want := range []string{
		"用户当前关注的书籍信息：\n\n《活着》- 余华",
		"简介：暂无简介",
		"分类：文学",
		"评分：95/100",
		"字数：120000字",
		"出版社：未知",
		"\n\n笔记内容：\n1. [划线] 第一章 (1-9)\n内容：人是为活着本身而活着",
		"\n2. [笔记] 未知章节 ()\n内容：好书",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}

func TestBookContext_MultipleBooksWithoutNotes(t *testing.T) {
	got := New(0).BookContext([]BookEntry{
		{Book: weread.Book{Title: "A"}},
		{Book: weread.Book{Title: "B"}},
	})
	if strings.Count(got, "\n\n---\n\n") != 1 {
		t.Errorf("expected one separator:\n%s", got)
	}
	if strings.Count(got, "笔记：暂无笔记") != 2 {
		t.Errorf("expected no-notes marker per book:\n%s", got)
	}
}

func TestBookContext_EmptyNoteList(t *testing.T) {
	got := New(0).BookContext([]BookEntry{{Book: weread.Book{Title: "A"}, Notes: []weread.Note{}}})
	if !strings.HasSuffix(got, "笔记内容：\n暂无笔记") {
		t.Errorf("got %q", got)
	}
}

func TestBookContext_DropsNotesOverBudget(t *testing.T) {
	notes := make([]weread.Note, 50)
	for i := range notes {
		notes[i] = weread.Note{Type: weread.NoteHighlight, Text: strings.Repeat("n", 100)}
	}
	c := New(300)
	got := c.BookContext([]BookEntry{{Book: weread.Book{Title: "A"}, Notes: notes}})

	if !strings.Contains(got, "\n1. [划线]") {
		t.Error("first note should survive trimming")
	}
	if strings.Contains(got, "\n50. [划线]") {
		t.Error("last note should be trimmed")
	}
	if EstimateTokens(got) > 300+EstimateTokens("\n\n笔记内容：") {
		t.Errorf("context over budget: %d tokens", EstimateTokens(got))
	}
}

func TestBookContext_Empty(t *testing.T) {
	if got := New(0).BookContext(nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
