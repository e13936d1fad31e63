package composer

import (
	"fmt"
	"strconv"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kalambet/shelfwise/internal/weread"
)

const defaultMaxContextTokens = 4000

const (
	AskSystemPrompt      = "你是一个专业的读书助手，可以帮助用户分析阅读数据、总结笔记、推荐书籍等。请用中文回答用户的问题。"
	StreamSystemPrompt   = AskSystemPrompt + "重要：在总结笔记时，请根据上下文内容输出笔记原文。"
	OrganizeSystemPrompt = "你是一个专业的读书笔记整理专家，擅长将零散的读书笔记整理成系统化的知识体系。请用中文回答，注重逻辑性和实用性。"

	contextPrompt = "基于以下上下文回答问题：\n\n上下文：%s\n\n问题：%s"

	organizePrompt = `请帮我整理和分析以下读书笔记，要求：

1. 按主题分类整理笔记
2. 总结每个主题的核心观点
3. 找出笔记之间的联系和关联
4. 提供知识体系建议
5. 给出复习和应用建议

笔记内容：
%s

请用结构化的方式输出，包括：
- 主题分类
- 核心观点总结
- 知识关联分析
- 学习建议`
)

// Labels used when rendering notes for the model.
const (
	LabelHighlight = "划线"
	LabelNote      = "笔记"

	UnknownBook    = "未知书籍"
	UnknownAuthor  = "未知作者"
	UnknownChapter = "未知章节"
)

// Composer assembles chat messages for the reading assistant. Book context
// is trimmed to MaxContextTokens by dropping trailing notes first.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected book
// context. If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Messages builds a system + user message pair. A non-empty context is
// folded into the user turn.
func (c *Composer) Messages(system, question, context string) []openai.ChatCompletionMessage {
	prompt := question
	if context != "" {
		prompt = fmt.Sprintf(contextPrompt, context, question)
	}
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

// OrganizedNote is a note resolved against its book, ready for analysis.
type OrganizedNote struct {
	BookTitle    string `json:"bookTitle"`
	BookAuthor   string `json:"bookAuthor"`
	ChapterTitle string `json:"chapterTitle"`
	Content      string `json:"content"`
	Type         string `json:"type"`
	CreateTime   int64  `json:"createTime,omitempty"`
	Range        string `json:"range"`
}

// OrganizeMessages renders notes into the analysis prompt. Each note's
// content is cut to maxRunes runes.
func (c *Composer) OrganizeMessages(notes []OrganizedNote, maxRunes int) []openai.ChatCompletionMessage {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, fmt.Sprintf("《%s》- %s\n章节：%s\n类型：%s\n内容：%s\n位置：%s\n",
			n.BookTitle, n.BookAuthor, n.ChapterTitle, n.Type, Truncate(n.Content, maxRunes), n.Range))
	}
	prompt := fmt.Sprintf(organizePrompt, strings.Join(parts, "\n---\n"))
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: OrganizeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
}

// Truncate cuts s to n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// BookEntry is one book of a chat context. Notes is nil when notes were not
// requested for the book.
type BookEntry struct {
	Book  weread.Book
	Notes []weread.Note
}

// BookContext renders books into the context block handed to the model.
func (c *Composer) BookContext(entries []BookEntry) string {
	if len(entries) == 0 {
		return ""
	}
	const header = "用户当前关注的书籍信息：\n\n"
	const sep = "\n\n---\n\n"

	blocks := make([]string, len(entries))
	noteLines := make([][]string, len(entries))
	for i, e := range entries {
		blocks[i] = formatBook(e.Book)
		noteLines[i] = formatNotes(e.Notes)
	}

	// Budget: drop notes from the end until everything fits.
	remaining := c.MaxContextTokens - EstimateTokens(header)
	for _, b := range blocks {
		remaining -= EstimateTokens(b) + EstimateTokens(sep)
	}
	for i := len(noteLines) - 1; i >= 0 && remaining < 0; i-- {
		for len(noteLines[i]) > 0 && remaining < 0 {
			last := noteLines[i][len(noteLines[i])-1]
			noteLines[i] = noteLines[i][:len(noteLines[i])-1]
			remaining += EstimateTokens(last)
		}
	}

	var sb strings.Builder
	sb.WriteString(header)
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(b)
		switch {
		case len(noteLines[i]) > 0:
			sb.WriteString("\n\n笔记内容：")
			for _, l := range noteLines[i] {
				sb.WriteString(l)
			}
		case entries[i].Notes != nil:
			sb.WriteString("\n\n笔记内容：\n暂无笔记")
		default:
			sb.WriteString("\n\n笔记：暂无笔记")
		}
	}
	return sb.String()
}

func formatBook(b weread.Book) string {
	return fmt.Sprintf("《%s》- %s\n简介：%s\n分类：%s\n评分：%d/100\n字数：%d字\n出版社：%s\nISBN：%s\nAI摘要：%s",
		b.Title, b.Author,
		orDefault(b.Intro, "暂无简介"),
		orDefault(b.Category, "未分类"),
		b.Rating,
		b.WordCount,
		orDefault(b.Publisher, "未知"),
		orDefault(b.ISBN, "未知"),
		orDefault(b.AISummary, "暂无AI摘要"),
	)
}

func formatNotes(notes []weread.Note) []string {
	lines := make([]string, 0, len(notes))
	for i, n := range notes {
		lines = append(lines, "\n"+strconv.Itoa(i+1)+". ["+NoteLabel(n.Type)+"] "+
			orDefault(n.ChapterTitle, UnknownChapter)+" ("+n.Range+")\n内容："+n.Text)
	}
	return lines
}

// NoteLabel maps a note type to its display label. Only highlights count as
// 划线; annotations and reviews are 笔记.
func NoteLabel(t weread.NoteType) string {
	if t == weread.NoteHighlight {
		return LabelHighlight
	}
	return LabelNote
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// EstimateTokens provides a rough token count using 4 bytes per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
