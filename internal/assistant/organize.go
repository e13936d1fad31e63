package assistant

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

const (
	maxOrganizeNotes = 20
	maxNoteRunes     = 200
)

// BookLister resolves book ids to titles for organized notes.
type BookLister interface {
	NotebookBooks(ctx context.Context, s session.Session) ([]weread.Book, error)
}

// NoteKind accepts the numeric upstream type (1 = highlight) as well as the
// normalized string types.
type NoteKind bool

func (k *NoteKind) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(data)), `"`) {
	case "1", string(weread.NoteHighlight):
		*k = true
	default:
		*k = false
	}
	return nil
}

// InputNote is a note as submitted by a client. Both the upstream bookmark
// shape (markText, numeric type) and the normalized shape (text, string type)
// are accepted.
type InputNote struct {
	BookID       string   `json:"bookId"`
	BookTitle    string   `json:"bookTitle"`
	BookAuthor   string   `json:"bookAuthor"`
	ChapterTitle string   `json:"chapterTitle"`
	MarkText     string   `json:"markText"`
	Content      string   `json:"content"`
	Text         string   `json:"text"`
	Type         NoteKind `json:"type"`
	CreateTime   int64    `json:"createTime"`
	Range        string   `json:"range"`
}

// TypeCounts splits notes into highlights and everything else.
type TypeCounts struct {
	Highlights int `json:"highlights"`
	Notes      int `json:"notes"`
}

// OrganizeSummary describes what OrganizeNotes processed.
type OrganizeSummary struct {
	TotalNotes     int        `json:"totalNotes"`
	ProcessedNotes int        `json:"processedNotes"`
	BooksCount     int        `json:"booksCount"`
	Types          TypeCounts `json:"types"`
}

// OrganizeResult is the outcome of OrganizeNotes. OriginalNotes is never
// capped.
type OrganizeResult struct {
	OriginalNotes    []composer.OrganizedNote `json:"originalNotes"`
	OrganizedContent string                   `json:"organizedContent"`
	Summary          OrganizeSummary          `json:"summary"`
	Fallback         bool                     `json:"fallback"`
}

// OrganizeNotes resolves each note's book, asks the model to analyze the
// first twenty notes, and summarizes the whole input. When the completion
// fails a templated report built from the notes alone is returned.
func (a *Assistant) OrganizeNotes(ctx context.Context, s session.Session, notes []InputNote) OrganizeResult {
	organized := a.resolveNotes(ctx, s, notes)
	processed := organized
	if len(processed) > maxOrganizeNotes {
		slog.Debug("assistant: capping organized notes", "total", len(organized), "processed", maxOrganizeNotes)
		processed = processed[:maxOrganizeNotes]
	}

	res := OrganizeResult{
		OriginalNotes: organized,
		Summary:       summarize(organized, len(processed)),
	}

	req := a.request(a.composer.OrganizeMessages(processed, maxNoteRunes), askMaxTokens, false)
	content, err := a.llm.Complete(ctx, req)
	if err != nil {
		slog.Warn("assistant: organize failed, using templated report", "error", err)
		res.OrganizedContent = templatedReport(organized, res.Summary)
		res.Fallback = true
		return res
	}
	res.OrganizedContent = content
	return res
}

func (a *Assistant) resolveNotes(ctx context.Context, s session.Session, notes []InputNote) []composer.OrganizedNote {
	byID := map[string]weread.Book{}
	if a.books != nil && !s.IsZero() {
		books, err := a.books.NotebookBooks(ctx, s)
		if err != nil {
			slog.Warn("assistant: book lookup failed, using note titles", "error", err)
		}
		for _, b := range books {
			byID[b.BookID] = b
		}
	}

	out := make([]composer.OrganizedNote, 0, len(notes))
	for _, n := range notes {
		book := byID[n.BookID]
		kind := composer.LabelNote
		if n.Type {
			kind = composer.LabelHighlight
		}
		out = append(out, composer.OrganizedNote{
			BookTitle:    firstNonEmpty(book.Title, n.BookTitle, composer.UnknownBook),
			BookAuthor:   firstNonEmpty(book.Author, n.BookAuthor, composer.UnknownAuthor),
			ChapterTitle: firstNonEmpty(n.ChapterTitle, composer.UnknownChapter),
			Content:      firstNonEmpty(n.MarkText, n.Content, n.Text),
			Type:         kind,
			CreateTime:   n.CreateTime,
			Range:        n.Range,
		})
	}
	return out
}

func summarize(notes []composer.OrganizedNote, processed int) OrganizeSummary {
	sum := OrganizeSummary{TotalNotes: len(notes), ProcessedNotes: processed}
	books := map[string]struct{}{}
	for _, n := range notes {
		books[n.BookTitle] = struct{}{}
		if n.Type == composer.LabelHighlight {
			sum.Types.Highlights++
		} else {
			sum.Types.Notes++
		}
	}
	sum.BooksCount = len(books)
	return sum
}

// templatedReport renders a deterministic markdown report grouped by book.
func templatedReport(notes []composer.OrganizedNote, sum OrganizeSummary) string {
	var b strings.Builder
	b.WriteString("# 读书笔记整理报告\n\n")
	b.WriteString("## 📚 笔记概览\n")
	fmt.Fprintf(&b, "- 总笔记数：%d 条\n", sum.TotalNotes)
	fmt.Fprintf(&b, "- 涉及书籍：%d 本\n", sum.BooksCount)
	fmt.Fprintf(&b, "- 划线笔记：%d 条\n", sum.Types.Highlights)
	fmt.Fprintf(&b, "- 个人笔记：%d 条\n", sum.Types.Notes)

	var order []string
	groups := map[string][]composer.OrganizedNote{}
	for _, n := range notes {
		key := "《" + n.BookTitle + "》- " + n.BookAuthor
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], n)
	}

	b.WriteString("\n## 🎯 按书籍整理\n")
	for i, key := range order {
		fmt.Fprintf(&b, "\n### %d. %s\n", i+1, key)
		for _, n := range groups[key] {
			fmt.Fprintf(&b, "- [%s] %s：%s\n", n.Type, n.ChapterTitle, composer.Truncate(n.Content, maxNoteRunes))
		}
	}

	b.WriteString(`
## 💡 学习建议
1. **定期复习**：建议每周回顾一次相关主题的笔记
2. **知识整合**：将不同书籍的相似观点进行对比和整合
3. **实践应用**：将书中的方法应用到实际工作和生活中
4. **输出表达**：尝试写作，将笔记内容转化为自己的理解

## 📝 下一步行动
1. 建立个人知识库，按主题分类存储
2. 制定复习计划，定期回顾重要笔记
3. 与他人分享，通过讨论加深理解
`)
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

