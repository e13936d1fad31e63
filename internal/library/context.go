package library

import (
	"context"
	"log/slog"

	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// BookEntries gathers chat context for up to ten books. Each book's detail
// is fetched in turn; when exactly one book is requested its notes are
// fetched as well. Failures degrade to what is known about the book.
func (e *Engine) BookEntries(ctx context.Context, s session.Session, bookIDs []string) []composer.BookEntry {
	if len(bookIDs) > maxNotebookBooks {
		bookIDs = bookIDs[:maxNotebookBooks]
	}
	withNotes := len(bookIDs) == 1

	entries := make([]composer.BookEntry, 0, len(bookIDs))
	for _, id := range bookIDs {
		if ctx.Err() != nil {
			break
		}
		book, err := e.gw.BookInfo(ctx, s, id)
		if err != nil {
			slog.Warn("book detail unavailable for context", "book_id", id, "error", err)
			book = weread.Book{}
		}
		if book.BookID == "" {
			book.BookID = id
		}
		entry := composer.BookEntry{Book: book}

		if withNotes {
			bundle, err := e.NotesForBook(ctx, s, id)
			if err != nil {
				slog.Warn("book notes unavailable for context", "book_id", id, "error", err)
				bundle.Notes = []weread.Note{}
			}
			entry.Notes = bundle.Notes
			if entry.Notes == nil {
				entry.Notes = []weread.Note{}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// BooksContext renders BookEntries into the text context for the assistant.
func (e *Engine) BooksContext(ctx context.Context, s session.Session, comp *composer.Composer, bookIDs []string) string {
	return comp.BookContext(e.BookEntries(ctx, s, bookIDs))
}
