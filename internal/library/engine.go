package library

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
	"golang.org/x/sync/errgroup"
)

// maxNotebookBooks bounds the multi-book notes aggregate and book contexts.
const maxNotebookBooks = 10

// Gateway is the subset of the upstream client the engine composes.
type Gateway interface {
	NotebookBooks(ctx context.Context, s session.Session) ([]weread.Book, error)
	BookInfo(ctx context.Context, s session.Session, bookID string) (weread.Book, error)
	Bookmarks(ctx context.Context, s session.Session, bookID string) (weread.Bookmarks, error)
	Reviews(ctx context.Context, s session.Session, bookID string) ([]weread.Review, error)
	Chapters(ctx context.Context, s session.Session, bookID string) ([]weread.Chapter, error)
	Progress(ctx context.Context, s session.Session, bookID string) (weread.Progress, error)
	Shelf(ctx context.Context, s session.Session) ([]weread.Book, error)
	BestReviews(ctx context.Context, s session.Session, bookID string, q weread.BestReviewsQuery) (weread.BestReviews, error)
}

// Engine composes gateway calls into library views. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	gw  Gateway
	now func() time.Time
}

// NewEngine creates an Engine over gw.
func NewEngine(gw Gateway) *Engine {
	return &Engine{gw: gw, now: time.Now}
}

// NoteBundle is every note of one book, highlights and reviews merged, with
// the chapters they reference.
type NoteBundle struct {
	Book     weread.Book      `json:"book"`
	Chapters []weread.Chapter `json:"chapters"`
	Notes    []weread.Note    `json:"notes"`
}

// NotesForBook fetches bookmarks and reviews of one book concurrently and
// merges them into a single bundle. Review-derived notes without a chapter
// are anchored to the sentinel review chapter, which then appears once in
// Chapters. Notes are ordered by chapter index, sentinel last.
func (e *Engine) NotesForBook(ctx context.Context, s session.Session, bookID string) (NoteBundle, error) {
	var (
		bm      weread.Bookmarks
		reviews []weread.Review
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bm, err = e.gw.Bookmarks(gCtx, s, bookID)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = e.gw.Reviews(gCtx, s, bookID)
		return err
	})
	if err := g.Wait(); err != nil {
		return NoteBundle{}, fmt.Errorf("fetching notes for %s: %w", bookID, err)
	}

	return mergeNotes(bm, reviews, e.now()), nil
}

func mergeNotes(bm weread.Bookmarks, reviews []weread.Review, now time.Time) NoteBundle {
	b := NoteBundle{
		Book:     bm.Book,
		Chapters: make([]weread.Chapter, 0, len(bm.Chapters)+1),
		Notes:    make([]weread.Note, 0, len(bm.Notes)+len(reviews)),
	}

	byUID := make(map[int64]weread.Chapter, len(bm.Chapters))
	for _, ch := range bm.Chapters {
		if ch.IsReviewChapter() {
			continue
		}
		byUID[ch.UID] = ch
		b.Chapters = append(b.Chapters, ch)
	}

	b.Notes = append(b.Notes, bm.Notes...)
	hasReviewChapter := false
	for _, rv := range reviews {
		if rv.IsBookReview() {
			rv = rv.PinToReviewChapter()
		}
		n := rv.Note()
		if n.ChapterUID == weread.ReviewChapterUID {
			hasReviewChapter = true
		}
		b.Notes = append(b.Notes, n)
	}

	for i := range b.Notes {
		n := &b.Notes[i]
		if ch, ok := byUID[n.ChapterUID]; ok {
			if n.ChapterIdx == 0 {
				n.ChapterIdx = ch.Index
			}
			if n.ChapterTitle == "" {
				n.ChapterTitle = ch.Title
			}
		}
	}
	if hasReviewChapter {
		b.Chapters = append(b.Chapters, weread.ReviewChapter(now))
	}

	slices.SortStableFunc(b.Notes, func(x, y weread.Note) int {
		return chapterRank(x) - chapterRank(y)
	})
	return b
}

func chapterRank(n weread.Note) int {
	if n.ChapterUID == weread.ReviewChapterUID {
		return weread.ReviewChapterIdx
	}
	return n.ChapterIdx
}

// Notes aggregates note bundles for up to ten books from the notebook
// listing. Books are fetched one after another; a book whose fetch fails is
// skipped.
func (e *Engine) Notes(ctx context.Context, s session.Session) ([]NoteBundle, error) {
	books, err := e.gw.NotebookBooks(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("listing notebook: %w", err)
	}
	if len(books) > maxNotebookBooks {
		books = books[:maxNotebookBooks]
	}

	bundles := make([]NoteBundle, 0, len(books))
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := e.NotesForBook(ctx, s, book.BookID)
		if err != nil {
			slog.Warn("skipping book notes", "book_id", book.BookID, "error", err)
			continue
		}
		if b.Book.BookID == "" {
			b.Book = book
		}
		bundles = append(bundles, b)
	}
	slog.Debug("notes aggregated", "books", len(books), "bundles", len(bundles))
	return bundles, nil
}

// Chapters returns a book's chapters with the sentinel review chapter
// appended exactly once.
func (e *Engine) Chapters(ctx context.Context, s session.Session, bookID string) ([]weread.Chapter, error) {
	chapters, err := e.gw.Chapters(ctx, s, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]weread.Chapter, 0, len(chapters)+1)
	for _, ch := range chapters {
		if !ch.IsReviewChapter() {
			out = append(out, ch)
		}
	}
	return append(out, weread.ReviewChapter(e.now())), nil
}

// Reviews returns a book's reviews; whole-book reviews are anchored to the
// sentinel review chapter.
func (e *Engine) Reviews(ctx context.Context, s session.Session, bookID string) ([]weread.Review, error) {
	reviews, err := e.gw.Reviews(ctx, s, bookID)
	if err != nil {
		return nil, err
	}
	for i, rv := range reviews {
		if rv.IsBookReview() {
			reviews[i] = rv.PinToReviewChapter()
		}
	}
	return reviews, nil
}

// NotebookBooks lists books that carry notes.
func (e *Engine) NotebookBooks(ctx context.Context, s session.Session) ([]weread.Book, error) {
	return e.gw.NotebookBooks(ctx, s)
}

// Shelf lists the entire bookshelf.
func (e *Engine) Shelf(ctx context.Context, s session.Session) ([]weread.Book, error) {
	return e.gw.Shelf(ctx, s)
}

// BookDetail fetches one book's metadata; see weread.Client.BookInfo.
func (e *Engine) BookDetail(ctx context.Context, s session.Session, bookID string) (weread.Book, error) {
	return e.gw.BookInfo(ctx, s, bookID)
}

// Progress fetches the reader's position in one book.
func (e *Engine) Progress(ctx context.Context, s session.Session, bookID string) (weread.Progress, error) {
	return e.gw.Progress(ctx, s, bookID)
}

// BestReviews fetches one page of popular reviews.
func (e *Engine) BestReviews(ctx context.Context, s session.Session, bookID string, q weread.BestReviewsQuery) (weread.BestReviews, error) {
	return e.gw.BestReviews(ctx, s, bookID, q)
}
