package api

import (
	"context"
	"net/http"

	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// LibraryRequest is the body of every /api/weRead route. Fields beyond
// Cookie are read only by the routes that need them.
type LibraryRequest struct {
	Cookie  string `json:"cookie"`
	BookID  string `json:"bookId"`
	Count   int    `json:"count"`
	MaxIdx  int    `json:"maxIdx"`
	SyncKey int64  `json:"synckey"`
}

// libraryRoute decodes the body, validates the session locally and then
// runs fn. Its result is wrapped in the envelope.
func libraryRoute(fn func(ctx context.Context, s session.Session, req LibraryRequest) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LibraryRequest
		if !decode(w, r, &req) {
			return
		}
		s, err := session.New(req.Cookie)
		if err != nil {
			fail(w, err)
			return
		}
		data, err := fn(r.Context(), s, req)
		if err != nil {
			fail(w, err)
			return
		}
		ok(w, data)
	}
}

func handleUserData(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, _ LibraryRequest) (any, error) {
		return deps.Library.UserData(ctx, s)
	})
}

func handleBooks(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, _ LibraryRequest) (any, error) {
		return deps.Library.NotebookBooks(ctx, s)
	})
}

func handleEntireShelf(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, _ LibraryRequest) (any, error) {
		return deps.Library.Shelf(ctx, s)
	})
}

func handleBookDetail(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		return deps.Library.BookDetail(ctx, s, req.BookID)
	})
}

// handleNotes answers one bundle for a given bookId, or the multi-book
// aggregate without one.
func handleNotes(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		if req.BookID != "" {
			return deps.Library.NotesForBook(ctx, s, req.BookID)
		}
		return deps.Library.Notes(ctx, s)
	})
}

func handleChapters(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		return deps.Library.Chapters(ctx, s, req.BookID)
	})
}

func handleReviews(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		return deps.Library.Reviews(ctx, s, req.BookID)
	})
}

func handleReadInfo(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		return deps.Library.Progress(ctx, s, req.BookID)
	})
}

func handleBestReviews(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, req LibraryRequest) (any, error) {
		return deps.Library.BestReviews(ctx, s, req.BookID, weread.BestReviewsQuery{
			Count:   req.Count,
			MaxIdx:  req.MaxIdx,
			SyncKey: req.SyncKey,
		})
	})
}

func handleReadingStats(deps Deps) http.HandlerFunc {
	return libraryRoute(func(ctx context.Context, s session.Session, _ LibraryRequest) (any, error) {
		return deps.Library.ReadingStats(ctx, s)
	})
}
