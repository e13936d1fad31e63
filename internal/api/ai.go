package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/session"
)

// AskRequest is the body of /api/ai/ask and /api/ai/askStream.
type AskRequest struct {
	Question string    `json:"question"`
	Context  string    `json:"context"`
	Cookie   string    `json:"cookie"`
	Books    []BookRef `json:"books"`
}

// BookRef names a book the question is about.
type BookRef struct {
	BookID string `json:"bookId"`
}

// OrganizeRequest is the body of /api/ai/organizeNotes.
type OrganizeRequest struct {
	Notes  []assistant.InputNote `json:"notes"`
	Cookie string                `json:"cookie"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, CodeBadRequest, "question is required")
			return
		}
		ok(w, deps.Assistant.Ask(r.Context(), req.Question, req.Context))
	}
}

// handleAskStream relays the answer as server-sent events. When the request
// names books and carries a usable cookie, their details (and notes, for a
// single book) become the question's context.
func handleAskStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, CodeBadRequest, "question is required")
			return
		}

		flusher, isFlusher := w.(http.Flusher)
		if !isFlusher {
			httpError(w, http.StatusInternalServerError, CodeAPIError, "streaming not supported")
			return
		}

		ctx := r.Context()
		contextText := req.Context
		if ids := bookIDs(req.Books); req.Cookie != "" && len(ids) > 0 {
			s, err := session.New(req.Cookie)
			if err != nil {
				slog.Warn("api: ignoring books context", "error", err)
			} else {
				contextText = deps.Library.BooksContext(ctx, s, deps.Composer, ids)
			}
		}

		stream := deps.Assistant.AskStream(ctx, req.Question, contextText)
		defer stream.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		for {
			frame, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				slog.Debug("api: stream ended", "error", err)
				return
			}
			if err := assistant.EncodeFrame(w, frame); err != nil {
				slog.Debug("api: client went away", "error", err)
				return
			}
			flusher.Flush()
			if frame.Terminal() {
				return
			}
		}
	}
}

func handleOrganizeNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OrganizeRequest
		if !decode(w, r, &req) {
			return
		}
		// The cookie only improves book titles; a bad one is not fatal.
		s, err := session.New(req.Cookie)
		if err != nil && req.Cookie != "" {
			slog.Debug("api: organize without book lookup", "error", err)
		}
		ok(w, deps.Assistant.OrganizeNotes(r.Context(), s, req.Notes))
	}
}

func bookIDs(refs []BookRef) []string {
	ids := make([]string, 0, len(refs))
	for _, b := range refs {
		if b.BookID != "" {
			ids = append(ids, b.BookID)
		}
	}
	return ids
}
