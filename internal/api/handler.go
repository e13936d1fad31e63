package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/library"
)

// Deps holds what the route layer serves from.
type Deps struct {
	Library   *library.Engine
	Assistant *assistant.Assistant
	Composer  *composer.Composer
	Token     string // optional bearer token for /api routes
}

// NewHandler returns the HTTP surface: library routes under /api/weRead,
// assistant routes under /api/ai and an unauthenticated /health.
func NewHandler(deps Deps) http.Handler {
	if deps.Composer == nil {
		deps.Composer = composer.New(0)
	}

	r := chi.NewRouter()
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Route("/weRead", func(r chi.Router) {
			r.Post("/userData", handleUserData(deps))
			r.Post("/books", handleBooks(deps))
			r.Post("/entireShelf", handleEntireShelf(deps))
			r.Post("/bookDetail", handleBookDetail(deps))
			r.Post("/notes", handleNotes(deps))
			r.Post("/chapters", handleChapters(deps))
			r.Post("/reviews", handleReviews(deps))
			r.Post("/readInfo", handleReadInfo(deps))
			r.Post("/bestReviews", handleBestReviews(deps))
			r.Post("/readingStats", handleReadingStats(deps))
		})

		r.Route("/ai", func(r chi.Router) {
			r.Post("/ask", handleAsk(deps))
			r.Post("/askStream", handleAskStream(deps))
			r.Post("/organizeNotes", handleOrganizeNotes(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
