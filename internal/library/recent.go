package library

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
	"golang.org/x/sync/errgroup"
)

const (
	recentWindowDays = 30
	progressFanOut   = 8
	uncategorized    = "未分类"
)

// RecentBook is a shelf entry read within the recent window.
type RecentBook struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	Cover    string    `json:"cover"`
	Progress int       `json:"progress"`
	LastRead time.Time `json:"lastRead"`
	Category string    `json:"category"`
}

// RecentBooks keeps the shelf entries read within the last 30 days, newest
// first, and enriches each with its reading progress. Progress lookups run
// concurrently; a failed lookup leaves that entry at progress 0.
func (e *Engine) RecentBooks(ctx context.Context, s session.Session, shelf []weread.Book) []RecentBook {
	recent := filterRecent(shelf, e.now())

	out := make([]RecentBook, len(recent))
	var g errgroup.Group
	g.SetLimit(progressFanOut)
	for i, b := range recent {
		out[i] = RecentBook{
			ID:       b.BookID,
			Title:    b.Title,
			Author:   b.Author,
			Cover:    b.Cover,
			LastRead: b.LastRead(),
			Category: b.Category,
		}
		g.Go(func() error {
			p, err := e.gw.Progress(ctx, s, b.BookID)
			if err != nil {
				slog.Warn("progress lookup failed, using 0", "book_id", b.BookID, "error", err)
				return nil
			}
			out[i].Progress = p.Percent
			return nil
		})
	}
	g.Wait()
	return out
}

// filterRecent returns books whose last-read time lies within the window,
// sorted by that time descending. Books without a timestamp are dropped.
func filterRecent(shelf []weread.Book, now time.Time) []weread.Book {
	day := float64(24 * time.Hour)
	var recent []weread.Book
	for _, b := range shelf {
		if b.LastReadAt <= 0 {
			continue
		}
		diff := now.Sub(b.LastRead())
		if diff < 0 {
			diff = -diff
		}
		if math.Ceil(float64(diff)/day) <= recentWindowDays {
			recent = append(recent, b)
		}
	}
	slices.SortStableFunc(recent, func(x, y weread.Book) int {
		return cmp.Compare(y.LastReadAt, x.LastReadAt)
	})
	return recent
}
