package library

import (
	"context"
	"fmt"
	"math"

	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
	"golang.org/x/sync/errgroup"
)

// ReadingStats is derived from the shelf on every call. The platform exposes
// no streak or last-reading-date source, so those stay zero.
type ReadingStats struct {
	TotalBooks         int    `json:"totalBooks"`
	FinishedBooks      int    `json:"finishedBooks"`
	ReadingBooks       int    `json:"readingBooks"`
	TotalReadingTime   int64  `json:"totalReadingTime"`
	TotalWords         int64  `json:"totalWords"`
	AverageReadingTime int64  `json:"averageReadingTime"`
	ReadingStreak      int    `json:"readingStreak"`
	LastReadingDate    string `json:"lastReadingDate"`
}

// ComputeStats folds a shelf into reading statistics.
func ComputeStats(shelf []weread.Book) ReadingStats {
	var st ReadingStats
	st.TotalBooks = len(shelf)
	for _, b := range shelf {
		if b.Finished {
			st.FinishedBooks++
		} else {
			st.ReadingBooks++
		}
		st.TotalReadingTime += b.ReadingTime
		st.TotalWords += b.WordCount
	}
	if st.TotalBooks > 0 {
		st.AverageReadingTime = int64(math.Round(float64(st.TotalReadingTime) / float64(st.TotalBooks)))
	}
	return st
}

// ReadingStats fetches the shelf and derives statistics from it.
func (e *Engine) ReadingStats(ctx context.Context, s session.Session) (ReadingStats, error) {
	shelf, err := e.gw.Shelf(ctx, s)
	if err != nil {
		return ReadingStats{}, fmt.Errorf("fetching shelf: %w", err)
	}
	return ComputeStats(shelf), nil
}

// CategoryCount is one bar of the category histogram.
type CategoryCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// UserData is the dashboard composite.
type UserData struct {
	Stats            ReadingStats    `json:"stats"`
	EntireShelf      []weread.Book   `json:"entireShelf"`
	TotalReadingTime int64           `json:"totalReadingTime"`
	TotalBooks       int             `json:"totalBooks"`
	CategoryData     []CategoryCount `json:"categoryData"`
	RecentBooks      []RecentBook    `json:"recentBooks"`
}

// UserData fetches statistics and the shelf concurrently, then derives the
// category histogram and recent books from the shelf.
func (e *Engine) UserData(ctx context.Context, s session.Session) (UserData, error) {
	var (
		stats ReadingStats
		shelf []weread.Book
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = e.ReadingStats(gCtx, s)
		return err
	})
	g.Go(func() error {
		var err error
		shelf, err = e.gw.Shelf(gCtx, s)
		if err != nil {
			return fmt.Errorf("fetching shelf: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return UserData{}, err
	}
	if shelf == nil {
		shelf = []weread.Book{}
	}

	return UserData{
		Stats:            stats,
		EntireShelf:      shelf,
		TotalReadingTime: stats.TotalReadingTime,
		TotalBooks:       len(shelf),
		CategoryData:     Categories(shelf),
		RecentBooks:      e.RecentBooks(ctx, s, shelf),
	}, nil
}

// Categories counts books per primary category in first-seen order. Books
// without a category count as uncategorized.
func Categories(shelf []weread.Book) []CategoryCount {
	idx := make(map[string]int)
	out := []CategoryCount{}
	for _, b := range shelf {
		name := b.Category
		if name == "" {
			name = uncategorized
		}
		if i, ok := idx[name]; ok {
			out[i].Value++
			continue
		}
		idx[name] = len(out)
		out = append(out, CategoryCount{Name: name, Value: 1})
	}
	return out
}
