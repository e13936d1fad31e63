package weread

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/shelfwise/internal/retry"
	"github.com/kalambet/shelfwise/internal/session"
)

const (
	DefaultBaseURL = "https://weread.qq.com"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

// Options configures a Client. Zero values select the production defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      retry.Policy
	HTTPClient *http.Client
}

// Client is the gateway to the reading platform's web API. Every accessor
// performs one authenticated request under the client's retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
	now        func() time.Time
}

// NewClient creates a gateway client.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	policy := opts.Retry
	if policy.MaxAttempts == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			slog.Warn("weread request failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		retry:      policy,
		now:        time.Now,
	}
}

// request describes one upstream call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	referer string
}

// fetch runs r under the retry policy and decodes the result into a fresh T
// on every attempt.
func fetch[T any](ctx context.Context, c *Client, s session.Session, r request) (T, error) {
	return fetchWith[T](ctx, c, c.retry, s, r)
}

func fetchWith[T any](ctx context.Context, c *Client, p retry.Policy, s session.Session, r request) (T, error) {
	return retry.Do(ctx, p, func(ctx context.Context) (T, error) {
		var out T
		err := c.do(ctx, s, r, &out)
		return out, err
	})
}

func (c *Client) do(ctx context.Context, s session.Session, r request, out any) error {
	q := url.Values{}
	for k, v := range r.query {
		q[k] = v
	}
	q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return &Error{Op: r.op, Err: fmt.Errorf("marshaling request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path+"?"+q.Encode(), body)
	if err != nil {
		return &Error{Op: r.op, Err: fmt.Errorf("creating request: %w", err)}
	}
	c.setHeaders(httpReq, s)
	if r.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if r.referer != "" {
		httpReq.Header.Set("Referer", r.referer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Op: r.op, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: r.op, Err: fmt.Errorf("reading response: %w", err)}
	}

	// The platform reports logical failures inside the body, sometimes with a
	// non-200 status as well; the embedded code wins when present.
	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.ErrCode != nil && *env.ErrCode != 0 {
		return &Error{Op: r.op, Code: int(*env.ErrCode), HTTPStatus: resp.StatusCode, Message: env.ErrMsg}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: r.op, HTTPStatus: resp.StatusCode, Message: truncate(string(raw), 256)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: r.op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, s session.Session) {
	req.Header.Set("Cookie", s.Cookie())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Cache-Control", "no-cache")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func bookQuery(bookID string) url.Values {
	return url.Values{"bookId": {bookID}}
}

// NotebookBooks lists the books that carry notes, highlights or reviews.
func (c *Client) NotebookBooks(ctx context.Context, s session.Session) ([]Book, error) {
	p, err := fetch[booksPayload](ctx, c, s, request{op: "notebook", method: http.MethodGet, path: "/api/user/notebook"})
	if err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(p.Books))
	for _, rb := range p.Books {
		books = append(books, rb.normalize())
	}
	return books, nil
}

// BookInfo fetches a book's metadata. An upstream logical failure yields an
// empty Book and no error so multi-book aggregation can continue. Only
// transport failures are retried.
func (c *Client) BookInfo(ctx context.Context, s session.Session, bookID string) (Book, error) {
	p := c.retry
	p.Retryable = func(err error) bool { return !isLogical(err) }
	rb, err := fetchWith[rawBook](ctx, c, p, s, request{op: "book info", method: http.MethodGet, path: "/api/book/info", query: bookQuery(bookID)})
	if err != nil {
		if isLogical(err) {
			slog.Warn("book info unavailable", "book_id", bookID, "error", err)
			return Book{}, nil
		}
		return Book{}, err
	}
	return rb.normalize(), nil
}

// Bookmarks fetches a book's highlights and annotations.
func (c *Client) Bookmarks(ctx context.Context, s session.Session, bookID string) (Bookmarks, error) {
	p, err := fetch[bookmarksPayload](ctx, c, s, request{op: "bookmarks", method: http.MethodGet, path: "/web/book/bookmarklist", query: bookQuery(bookID)})
	if err != nil {
		return Bookmarks{}, err
	}
	bm := Bookmarks{
		Book:     p.Book.normalize(),
		Chapters: make([]Chapter, 0, len(p.Chapters)),
		Notes:    make([]Note, 0, len(p.Updated)),
	}
	for _, ch := range p.Chapters {
		bm.Chapters = append(bm.Chapters, ch.normalize())
	}
	titles := make(map[int64]string, len(bm.Chapters))
	for _, ch := range bm.Chapters {
		titles[ch.UID] = ch.Title
	}
	for _, m := range p.Updated {
		n := m.normalize()
		if n.BookID == "" {
			n.BookID = bookID
		}
		if n.ChapterTitle == "" {
			n.ChapterTitle = titles[n.ChapterUID]
		}
		bm.Notes = append(bm.Notes, n)
	}
	return bm, nil
}

// Reviews fetches the session owner's reviews of one book.
func (c *Client) Reviews(ctx context.Context, s session.Session, bookID string) ([]Review, error) {
	q := bookQuery(bookID)
	q.Set("listType", "4")
	q.Set("maxIdx", "0")
	q.Set("count", "0")
	q.Set("listMode", "2")
	q.Set("syncKey", "0")

	p, err := fetch[reviewsPayload](ctx, c, s, request{op: "reviews", method: http.MethodGet, path: "/web/review/list", query: q})
	if err != nil {
		return nil, err
	}
	return normalizeReviews(p.Reviews, bookID), nil
}

func normalizeReviews(items []reviewItem, bookID string) []Review {
	reviews := make([]Review, 0, len(items))
	for _, it := range items {
		rv := it.Review.normalize()
		if rv.ReviewID == "" {
			rv.ReviewID = it.ReviewID
		}
		if rv.BookID == "" {
			rv.BookID = bookID
		}
		reviews = append(reviews, rv)
	}
	return reviews
}

// Chapters fetches a book's table of contents.
func (c *Client) Chapters(ctx context.Context, s session.Session, bookID string) ([]Chapter, error) {
	p, err := fetch[chapterInfosPayload](ctx, c, s, request{
		op:      "chapters",
		method:  http.MethodPost,
		path:    "/web/book/chapterInfos",
		body:    map[string][]string{"bookIds": {bookID}},
		referer: c.baseURL + "/web/reader/" + url.PathEscape(bookID),
	})
	if err != nil {
		return nil, err
	}
	chapters := []Chapter{}
	for _, d := range p.Data {
		if d.BookID != "" && d.BookID != bookID {
			continue
		}
		for _, ch := range d.Updated {
			chapters = append(chapters, ch.normalize())
		}
	}
	return chapters, nil
}

// Progress fetches the reader's position in one book.
func (c *Client) Progress(ctx context.Context, s session.Session, bookID string) (Progress, error) {
	p, err := fetch[progressPayload](ctx, c, s, request{op: "progress", method: http.MethodGet, path: "/web/book/getProgress", query: bookQuery(bookID)})
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		BookID:      firstString(p.Book.BookID, p.BookID, bookID),
		Percent:     int(p.Book.Progress),
		ChapterUID:  int64(p.Book.ChapterUID),
		ChapterIdx:  int(p.Book.ChapterIdx),
		ReadingTime: int64(p.Book.ReadingTime),
		UpdatedAt:   int64(p.Book.UpdateTime),
		FinishedAt:  int64(p.Book.FinishTime),
	}, nil
}

// Shelf fetches the entire bookshelf. Per-book reading progress carried
// alongside the shelf fills in reading time and last-read time when the book
// record lacks them.
func (c *Client) Shelf(ctx context.Context, s session.Session) ([]Book, error) {
	p, err := fetch[booksPayload](ctx, c, s, request{op: "shelf", method: http.MethodGet, path: "/web/shelf/sync"})
	if err != nil {
		return nil, err
	}
	progress := make(map[string]rawProgress, len(p.BookProgress))
	for _, bp := range p.BookProgress {
		progress[bp.BookID] = bp
	}
	books := make([]Book, 0, len(p.Books))
	for _, rb := range p.Books {
		b := rb.normalize()
		if bp, ok := progress[b.BookID]; ok {
			if b.ReadingTime == 0 {
				b.ReadingTime = int64(bp.ReadingTime)
			}
			if b.LastReadAt == 0 {
				b.LastReadAt = int64(bp.UpdateTime)
			}
		}
		books = append(books, b)
	}
	return books, nil
}

// BestReviews fetches one page of a book's popular reviews. A zero Count
// requests ten.
func (c *Client) BestReviews(ctx context.Context, s session.Session, bookID string, q BestReviewsQuery) (BestReviews, error) {
	if q.Count <= 0 {
		q.Count = 10
	}
	v := bookQuery(bookID)
	v.Set("synckey", strconv.FormatInt(q.SyncKey, 10))
	v.Set("maxIdx", strconv.Itoa(q.MaxIdx))
	v.Set("count", strconv.Itoa(q.Count))

	p, err := fetch[bestReviewsPayload](ctx, c, s, request{op: "best reviews", method: http.MethodGet, path: "/web/review/list/best", query: v})
	if err != nil {
		return BestReviews{}, err
	}
	return BestReviews{
		Reviews:    normalizeReviews(p.Reviews, bookID),
		HasMore:    bool(p.ReviewsHasMore),
		SyncKey:    int64(p.SyncKey),
		TotalCount: int(p.TotalCount),
	}, nil
}
