package weread

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Sentinel chapter that anchors review-derived notes without a real chapter.
const (
	ReviewChapterUID   = 1000000
	ReviewChapterIdx   = 1000000
	ReviewChapterTitle = "点评"
)

// Upstream review type for whole-book reviews, which have no chapter anchor.
const reviewTypeBook = 4

// Book is the normalized superset of the notebook, shelf and book-info
// payloads. Optional fields default to their zero value.
type Book struct {
	BookID      string `json:"bookId"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Cover       string `json:"cover"`
	Category    string `json:"category"`
	Intro       string `json:"intro,omitempty"`
	WordCount   int64  `json:"wordCount"`
	ISBN        string `json:"isbn,omitempty"`
	Rating      int    `json:"rating"`
	Publisher   string `json:"publisher,omitempty"`
	AISummary   string `json:"aiSummary,omitempty"`
	Finished    bool   `json:"finished"`
	ReadingTime int64  `json:"readingTime"`
	LastReadAt  int64  `json:"lastReadAt"`

	NoteCount     int `json:"noteCount,omitempty"`
	ReviewCount   int `json:"reviewCount,omitempty"`
	BookmarkCount int `json:"bookmarkCount,omitempty"`
}

// LastRead returns the last-read time, or the zero time when unknown.
func (b Book) LastRead() time.Time {
	if b.LastReadAt <= 0 {
		return time.Time{}
	}
	return time.Unix(b.LastReadAt, 0)
}

// NoteType discriminates the kinds of note a reader can leave.
type NoteType string

const (
	NoteHighlight  NoteType = "highlight"
	NoteAnnotation NoteType = "annotation"
	NoteReview     NoteType = "review"
)

// Note is a highlight, an annotation, or a review converted into a note.
type Note struct {
	ID           string   `json:"id"`
	BookmarkID   string   `json:"bookmarkId,omitempty"`
	ReviewID     string   `json:"reviewId,omitempty"`
	BookID       string   `json:"bookId"`
	ChapterUID   int64    `json:"chapterUid"`
	ChapterIdx   int      `json:"chapterIdx"`
	ChapterTitle string   `json:"chapterTitle"`
	Text         string   `json:"text"`
	Type         NoteType `json:"type"`
	Range        string   `json:"range"`
	CreatedAt    int64    `json:"createTime"`
	UpdatedAt    int64    `json:"updateTime"`
}

// Chapter is one entry of a book's table of contents.
type Chapter struct {
	UID        int64  `json:"chapterUid"`
	Index      int    `json:"chapterIdx"`
	Title      string `json:"title"`
	Level      int    `json:"level"`
	UpdateTime int64  `json:"updateTime"`
}

// IsReviewChapter reports whether c is the synthesized review chapter.
func (c Chapter) IsReviewChapter() bool {
	return c.UID == ReviewChapterUID
}

// ReviewChapter returns the sentinel chapter stamped with now.
func ReviewChapter(now time.Time) Chapter {
	return Chapter{
		UID:        ReviewChapterUID,
		Index:      ReviewChapterIdx,
		Title:      ReviewChapterTitle,
		Level:      1,
		UpdateTime: now.UnixMilli(),
	}
}

// Review is a reader review. It is distinct from Note but converts into one.
type Review struct {
	ReviewID     string `json:"reviewId"`
	BookID       string `json:"bookId"`
	Author       string `json:"author"`
	Content      string `json:"content"`
	Abstract     string `json:"abstract,omitempty"`
	ChapterUID   int64  `json:"chapterUid"`
	ChapterIdx   int    `json:"chapterIdx"`
	ChapterTitle string `json:"chapterTitle"`
	Range        string `json:"range"`
	Type         int    `json:"type"`
	Rating       int    `json:"rating,omitempty"`
	CreatedAt    int64  `json:"createTime"`
	Book         *Book  `json:"book,omitempty"`
}

// IsBookReview reports whether the review targets the whole book.
func (r Review) IsBookReview() bool {
	return r.Type == reviewTypeBook
}

// Text returns the content, falling back to the abstract.
func (r Review) Text() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Abstract
}

// Note converts r into a review-derived note. Reviews without a chapter are
// anchored to the sentinel review chapter.
func (r Review) Note() Note {
	n := Note{
		ID:           r.ReviewID,
		BookmarkID:   r.ReviewID,
		ReviewID:     r.ReviewID,
		BookID:       r.BookID,
		ChapterUID:   r.ChapterUID,
		ChapterIdx:   r.ChapterIdx,
		ChapterTitle: r.ChapterTitle,
		Text:         r.Text(),
		Type:         NoteReview,
		Range:        r.Range,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.CreatedAt,
	}
	if n.ChapterUID == 0 {
		n.ChapterUID = ReviewChapterUID
		n.ChapterIdx = ReviewChapterIdx
		n.ChapterTitle = ReviewChapterTitle
	}
	return n
}

// PinToReviewChapter anchors r to the sentinel review chapter.
func (r Review) PinToReviewChapter() Review {
	r.ChapterUID = ReviewChapterUID
	r.ChapterIdx = ReviewChapterIdx
	r.ChapterTitle = ReviewChapterTitle
	return r
}

// Bookmarks is the bookmark-list payload: highlights and annotations plus the
// chapters they reference.
type Bookmarks struct {
	Book     Book      `json:"book"`
	Chapters []Chapter `json:"chapters"`
	Notes    []Note    `json:"notes"`
}

// Progress is a reader's position in one book.
type Progress struct {
	BookID      string `json:"bookId"`
	Percent     int    `json:"progress"`
	ChapterUID  int64  `json:"chapterUid"`
	ChapterIdx  int    `json:"chapterIdx"`
	ReadingTime int64  `json:"readingTime"`
	UpdatedAt   int64  `json:"updateTime"`
	FinishedAt  int64  `json:"finishTime,omitempty"`
}

// BestReviewsQuery pages through popular reviews.
type BestReviewsQuery struct {
	Count   int
	MaxIdx  int
	SyncKey int64
}

// BestReviews is one page of popular reviews for a book.
type BestReviews struct {
	Reviews    []Review `json:"reviews"`
	HasMore    bool     `json:"hasMore"`
	SyncKey    int64    `json:"synckey"`
	TotalCount int      `json:"totalCount"`
}

// --- wire payloads ---

// envelope is the embedded status. The tags also match errCode/errMsg.
type envelope struct {
	ErrCode *flexInt `json:"errcode"`
	ErrMsg  string   `json:"errmsg"`
}

type rawCategory struct {
	Title string `json:"title"`
}

// rawBook accepts both the flat shelf shape and the nested {"book": {...}}
// notebook shape.
type rawBook struct {
	BookID          string        `json:"bookId"`
	Title           string        `json:"title"`
	Author          string        `json:"author"`
	Cover           string        `json:"cover"`
	Category        flexString    `json:"category"`
	Categories      []rawCategory `json:"categories"`
	Intro           string        `json:"intro"`
	WordCount       flexInt       `json:"wordCount"`
	TotalWords      flexInt       `json:"totalWords"`
	ISBN            string        `json:"isbn"`
	NewRating       flexInt       `json:"newRating"`
	Publisher       string        `json:"publisher"`
	AISummary       string        `json:"AISummary"`
	IsFinished      flexBool      `json:"isFinished"`
	FinishReading   flexBool      `json:"finishReading"`
	ReadingTime     flexInt       `json:"readingTime"`
	ReadUpdateTime  flexInt       `json:"readUpdateTime"`
	LastReadingTime flexInt       `json:"lastReadingTime"`
	NoteCount       flexInt       `json:"noteCount"`
	ReviewCount     flexInt       `json:"reviewCount"`
	BookmarkCount   flexInt       `json:"bookmarkCount"`
	Book            *rawBook      `json:"book"`
}

func (r rawBook) normalize() Book {
	inner := rawBook{}
	if r.Book != nil {
		inner = *r.Book
	}
	b := Book{
		BookID:        firstString(r.BookID, inner.BookID),
		Title:         firstString(r.Title, inner.Title),
		Author:        firstString(r.Author, inner.Author),
		Cover:         firstString(r.Cover, inner.Cover),
		Category:      firstString(r.category(), inner.category()),
		Intro:         firstString(r.Intro, inner.Intro),
		WordCount:     firstInt(int64(r.WordCount), int64(inner.WordCount), int64(r.TotalWords), int64(inner.TotalWords)),
		ISBN:          firstString(r.ISBN, inner.ISBN),
		Rating:        int(firstInt(int64(r.NewRating), int64(inner.NewRating))),
		Publisher:     firstString(r.Publisher, inner.Publisher),
		AISummary:     firstString(r.AISummary, inner.AISummary),
		Finished:      bool(r.IsFinished || r.FinishReading || inner.IsFinished || inner.FinishReading),
		ReadingTime:   firstInt(int64(r.ReadingTime), int64(inner.ReadingTime)),
		LastReadAt:    firstInt(int64(r.ReadUpdateTime), int64(r.LastReadingTime), int64(inner.ReadUpdateTime), int64(inner.LastReadingTime)),
		NoteCount:     int(r.NoteCount),
		ReviewCount:   int(r.ReviewCount),
		BookmarkCount: int(r.BookmarkCount),
	}
	return b
}

func (r rawBook) category() string {
	if c := strings.TrimSpace(string(r.Category)); c != "" {
		return c
	}
	if len(r.Categories) > 0 {
		return r.Categories[0].Title
	}
	return ""
}

type booksPayload struct {
	Books        []rawBook     `json:"books"`
	BookProgress []rawProgress `json:"bookProgress"`
}

type rawChapter struct {
	ChapterUID flexInt `json:"chapterUid"`
	ChapterIdx flexInt `json:"chapterIdx"`
	Title      string  `json:"title"`
	Level      flexInt `json:"level"`
	UpdateTime flexInt `json:"updateTime"`
}

func (c rawChapter) normalize() Chapter {
	return Chapter{
		UID:        int64(c.ChapterUID),
		Index:      int(c.ChapterIdx),
		Title:      c.Title,
		Level:      int(c.Level),
		UpdateTime: int64(c.UpdateTime),
	}
}

type chapterInfosPayload struct {
	Data []struct {
		BookID  string       `json:"bookId"`
		Updated []rawChapter `json:"updated"`
	} `json:"data"`
}

type rawBookmark struct {
	BookmarkID  string  `json:"bookmarkId"`
	BookID      string  `json:"bookId"`
	ChapterUID  flexInt `json:"chapterUid"`
	ChapterIdx  flexInt `json:"chapterIdx"`
	ChapterName string  `json:"chapterName"`
	MarkText    string  `json:"markText"`
	Range       string  `json:"range"`
	Type        flexInt `json:"type"`
	CreateTime  flexInt `json:"createTime"`
	UpdateTime  flexInt `json:"updateTime"`
}

func (m rawBookmark) normalize() Note {
	t := NoteAnnotation
	if m.Type == 1 {
		t = NoteHighlight
	}
	return Note{
		ID:           m.BookmarkID,
		BookmarkID:   m.BookmarkID,
		BookID:       m.BookID,
		ChapterUID:   int64(m.ChapterUID),
		ChapterIdx:   int(m.ChapterIdx),
		ChapterTitle: m.ChapterName,
		Text:         m.MarkText,
		Type:         t,
		Range:        m.Range,
		CreatedAt:    int64(m.CreateTime),
		UpdatedAt:    firstInt(int64(m.UpdateTime), int64(m.CreateTime)),
	}
}

type bookmarksPayload struct {
	Updated  []rawBookmark `json:"updated"`
	Chapters []rawChapter  `json:"chapters"`
	Book     rawBook       `json:"book"`
}

type rawReview struct {
	ReviewID     string  `json:"reviewId"`
	BookID       string  `json:"bookId"`
	ChapterUID   flexInt `json:"chapterUid"`
	ChapterIdx   flexInt `json:"chapterIdx"`
	ChapterTitle string  `json:"chapterTitle"`
	ChapterName  string  `json:"chapterName"`
	Content      string  `json:"content"`
	Abstract     string  `json:"abstract"`
	HTMLContent  string  `json:"htmlContent"`
	Range        string  `json:"range"`
	Type         flexInt `json:"type"`
	Star         flexInt `json:"star"`
	NewRating    flexInt `json:"newRating"`
	CreateTime   flexInt `json:"createTime"`
	Author       struct {
		Name string `json:"name"`
	} `json:"author"`
	Book *rawBook `json:"book"`
}

func (r rawReview) normalize() Review {
	rv := Review{
		ReviewID:     r.ReviewID,
		BookID:       r.BookID,
		Author:       r.Author.Name,
		Content:      r.Content,
		Abstract:     r.Abstract,
		ChapterUID:   int64(r.ChapterUID),
		ChapterIdx:   int(r.ChapterIdx),
		ChapterTitle: firstString(r.ChapterTitle, r.ChapterName),
		Range:        r.Range,
		Type:         int(r.Type),
		Rating:       int(firstInt(int64(r.NewRating), int64(r.Star))),
		CreatedAt:    int64(r.CreateTime),
	}
	if rv.Content == "" && rv.Abstract == "" && r.HTMLContent != "" {
		rv.Content = htmlText(r.HTMLContent)
	}
	if r.Book != nil {
		b := r.Book.normalize()
		rv.Book = &b
		if rv.BookID == "" {
			rv.BookID = b.BookID
		}
	}
	return rv
}

type reviewItem struct {
	ReviewID string    `json:"reviewId"`
	Review   rawReview `json:"review"`
}

type reviewsPayload struct {
	Reviews []reviewItem `json:"reviews"`
}

type bestReviewsPayload struct {
	Reviews        []reviewItem `json:"reviews"`
	ReviewsHasMore flexBool     `json:"reviewsHasMore"`
	SyncKey        flexInt      `json:"synckey"`
	TotalCount     flexInt      `json:"totalCount"`
}

type rawProgress struct {
	BookID      string  `json:"bookId"`
	Progress    flexInt `json:"progress"`
	ChapterUID  flexInt `json:"chapterUid"`
	ChapterIdx  flexInt `json:"chapterIdx"`
	ReadingTime flexInt `json:"readingTime"`
	UpdateTime  flexInt `json:"updateTime"`
	FinishTime  flexInt `json:"finishTime"`
}

type progressPayload struct {
	BookID string      `json:"bookId"`
	Book   rawProgress `json:"book"`
}

// --- lenient scalars ---

// flexInt accepts JSON numbers, numeric strings and null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexBool accepts booleans and 0/1 numbers.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	switch s := strings.Trim(string(bytes.TrimSpace(data)), `"`); s {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// flexString accepts a string or an array of strings, keeping the first.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil
		}
		if len(arr) > 0 {
			*f = flexString(arr[0])
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	*f = flexString(s)
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
