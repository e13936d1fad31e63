package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/library"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

const testCookie = "wr_vid=42;wr_skey=secret"

// --- mocks ---

type mockGateway struct {
	mu    sync.Mutex
	calls []string

	shelf     []weread.Book
	shelfErr  error
	notebook  []weread.Book
	books     map[string]weread.Book
	bookmarks map[string]weread.Bookmarks
	best      weread.BestReviewsQuery
}

func (m *mockGateway) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockGateway) called() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockGateway) NotebookBooks(context.Context, session.Session) ([]weread.Book, error) {
	m.record("notebook")
	return m.notebook, nil
}

func (m *mockGateway) BookInfo(_ context.Context, _ session.Session, id string) (weread.Book, error) {
	m.record("info:" + id)
	return m.books[id], nil
}

func (m *mockGateway) Bookmarks(_ context.Context, _ session.Session, id string) (weread.Bookmarks, error) {
	m.record("bookmarks:" + id)
	return m.bookmarks[id], nil
}

func (m *mockGateway) Reviews(_ context.Context, _ session.Session, id string) ([]weread.Review, error) {
	m.record("reviews:" + id)
	return nil, nil
}

func (m *mockGateway) Chapters(_ context.Context, _ session.Session, id string) ([]weread.Chapter, error) {
	m.record("chapters:" + id)
	return nil, nil
}

func (m *mockGateway) Progress(_ context.Context, _ session.Session, id string) (weread.Progress, error) {
	m.record("progress:" + id)
	return weread.Progress{BookID: id, Percent: 50}, nil
}

func (m *mockGateway) Shelf(context.Context, session.Session) ([]weread.Book, error) {
	m.record("shelf")
	return m.shelf, m.shelfErr
}

func (m *mockGateway) BestReviews(_ context.Context, _ session.Session, id string, q weread.BestReviewsQuery) (weread.BestReviews, error) {
	m.record("best:" + id)
	m.mu.Lock()
	m.best = q
	m.mu.Unlock()
	return weread.BestReviews{TotalCount: 1}, nil
}

type mockCompleter struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest

	answer string
	stream string
	err    error
}

func (m *mockCompleter) Chat(_ context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(strings.NewReader(m.stream)), nil
}

func (m *mockCompleter) Complete(_ context.Context, req openai.ChatCompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.answer, m.err
}

func (m *mockCompleter) lastUserMessage(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatal("no completion requests")
	}
	msgs := m.requests[len(m.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

// --- helpers ---

func newTestHandler(t *testing.T, gw *mockGateway, llm *mockCompleter, token string) http.Handler {
	t.Helper()
	engine := library.NewEngine(gw)
	comp := composer.New(0)
	return NewHandler(Deps{
		Library:   engine,
		Assistant: assistant.New(llm, comp, engine, "test-model"),
		Composer:  comp,
		Token:     token,
	})
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (Envelope, json.RawMessage) {
	t.Helper()
	var raw struct {
		Envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return raw.Envelope, raw.Data
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &mockGateway{}, &mockCompleter{}, "tok")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestWeRead_InvalidCookieShortCircuits(t *testing.T) {
	gw := &mockGateway{}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	for _, path := range []string{"/api/weRead/userData", "/api/weRead/books", "/api/weRead/notes", "/api/weRead/readingStats"} {
		rr := post(t, h, path, `{"cookie":"wr_vid=42"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rr.Code)
		}
		env, _ := decodeEnvelope(t, rr)
		if env.Success || env.Code != CodeInvalidCookie {
			t.Errorf("%s envelope = %+v, want INVALID_COOKIE", path, env)
		}
	}
	if n := gw.called(); n != 0 {
		t.Errorf("gateway called %d times for invalid cookies", n)
	}
}

func TestWeRead_CookieExpired(t *testing.T) {
	gw := &mockGateway{shelfErr: &weread.Error{Op: "shelf", Code: weread.CodeSessionExpired, Message: "expired"}}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	env, _ := decodeEnvelope(t, post(t, h, "/api/weRead/entireShelf", `{"cookie":"`+testCookie+`"}`))
	if env.Success || env.Code != CodeCookieExpired || env.Message != msgCookieExpired {
		t.Errorf("envelope = %+v, want COOKIE_EXPIRED", env)
	}
}

func TestWeRead_APIError(t *testing.T) {
	gw := &mockGateway{shelfErr: errors.New("connection refused")}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	env, _ := decodeEnvelope(t, post(t, h, "/api/weRead/readingStats", `{"cookie":"`+testCookie+`"}`))
	if env.Success || env.Code != CodeAPIError || !strings.Contains(env.Message, "connection refused") {
		t.Errorf("envelope = %+v, want API_ERROR carrying the cause", env)
	}
}

func TestWeRead_MalformedBody(t *testing.T) {
	h := newTestHandler(t, &mockGateway{}, &mockCompleter{}, "")

	rr := post(t, h, "/api/weRead/books", `{"cookie":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	env, _ := decodeEnvelope(t, rr)
	if env.Code != CodeBadRequest {
		t.Errorf("code = %q, want BAD_REQUEST", env.Code)
	}
}

func TestWeRead_ReadingStats(t *testing.T) {
	gw := &mockGateway{shelf: []weread.Book{
		{BookID: "1", Finished: true, ReadingTime: 100, WordCount: 1000},
		{BookID: "2", ReadingTime: 200, WordCount: 500},
	}}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	env, data := decodeEnvelope(t, post(t, h, "/api/weRead/readingStats", `{"cookie":"`+testCookie+`"}`))
	if !env.Success {
		t.Fatalf("envelope = %+v", env)
	}
	var stats library.ReadingStats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalBooks != 2 || stats.FinishedBooks != 1 || stats.AverageReadingTime != 150 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWeRead_NotesShape(t *testing.T) {
	gw := &mockGateway{
		notebook: []weread.Book{{BookID: "b1"}, {BookID: "b2"}},
		bookmarks: map[string]weread.Bookmarks{
			"b1": {Notes: []weread.Note{{ID: "n1"}}},
			"b2": {Notes: []weread.Note{{ID: "n2"}}},
		},
	}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	_, one := decodeEnvelope(t, post(t, h, "/api/weRead/notes", `{"cookie":"`+testCookie+`","bookId":"b1"}`))
	var bundle library.NoteBundle
	if err := json.Unmarshal(one, &bundle); err != nil {
		t.Fatalf("single-book notes not an object: %v (%s)", err, one)
	}
	if len(bundle.Notes) != 1 || bundle.Notes[0].ID != "n1" {
		t.Errorf("bundle = %+v", bundle)
	}

	_, all := decodeEnvelope(t, post(t, h, "/api/weRead/notes", `{"cookie":"`+testCookie+`"}`))
	var bundles []library.NoteBundle
	if err := json.Unmarshal(all, &bundles); err != nil {
		t.Fatalf("aggregate notes not an array: %v (%s)", err, all)
	}
	if len(bundles) != 2 {
		t.Errorf("bundles = %d, want 2", len(bundles))
	}
}

func TestWeRead_BestReviewsForwardsQuery(t *testing.T) {
	gw := &mockGateway{}
	h := newTestHandler(t, gw, &mockCompleter{}, "")

	env, _ := decodeEnvelope(t, post(t, h, "/api/weRead/bestReviews",
		`{"cookie":"`+testCookie+`","bookId":"b1","count":5,"maxIdx":20,"synckey":99}`))
	if !env.Success {
		t.Fatalf("envelope = %+v", env)
	}
	want := weread.BestReviewsQuery{Count: 5, MaxIdx: 20, SyncKey: 99}
	if gw.best != want {
		t.Errorf("query = %+v, want %+v", gw.best, want)
	}
}

func TestWeRead_ReadInfo(t *testing.T) {
	h := newTestHandler(t, &mockGateway{}, &mockCompleter{}, "")

	env, data := decodeEnvelope(t, post(t, h, "/api/weRead/readInfo", `{"cookie":"`+testCookie+`","bookId":"b9"}`))
	if !env.Success || !strings.Contains(string(data), `"b9"`) {
		t.Errorf("envelope = %+v data = %s", env, data)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, &mockGateway{}, &mockCompleter{}, "s3cret")

	rr := post(t, h, "/api/weRead/books", `{"cookie":"`+testCookie+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/weRead/books", strings.NewReader(`{"cookie":"`+testCookie+`"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without token", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestHandler(t, &mockGateway{}, &mockCompleter{}, "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	const id = "7f1c9a2e-3b4d-4e5f-8a6b-1c2d3e4f5a6b"
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != id {
		t.Errorf("X-Request-ID = %q, want %q", got, id)
	}
}

func TestOK_KeepsDataKeyWhenEmpty(t *testing.T) {
	for _, data := range []any{nil, "", []string{}} {
		rr := httptest.NewRecorder()
		ok(rr, data)

		var raw map[string]json.RawMessage
		if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if _, present := raw["data"]; !present {
			t.Errorf("ok(%#v) body has no data key: %v", data, raw)
		}
		if string(raw["success"]) != "true" {
			t.Errorf("success = %s", raw["success"])
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{session.ErrInvalid, CodeInvalidCookie},
		{&weread.Error{Op: "x", Code: weread.CodeLoginTimeout}, CodeCookieExpired},
		{&weread.Error{Op: "x", HTTPStatus: 502}, CodeAPIError},
		{errors.New("boom"), CodeAPIError},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got.Code != tt.code || got.Success {
			t.Errorf("Classify(%v) = %+v, want %s", tt.err, got, tt.code)
		}
	}
}
