package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// Failure codes carried in the envelope.
const (
	CodeCookieExpired = "COOKIE_EXPIRED"
	CodeInvalidCookie = "INVALID_COOKIE"
	CodeAPIError      = "API_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnauthorized  = "UNAUTHORIZED"
)

const (
	msgCookieExpired = "微信读书Cookie已过期，请重新设置Cookie"
	msgInvalidCookie = "Cookie格式无效，请检查Cookie设置"
	msgRequestFailed = "请求失败"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Envelope is the response shape of every JSON endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: writing response", "error", err)
	}
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// fail reports a domain failure. Domain failures are still HTTP 200; the
// envelope carries the outcome.
func fail(w http.ResponseWriter, err error) {
	env := Classify(err)
	slog.Warn("api: request failed", "code", env.Code, "error", err)
	writeJSON(w, http.StatusOK, env)
}

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	writeJSON(w, status, Envelope{Message: fmt.Sprintf(format, args...), Code: code})
}

// Classify maps an error to its failure envelope.
func Classify(err error) Envelope {
	switch {
	case errors.Is(err, session.ErrInvalid):
		return Envelope{Message: msgInvalidCookie, Code: CodeInvalidCookie}
	case weread.IsSessionExpired(err):
		return Envelope{Message: msgCookieExpired, Code: CodeCookieExpired}
	case err == nil:
		return Envelope{Message: msgRequestFailed, Code: CodeAPIError}
	default:
		msg := err.Error()
		if msg == "" {
			msg = msgRequestFailed
		}
		return Envelope{Message: msg, Code: CodeAPIError}
	}
}

// decode reads a JSON body into v, answering 400 itself on failure. An
// empty body decodes to the zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		httpError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}
