package weread

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSessionExpired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"session code", &Error{Op: "shelf", Code: CodeSessionExpired}, true},
		{"login timeout code", &Error{Op: "shelf", Code: CodeLoginTimeout}, true},
		{"wrapped", fmt.Errorf("loading shelf: %w", &Error{Op: "shelf", Code: CodeSessionExpired}), true},
		{"phrase in logical failure", &Error{Op: "shelf", Code: -1, Message: "登录超时，请重新登录"}, true},
		{"other logical failure", &Error{Op: "shelf", Code: -1, Message: "参数错误"}, false},
		{"http status", &Error{Op: "shelf", HTTPStatus: 500, Message: "登录超时"}, false},
		{"plain error", errors.New("errcode -2012"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSessionExpired(tt.err); got != tt.want {
				t.Errorf("IsSessionExpired(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := &Error{Op: "bookmarks", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap does not expose the transport cause")
	}
	if got := err.Error(); got != "weread bookmarks: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	logical := &Error{Op: "shelf", Code: -2012, Message: "expired"}
	if !logical.Logical() || logical.Error() != "weread shelf: errcode -2012: expired" {
		t.Errorf("logical = %v (%q)", logical.Logical(), logical.Error())
	}
}
