package weread

import (
	"errors"
	"fmt"
	"strings"
)

// Embedded status codes that mean the session cookie is no longer accepted.
const (
	CodeSessionExpired = -2012
	CodeLoginTimeout   = -2010
)

// Error is a failed upstream call. Code carries the payload's embedded
// errcode for logical failures; HTTPStatus is set for non-200 responses;
// Err holds transport and decoding causes.
type Error struct {
	Op         string
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("weread %s: errcode %d: %s", e.Op, e.Code, e.Message)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("weread %s: unexpected status %d: %s", e.Op, e.HTTPStatus, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("weread %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("weread %s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Logical reports whether the call reached the upstream and was rejected by
// a non-zero embedded status.
func (e *Error) Logical() bool {
	return e.Code != 0
}

// expiredPhrases appear in upstream messages for sessions that were logged
// out without one of the dedicated codes.
var expiredPhrases = []string{"Cookie已过期", "登录超时"}

// IsSessionExpired reports whether err carries one of the upstream codes
// signalling an expired or logged-out session.
func IsSessionExpired(err error) bool {
	var we *Error
	if !errors.As(err, &we) {
		return false
	}
	if we.Code == CodeSessionExpired || we.Code == CodeLoginTimeout {
		return true
	}
	if we.Code == 0 {
		return false
	}
	for _, p := range expiredPhrases {
		if strings.Contains(we.Message, p) {
			return true
		}
	}
	return false
}

// isLogical reports whether err is an upstream logical failure.
func isLogical(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Logical()
}
