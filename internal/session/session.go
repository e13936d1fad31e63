package session

import (
	"errors"
	"strings"
)

// Identity cookie keys required by the reading platform.
const (
	KeyVID  = "wr_vid"
	KeySKey = "wr_skey"
)

// ErrInvalid is returned when a credential lacks either identity field.
var ErrInvalid = errors.New("invalid session credential")

// Session is a credential that has passed local validation. The raw cookie
// string is forwarded upstream unchanged.
type Session struct {
	raw  string
	vid  string
	skey string
}

// New parses raw and returns a Session, or ErrInvalid when either identity
// key is missing or empty.
func New(raw string) (Session, error) {
	pairs := Parse(raw)
	vid, skey := pairs[KeyVID], pairs[KeySKey]
	if vid == "" || skey == "" {
		return Session{}, ErrInvalid
	}
	return Session{raw: strings.TrimSpace(raw), vid: vid, skey: skey}, nil
}

// IsValid reports whether raw carries non-empty values for both identity keys.
// It does not check expiry; an expired cookie is only detected upstream.
func IsValid(raw string) bool {
	_, err := New(raw)
	return err == nil
}

// Parse splits a cookie string into key/value pairs. Segments without a '='
// or with an empty key are ignored. Keys and values are trimmed.
func Parse(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Cookie returns the raw credential for the upstream Cookie header.
func (s Session) Cookie() string { return s.raw }

// VID returns the user id carried by the credential.
func (s Session) VID() string { return s.vid }

// IsZero reports whether s was never validated.
func (s Session) IsZero() bool { return s.raw == "" }

// String redacts the secret key so sessions are safe to log.
func (s Session) String() string {
	if s.IsZero() {
		return "session(none)"
	}
	return "session(vid=" + s.vid + ")"
}
