package session

import (
	"errors"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"both keys", "wr_vid=1;wr_skey=abc", true},
		{"reversed order", "wr_skey=abc; wr_vid=1", true},
		{"extra pairs and spacing", "  foo=bar ;  wr_vid = 42 ; wr_skey= xyz ;wr_name=me", true},
		{"trailing semicolon", "wr_vid=1;wr_skey=abc;", true},
		{"empty string", "", false},
		{"whitespace only", "   ", false},
		{"no delimiters", "wr_vid wr_skey", false},
		{"missing skey", "wr_vid=1", false},
		{"missing vid", "wr_skey=abc", false},
		{"empty vid", "wr_vid=;wr_skey=abc", false},
		{"empty skey", "wr_vid=1;wr_skey=  ", false},
		{"similar key names", "xwr_vid=1;wr_skeyx=abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.raw); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(" wr_vid=7; wr_skey=secret ")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.VID() != "7" {
		t.Errorf("VID = %q, want %q", s.VID(), "7")
	}
	if s.Cookie() != "wr_vid=7; wr_skey=secret" {
		t.Errorf("Cookie = %q", s.Cookie())
	}
	if got := s.String(); got != "session(vid=7)" {
		t.Errorf("String = %q, want redacted form", got)
	}
}

func TestNew_Invalid(t *testing.T) {
	s, err := New("wr_vid=7")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if !s.IsZero() {
		t.Error("invalid session should be zero")
	}
}

func TestParse_ValueContainsEquals(t *testing.T) {
	got := Parse("wr_skey=a=b;wr_vid=1")
	if got["wr_skey"] != "a=b" {
		t.Errorf("wr_skey = %q, want %q", got["wr_skey"], "a=b")
	}
}
