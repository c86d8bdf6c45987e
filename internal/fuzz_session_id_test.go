package internal

import (
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		sid, err := NewSessionID()
		if err != nil {
			t.Fatalf("new session id: %v", err)
		}
		s := sid.String()
		if len(s) != 22 {
			t.Fatalf("expected 22 char id, got %d (%q)", len(s), s)
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate session id %q", s)
		}
		seen[s] = struct{}{}

		parsed, err := ParseSessionID(s)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if parsed != sid {
			t.Fatalf("roundtrip mismatch for %q", s)
		}
	}
}

// FuzzParseSessionID checks that arbitrary input never panics and that every
// accepted id re-encodes to the same string.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		sid, err := ParseSessionID(input)
		if err != nil {
			if err != ErrInvalidSessionID {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if sid.String() != input {
			t.Fatalf("non-canonical id accepted: %q -> %q", input, sid.String())
		}
	})
}
