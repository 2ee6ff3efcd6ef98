package imessage

import (
	"reflect"
	"strings"
	"testing"
)

func attributedBodyBlob(text string) []byte {
	blob := []byte("\x04\x0bstreamtyped")
	blob = append(blob, nsStringMarker...)
	blob = append(blob, 0x01, 0x94, 0x84, 0x01, 0x2b) // object header
	if len(text) > 255 {
		blob = append(blob, 0x81, byte(len(text)), byte(len(text)>>8))
	} else {
		blob = append(blob, byte(len(text)))
	}
	return append(blob, text...)
}

func TestMessageText(t *testing.T) {
	if got := MessageText("plain", nil); got != "plain" {
		t.Fatalf("Expected text column to win, got %q", got)
	}

	if got := MessageText("", attributedBodyBlob("Hello there")); got != "Hello there" {
		t.Fatalf("Expected decoded attributed body, got %q", got)
	}

	long := strings.Repeat("x", 300)
	if got := MessageText("", attributedBodyBlob(long)); got != long {
		t.Fatalf("Expected %d-byte decode, got %d bytes", len(long), len(got))
	}

	if got := MessageText("", []byte("no marker here")); got != "" {
		t.Fatalf("Expected empty string for unrecognized blob, got %q", got)
	}
	if got := MessageText("", nil); got != "" {
		t.Fatalf("Expected empty string for nil blob, got %q", got)
	}
}

func TestReactionKind(t *testing.T) {
	cases := []struct {
		typ     int64
		kind    string
		removed bool
		ok      bool
	}{
		{2000, "loved", false, true},
		{2001, "liked", false, true},
		{2005, "questioned", false, true},
		{3000, "loved", true, true},
		{3003, "laughed", true, true},
		{0, "", false, false},
		{1000, "", false, false},
	}

	for _, tc := range cases {
		kind, removed, ok := ReactionKind(tc.typ)
		if kind != tc.kind || removed != tc.removed || ok != tc.ok {
			t.Errorf("ReactionKind(%d) = (%q, %v, %v), want (%q, %v, %v)",
				tc.typ, kind, removed, ok, tc.kind, tc.removed, tc.ok)
		}
	}
}

func TestExtractLinks(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"see https://example.com/doc.", []string{"https://example.com/doc"}},
		{"http://a.io and https://b.io/x?q=1", []string{"http://a.io", "https://b.io/x?q=1"}},
		{"no links here", nil},
	}

	for _, tc := range cases {
		if got := ExtractLinks(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractLinks(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
