package imessage

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+19175551234", "+19175551234"},
		{"9175551234", "+19175551234"},
		{"19175551234", "+19175551234"},
		{"(917) 555-1234", "+19175551234"},
		{"917-555-1234", "+19175551234"},
		{"+442071234567", "+442071234567"},
		{"test@example.com", ""},
		{"Alice", ""},
		{"", ""},
		{"123", ""},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.in); got != tc.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatHandleDisplay(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+19175551234", "(917) 555-1234"},
		{"test@example.com", "test@example.com"},
		{"+442071234567", "+442071234567"},
		{"", "unknown"},
	}

	for _, tc := range cases {
		if got := FormatHandleDisplay(tc.in); got != tc.want {
			t.Errorf("FormatHandleDisplay(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
