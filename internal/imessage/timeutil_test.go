package imessage

import (
	"testing"
	"time"
)

func TestParseTimeInput(t *testing.T) {
	now := time.Date(2026, time.January, 16, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{"24h", now.Add(-24 * time.Hour)},
		{"30m", now.Add(-30 * time.Minute)},
		{"7d", now.AddDate(0, 0, -7)},
		{"2w", now.AddDate(0, 0, -14)},
		{"2026-01-10", time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)},
		{"2026-01-10T12:00:00Z", time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
		{"", time.Time{}},
	}

	for _, tc := range cases {
		if got := ParseTimeInput(tc.in, now); !got.Equal(tc.want) {
			t.Errorf("ParseTimeInput(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatCompactRelative(t *testing.T) {
	now := time.Date(2026, time.January, 16, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "now"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2d"},
		{28 * 24 * time.Hour, "4w"},
	}

	for _, tc := range cases {
		if got := FormatCompactRelative(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("FormatCompactRelative(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}

	if got := FormatCompactRelative(time.Time{}, now); got != "" {
		t.Errorf("Expected empty string for zero time, got %q", got)
	}
}
