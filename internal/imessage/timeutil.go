package imessage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeInput interprets a user-supplied time bound. Accepted forms:
// RFC 3339 (with or without time), relative offsets like "24h" / "7d" /
// "30m" (meaning that long ago), and "today" / "yesterday". Returns the
// zero time when the input cannot be interpreted.
func ParseTimeInput(input string, now time.Time) time.Time {
	orig := strings.TrimSpace(input)
	s := strings.ToLower(orig)
	if s == "" {
		return time.Time{}
	}

	switch s {
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "yesterday":
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}

	if n := len(s); n > 1 {
		if num, err := strconv.Atoi(s[:n-1]); err == nil && num > 0 {
			switch s[n-1] {
			case 'm':
				return now.Add(-time.Duration(num) * time.Minute)
			case 'h':
				return now.Add(-time.Duration(num) * time.Hour)
			case 'd':
				return now.AddDate(0, 0, -num)
			case 'w':
				return now.AddDate(0, 0, -7*num)
			}
		}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, orig, now.Location()); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatCompactRelative renders how long ago t was in the shortest useful
// unit: "now", "5m", "3h", "2d", "4w".
func FormatCompactRelative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/(24*7)))
	}
}
