package imessage

import (
	"fmt"
	"strings"
)

// NormalizeE164 canonicalizes a phone number to E.164. Matching the
// Messages ecosystem this is US-biased: bare 10-digit numbers gain a +1.
// Returns "" when the input is not a phone number (e.g. an email handle).
func NormalizeE164(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, "@") {
		return ""
	}
	hasPlus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case hasPlus && len(d) >= 7:
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return ""
	}
}

// FormatHandleDisplay renders a handle for humans: US numbers as
// (NXX) NXX-XXXX, other numbers unchanged, emails unchanged.
func FormatHandleDisplay(handle string) string {
	if handle == "" {
		return "unknown"
	}
	if strings.Contains(handle, "@") {
		return handle
	}
	e164 := NormalizeE164(handle)
	if strings.HasPrefix(e164, "+1") && len(e164) == 12 {
		d := e164[2:]
		return fmt.Sprintf("(%s) %s-%s", d[0:3], d[3:6], d[6:10])
	}
	if e164 != "" {
		return e164
	}
	return handle
}
