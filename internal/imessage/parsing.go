package imessage

import (
	"bytes"
	"regexp"
	"strings"
)

// MessageText returns the display text of a message. Modern Messages
// versions leave the text column NULL and store an NSAttributedString
// typedstream blob in attributedBody instead.
func MessageText(text string, attributedBody []byte) string {
	if text != "" {
		return text
	}
	return decodeAttributedBody(attributedBody)
}

var nsStringMarker = []byte("NSString")

// decodeAttributedBody extracts the string payload from an archived
// NSAttributedString. The typedstream format is undocumented; this is the
// widely used scan: locate the NSString class record, skip the 5-byte
// object header, then read a 1-byte or 0x81-prefixed 2-byte length.
func decodeAttributedBody(blob []byte) string {
	idx := bytes.Index(blob, nsStringMarker)
	if idx < 0 {
		return ""
	}
	rest := blob[idx+len(nsStringMarker):]
	if len(rest) < 6 {
		return ""
	}
	rest = rest[5:]
	var strLen int
	if rest[0] == 0x81 {
		if len(rest) < 3 {
			return ""
		}
		strLen = int(rest[1]) | int(rest[2])<<8
		rest = rest[3:]
	} else {
		strLen = int(rest[0])
		rest = rest[1:]
	}
	if strLen <= 0 || strLen > len(rest) {
		return ""
	}
	return string(rest[:strLen])
}

// ReactionKind maps an associated_message_type to its tapback name and
// whether it is a removal. Unknown types return ok=false.
func ReactionKind(associatedType int64) (kind string, removed bool, ok bool) {
	kinds := map[int64]string{
		2000: "loved",
		2001: "liked",
		2002: "disliked",
		2003: "laughed",
		2004: "emphasized",
		2005: "questioned",
	}
	if k, found := kinds[associatedType]; found {
		return k, false, true
	}
	if k, found := kinds[associatedType-1000]; found {
		return k, true, true
	}
	return "", false, false
}

// ReactionEmoji renders a tapback kind as its emoji.
func ReactionEmoji(kind string) string {
	switch kind {
	case "loved":
		return "❤️"
	case "liked":
		return "👍"
	case "disliked":
		return "👎"
	case "laughed":
		return "😂"
	case "emphasized":
		return "‼️"
	case "questioned":
		return "❓"
	default:
		return ""
	}
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// ExtractLinks returns the URLs embedded in message text, with trailing
// sentence punctuation stripped.
func ExtractLinks(text string) []string {
	matches := linkPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, strings.TrimRight(m, ".,;:!?)"))
	}
	return links
}
