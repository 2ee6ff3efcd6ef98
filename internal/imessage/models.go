package imessage

import (
	"fmt"
	"strings"
	"time"
)

// Participant is one member of a chat, with the contact name when resolvable.
type Participant struct {
	Handle string
	Name   string
}

// DisplayName returns the contact name, falling back to a formatted handle.
func (p Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return FormatHandleDisplay(p.Handle)
}

// firstName returns the leading word of the participant's display name.
func (p Participant) firstName() string {
	name := p.DisplayName()
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// GenerateDisplayName synthesizes a chat title from its participants, used
// when the chat has no explicit display_name: "Alice", "Alice & Bob",
// "Alice, Bob +2".
func GenerateDisplayName(participants []Participant) string {
	switch len(participants) {
	case 0:
		return "Empty chat"
	case 1:
		return participants[0].DisplayName()
	case 2:
		return participants[0].firstName() + " & " + participants[1].firstName()
	default:
		return fmt.Sprintf("%s, %s +%d", participants[0].firstName(), participants[1].firstName(), len(participants)-2)
	}
}

// Chat is a conversation row.
type Chat struct {
	ID          int64
	GUID        string
	DisplayName string
	ServiceName string
}

// Message is one message row with its sender handle resolved.
type Message struct {
	ID             int64
	GUID           string
	Text           string
	AttributedBody []byte
	Date           time.Time
	IsFromMe       bool
	SenderHandle   string
	HasAttachments bool
}

// Reaction is a tapback associated with a message.
type Reaction struct {
	Kind       string // loved, liked, disliked, laughed, emphasized, questioned
	FromHandle string // empty when sent by the local user
	Removed    bool
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID           int64
	Filename     string
	MimeType     string
	UTI          string
	TotalBytes   int64
	TransferName string
}
