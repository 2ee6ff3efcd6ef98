package imessage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage/imessagetest"
)

func openFixture(t *testing.T) *DB {
	t.Helper()
	db, err := Open(imessagetest.CreatePopulatedDB(t))
	if err != nil {
		t.Fatalf("Failed to open fixture db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open("/nonexistent/chat.db")
	if !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("Expected ErrDatabaseNotFound, got %v", err)
	}
}

func TestResolveChatID(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	id, err := db.ResolveChatID(ctx, "chat1")
	if err != nil {
		t.Fatalf("Failed to resolve chat1: %v", err)
	}
	if id != 1 {
		t.Fatalf("Expected chat id 1, got %d", id)
	}

	id, err = db.ResolveChatID(ctx, "chat456")
	if err != nil {
		t.Fatalf("Failed to resolve by guid fragment: %v", err)
	}
	if id != 2 {
		t.Fatalf("Expected chat id 2 from guid match, got %d", id)
	}

	if _, err := db.ResolveChatID(ctx, "nope-xyz"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("Expected ErrChatNotFound, got %v", err)
	}
}

func TestGetChat(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	c, err := db.GetChat(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to load chat: %v", err)
	}
	if c.DisplayName != "Test Group" {
		t.Fatalf("Expected display name 'Test Group', got %q", c.DisplayName)
	}

	if _, err := db.GetChat(ctx, 99); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("Expected ErrChatNotFound, got %v", err)
	}
}

func TestChatParticipants(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	resolver := StaticResolver{"+19175551234": "Alice Smith"}
	participants, err := db.ChatParticipants(ctx, 2, resolver)
	if err != nil {
		t.Fatalf("Failed to load participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(participants))
	}
	if participants[0].Handle != "+19175551234" || participants[0].Name != "Alice Smith" {
		t.Fatalf("Expected resolved first participant, got %+v", participants[0])
	}
	if participants[1].Name != "" {
		t.Fatalf("Expected unresolved second participant, got %+v", participants[1])
	}
}

func TestMessagesForChat(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	msgs, err := db.MessagesForChat(ctx, 1, MessageQuery{})
	if err != nil {
		t.Fatalf("Failed to load messages: %v", err)
	}
	// 8 rows in chat 1, one of which is a tapback and must be excluded.
	if len(msgs) != 7 {
		t.Fatalf("Expected 7 messages, got %d", len(msgs))
	}
	if msgs[0].GUID != "msg8" {
		t.Fatalf("Expected newest first (msg8), got %s", msgs[0].GUID)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Date.After(msgs[i-1].Date) {
			t.Fatalf("Expected descending order at index %d", i)
		}
	}
}

func TestMessagesForChat_Filters(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	msgs, err := db.MessagesForChat(ctx, 1, MessageQuery{FromMe: true})
	if err != nil {
		t.Fatalf("Failed to filter from me: %v", err)
	}
	for _, m := range msgs {
		if !m.IsFromMe {
			t.Fatalf("Expected only own messages, got %s", m.GUID)
		}
	}

	msgs, err = db.MessagesForChat(ctx, 1, MessageQuery{FromHandle: "+19175551234"})
	if err != nil {
		t.Fatalf("Failed to filter by handle: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages from handle, got %d", len(msgs))
	}

	msgs, err = db.MessagesForChat(ctx, 1, MessageQuery{Contains: "meeting"})
	if err != nil {
		t.Fatalf("Failed to filter by text: %v", err)
	}
	if len(msgs) != 1 || msgs[0].GUID != "msg6" {
		t.Fatalf("Expected msg6 only, got %v", msgs)
	}

	msgs, err = db.MessagesForChat(ctx, 1, MessageQuery{Has: "links"})
	if err != nil {
		t.Fatalf("Failed to filter by links: %v", err)
	}
	if len(msgs) != 1 || msgs[0].GUID != "msg8" {
		t.Fatalf("Expected msg8 only, got %v", msgs)
	}

	msgs, err = db.MessagesForChat(ctx, 1, MessageQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Failed to limit: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
}

func TestMessagesForChat_TimeBounds(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	cutoff := AppleToTime(789200000000000000)

	msgs, err := db.MessagesForChat(ctx, 1, MessageQuery{Since: cutoff})
	if err != nil {
		t.Fatalf("Failed to filter since: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("Expected 5 messages since cutoff, got %d", len(msgs))
	}

	msgs, err = db.MessagesForChat(ctx, 1, MessageQuery{Before: cutoff})
	if err != nil {
		t.Fatalf("Failed to filter before: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages before cutoff, got %d", len(msgs))
	}
}

func TestReactionsForMessages(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	reactions, err := db.ReactionsForMessages(ctx, []string{"msg2"})
	if err != nil {
		t.Fatalf("Failed to load reactions: %v", err)
	}
	got := reactions["msg2"]
	if len(got) != 1 {
		t.Fatalf("Expected 1 reaction on msg2, got %d", len(got))
	}
	if got[0].Kind != "loved" || got[0].Removed {
		t.Fatalf("Expected active loved reaction, got %+v", got[0])
	}
	if got[0].FromHandle != "+19175551234" {
		t.Fatalf("Expected reaction sender handle, got %q", got[0].FromHandle)
	}

	if reactions, err = db.ReactionsForMessages(ctx, nil); err != nil || reactions != nil {
		t.Fatalf("Expected nil map for empty input, got %v, %v", reactions, err)
	}
}

func TestFindChatsByHandles(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	chats, err := db.FindChatsByHandles(ctx, []string{"+19175551234", "+15625559876"}, 5)
	if err != nil {
		t.Fatalf("Failed to find chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("Expected 2 chats, got %d", len(chats))
	}
	// Chat 2 matches both handles and must rank first.
	if chats[0].ID != 2 {
		t.Fatalf("Expected chat 2 first by match count, got chat %d", chats[0].ID)
	}
}

func TestChatsByName(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	chats, err := db.ChatsByName(ctx, "Test", 5)
	if err != nil {
		t.Fatalf("Failed to find chats by name: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != 2 {
		t.Fatalf("Expected only chat 2, got %v", chats)
	}
}

func TestChatsByRecentContent(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	chats, err := db.ChatsByRecentContent(ctx, "meeting", 5)
	if err != nil {
		t.Fatalf("Failed to find chats by content: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != 1 {
		t.Fatalf("Expected only chat 1, got %v", chats)
	}
}

func TestLastMessage(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	m, ok, err := db.LastMessage(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to load last message: %v", err)
	}
	if !ok {
		t.Fatal("Expected a last message")
	}
	if m.Text != "Check out https://example.com/doc and let me know" {
		t.Fatalf("Expected newest non-reaction message, got %q", m.Text)
	}

	empty, err := Open(imessagetest.CreateDB(t))
	if err != nil {
		t.Fatalf("Failed to open empty db: %v", err)
	}
	defer empty.Close()
	if _, ok, err := empty.LastMessage(ctx, 1); err != nil || ok {
		t.Fatalf("Expected no last message in empty db, got ok=%v err=%v", ok, err)
	}
}

func TestAttachmentsForMessage(t *testing.T) {
	db := openFixture(t)
	ctx := context.Background()

	atts, err := db.AttachmentsForMessage(ctx, 101)
	if err != nil {
		t.Fatalf("Failed to load attachments: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("Expected 1 attachment, got %d", len(atts))
	}
	if atts[0].MimeType != "image/jpeg" || atts[0].TransferName != "IMG_001.jpg" {
		t.Fatalf("Unexpected attachment row: %+v", atts[0])
	}
}

func TestAppleTimeConversion(t *testing.T) {
	ts := time.Date(2026, time.January, 13, 0, 0, 0, 0, time.UTC)
	apple := TimeToApple(ts)
	if back := AppleToTime(apple); !back.Equal(ts) {
		t.Fatalf("Expected round-trip %v, got %v", ts, back)
	}

	// Legacy second-scale timestamps still convert.
	legacy := AppleToTime(600000000)
	if legacy.Year() != 2020 {
		t.Fatalf("Expected second-scale value in 2020, got %v", legacy)
	}

	if !AppleToTime(0).IsZero() {
		t.Fatal("Expected zero time for zero value")
	}
}
