// Package imessagetest builds throwaway chat.db fixtures for tests.
package imessagetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY,
	id TEXT UNIQUE,
	service TEXT
);

CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT UNIQUE,
	display_name TEXT,
	service_name TEXT
);

CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT UNIQUE,
	text TEXT,
	attributedBody BLOB,
	handle_id INTEGER,
	date INTEGER,
	date_read INTEGER,
	is_from_me INTEGER,
	associated_message_type INTEGER DEFAULT 0,
	associated_message_guid TEXT,
	cache_has_attachments INTEGER DEFAULT 0,
	FOREIGN KEY (handle_id) REFERENCES handle(ROWID)
);

CREATE TABLE chat_handle_join (
	chat_id INTEGER,
	handle_id INTEGER,
	PRIMARY KEY (chat_id, handle_id)
);

CREATE TABLE chat_message_join (
	chat_id INTEGER,
	message_id INTEGER,
	PRIMARY KEY (chat_id, message_id)
);

CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT UNIQUE,
	filename TEXT,
	mime_type TEXT,
	uti TEXT,
	total_bytes INTEGER,
	transfer_name TEXT
);

CREATE TABLE message_attachment_join (
	message_id INTEGER,
	attachment_id INTEGER,
	PRIMARY KEY (message_id, attachment_id)
);
`

// Sample data timestamps are Apple-epoch nanoseconds, mid-January 2026.
const sampleData = `
INSERT INTO handle (ROWID, id, service) VALUES
	(1, '+19175551234', 'iMessage'),
	(2, '+15625559876', 'iMessage'),
	(3, 'test@example.com', 'iMessage');

INSERT INTO chat (ROWID, guid, display_name, service_name) VALUES
	(1, 'iMessage;+;chat123', NULL, 'iMessage'),
	(2, 'iMessage;+;chat456', 'Test Group', 'iMessage');

INSERT INTO chat_handle_join (chat_id, handle_id) VALUES
	(1, 1),
	(2, 1),
	(2, 2);

INSERT INTO message (ROWID, guid, text, handle_id, date, is_from_me, associated_message_type, associated_message_guid) VALUES
	(1, 'msg1', 'Hello world', 1, 789100000000000000, 0, 0, NULL),
	(2, 'msg2', 'How are you?', NULL, 789100100000000000, 1, 0, NULL),
	(3, 'msg3', NULL, 1, 789100200000000000, 0, 2000, 'p:0/msg2'),
	(4, 'msg4', 'Can you help me with this?', NULL, 789200000000000000, 1, 0, NULL),
	(5, 'msg5', 'Sure, what do you need?', 1, 789400000000000000, 0, 0, NULL),
	(6, 'msg6', 'What time is the meeting?', NULL, 789500000000000000, 1, 0, NULL),
	(7, 'msg7', 'It is at 3pm', 1, 789500100000000000, 0, 0, NULL),
	(8, 'msg8', 'Check out https://example.com/doc and let me know', NULL, 789600000000000000, 1, 0, NULL);

INSERT INTO chat_message_join (chat_id, message_id) VALUES
	(1, 1), (1, 2), (1, 3), (1, 4), (1, 5), (1, 6), (1, 7), (1, 8);
`

const attachmentData = `
INSERT INTO message (ROWID, guid, text, handle_id, date, is_from_me, cache_has_attachments) VALUES
	(101, 'att_msg1', 'Check out this photo!', 2, 789700000000000000, 0, 1);

INSERT INTO chat_message_join (chat_id, message_id) VALUES
	(2, 101);

INSERT INTO attachment (ROWID, guid, filename, mime_type, uti, total_bytes, transfer_name) VALUES
	(1, 'att1', '~/Library/Messages/Attachments/IMG_001.jpg', 'image/jpeg', 'public.jpeg', 2458624, 'IMG_001.jpg');

INSERT INTO message_attachment_join (message_id, attachment_id) VALUES
	(101, 1);
`

// CreateDB writes an empty-schema chat.db into a temp dir and returns its
// path.
func CreateDB(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	exec(t, path, schema)
	return path
}

// CreatePopulatedDB writes a chat.db with two chats, three handles, a
// message history, one tapback, and one attachment.
func CreatePopulatedDB(t testing.TB) string {
	t.Helper()
	path := CreateDB(t)
	exec(t, path, sampleData)
	exec(t, path, attachmentData)
	return path
}

func exec(t testing.TB, path, script string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(script); err != nil {
		t.Fatalf("exec fixture script: %v", err)
	}
}
