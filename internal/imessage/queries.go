package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResolveChatID turns a client-facing chat identifier ("chat42" or a GUID
// fragment) into the chat ROWID.
func (d *DB) ResolveChatID(ctx context.Context, chatID string) (int64, error) {
	if rest, ok := strings.CutPrefix(chatID, "chat"); ok {
		if n, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return n, nil
		}
	}
	var rowID int64
	err := d.sqldb.QueryRowContext(ctx,
		`SELECT ROWID FROM chat WHERE guid LIKE ? LIMIT 1`, "%"+chatID+"%",
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve chat id %q: %w", chatID, err)
	}
	return rowID, nil
}

// GetChat loads one chat row by ROWID.
func (d *DB) GetChat(ctx context.Context, id int64) (Chat, error) {
	var c Chat
	var displayName, serviceName sql.NullString
	err := d.sqldb.QueryRowContext(ctx,
		`SELECT ROWID, guid, display_name, service_name FROM chat WHERE ROWID = ?`, id,
	).Scan(&c.ID, &c.GUID, &displayName, &serviceName)
	if err == sql.ErrNoRows {
		return Chat{}, fmt.Errorf("%w: chat%d", ErrChatNotFound, id)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("load chat %d: %w", id, err)
	}
	c.DisplayName = displayName.String
	c.ServiceName = serviceName.String
	return c, nil
}

// ChatParticipants returns the chat's member handles, with names filled from
// the resolver.
func (d *DB) ChatParticipants(ctx context.Context, chatID int64, resolver ContactResolver) ([]Participant, error) {
	rows, err := d.sqldb.QueryContext(ctx, `
		SELECT h.id FROM handle h
		JOIN chat_handle_join chj ON h.ROWID = chj.handle_id
		WHERE chj.chat_id = ?
		ORDER BY h.ROWID`, chatID)
	if err != nil {
		return nil, fmt.Errorf("load participants for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, err
		}
		p := Participant{Handle: handle}
		if resolver != nil {
			p.Name = resolver.Resolve(handle)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MessageQuery filters MessagesForChat. Zero values mean "no filter".
type MessageQuery struct {
	Limit      int
	Since      time.Time
	Before     time.Time
	FromHandle string
	FromMe     bool // only messages sent by the local user
	Contains   string
	// Has filters by content kind: "links" or "attachments".
	Has string
}

// MessagesForChat returns the chat's messages, newest first, reactions
// excluded (associated_message_type = 0 rows only).
func (d *DB) MessagesForChat(ctx context.Context, chatID int64, q MessageQuery) ([]Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT m.ROWID, m.guid, m.text, m.attributedBody, m.date, m.is_from_me,
		       h.id, m.cache_has_attachments
		FROM message m
		JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		WHERE cmj.chat_id = ? AND m.associated_message_type = 0`)
	args := []any{chatID}

	if !q.Since.IsZero() {
		sb.WriteString(" AND m.date >= ?")
		args = append(args, TimeToApple(q.Since))
	}
	if !q.Before.IsZero() {
		sb.WriteString(" AND m.date < ?")
		args = append(args, TimeToApple(q.Before))
	}
	if q.FromMe {
		sb.WriteString(" AND m.is_from_me = 1")
	} else if q.FromHandle != "" {
		sb.WriteString(" AND m.is_from_me = 0 AND h.id = ?")
		args = append(args, q.FromHandle)
	}
	if q.Contains != "" {
		sb.WriteString(" AND m.text LIKE ?")
		args = append(args, "%"+q.Contains+"%")
	}
	switch q.Has {
	case "attachments":
		sb.WriteString(" AND m.cache_has_attachments = 1")
	case "links":
		sb.WriteString(" AND m.text LIKE '%http%'")
	}
	sb.WriteString(" ORDER BY m.date DESC LIMIT ?")
	args = append(args, limit)

	rows, err := d.sqldb.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("load messages for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var text sql.NullString
		var body []byte
		var date sql.NullInt64
		var fromMe sql.NullInt64
		var sender sql.NullString
		var hasAtt sql.NullInt64
		if err := rows.Scan(&m.ID, &m.GUID, &text, &body, &date, &fromMe, &sender, &hasAtt); err != nil {
			return nil, err
		}
		m.Text = text.String
		m.AttributedBody = body
		m.Date = AppleToTime(date.Int64)
		m.IsFromMe = fromMe.Int64 == 1
		m.SenderHandle = sender.String
		m.HasAttachments = hasAtt.Int64 == 1
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReactionsForMessages returns tapbacks keyed by target message GUID. The
// associated_message_guid column carries prefixes like "p:0/<guid>", so
// matching is by suffix.
func (d *DB) ReactionsForMessages(ctx context.Context, guids []string) (map[string][]Reaction, error) {
	if len(guids) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(guids))
	args := make([]any, 0, len(guids))
	for _, g := range guids {
		conds = append(conds, "m.associated_message_guid LIKE ?")
		args = append(args, "%"+g)
	}

	query := fmt.Sprintf(`
		SELECT m.associated_message_guid, m.associated_message_type, m.is_from_me, h.id
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		WHERE m.associated_message_type >= 2000 AND (%s)`, strings.Join(conds, " OR "))

	rows, err := d.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	targets := make(map[string]struct{}, len(guids))
	for _, g := range guids {
		targets[g] = struct{}{}
	}

	out := make(map[string][]Reaction)
	for rows.Next() {
		var assocGUID sql.NullString
		var assocType int64
		var fromMe sql.NullInt64
		var sender sql.NullString
		if err := rows.Scan(&assocGUID, &assocType, &fromMe, &sender); err != nil {
			return nil, err
		}
		kind, removed, ok := ReactionKind(assocType)
		if !ok {
			continue
		}
		target := assocGUID.String
		if i := strings.LastIndexByte(target, '/'); i >= 0 {
			target = target[i+1:]
		}
		if _, want := targets[target]; !want {
			continue
		}
		r := Reaction{Kind: kind, Removed: removed}
		if fromMe.Int64 != 1 {
			r.FromHandle = sender.String
		}
		out[target] = append(out[target], r)
	}
	return out, rows.Err()
}

// FindChatsByHandles returns chats whose membership overlaps the given
// handles, ranked by how many handles matched and then by chat recency.
func (d *DB) FindChatsByHandles(ctx context.Context, handles []string, limit int) ([]Chat, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(handles)), ",")
	args := make([]any, 0, len(handles)+1)
	for _, h := range handles {
		args = append(args, h)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT c.ROWID, c.guid, c.display_name, c.service_name,
		       COUNT(DISTINCT h.id) AS matched
		FROM chat c
		JOIN chat_handle_join chj ON c.ROWID = chj.chat_id
		JOIN handle h ON chj.handle_id = h.ROWID
		WHERE h.id IN (%s)
		GROUP BY c.ROWID
		ORDER BY matched DESC, c.ROWID DESC
		LIMIT ?`, placeholders)

	return d.scanChats(ctx, query, args...)
}

// ChatsByName finds chats whose display name matches the fragment.
func (d *DB) ChatsByName(ctx context.Context, name string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 5
	}
	return d.scanChatsNoCount(ctx, `
		SELECT ROWID, guid, display_name, service_name
		FROM chat WHERE display_name LIKE ? LIMIT ?`, "%"+name+"%", limit)
}

// ChatsByRecentContent finds chats with recent messages containing the text.
func (d *DB) ChatsByRecentContent(ctx context.Context, text string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 5
	}
	return d.scanChatsNoCount(ctx, `
		SELECT DISTINCT c.ROWID, c.guid, c.display_name, c.service_name
		FROM chat c
		JOIN chat_message_join cmj ON c.ROWID = cmj.chat_id
		JOIN message m ON cmj.message_id = m.ROWID
		WHERE m.text LIKE ?
		ORDER BY m.date DESC
		LIMIT ?`, "%"+text+"%", limit)
}

// LastMessage returns the most recent non-reaction message of a chat.
func (d *DB) LastMessage(ctx context.Context, chatID int64) (Message, bool, error) {
	var m Message
	var text sql.NullString
	var body []byte
	var date sql.NullInt64
	var fromMe sql.NullInt64
	var sender sql.NullString
	err := d.sqldb.QueryRowContext(ctx, `
		SELECT m.text, m.attributedBody, m.date, m.is_from_me, h.id
		FROM message m
		JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		WHERE cmj.chat_id = ? AND m.associated_message_type = 0
		ORDER BY m.date DESC LIMIT 1`, chatID).Scan(&text, &body, &date, &fromMe, &sender)
	if err == sql.ErrNoRows {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("load last message for chat %d: %w", chatID, err)
	}
	m.Text = text.String
	m.AttributedBody = body
	m.Date = AppleToTime(date.Int64)
	m.IsFromMe = fromMe.Int64 == 1
	m.SenderHandle = sender.String
	return m, true, nil
}

// AttachmentsForMessage returns the files attached to one message.
func (d *DB) AttachmentsForMessage(ctx context.Context, messageID int64) ([]Attachment, error) {
	rows, err := d.sqldb.QueryContext(ctx, `
		SELECT a.ROWID, a.filename, a.mime_type, a.uti, a.total_bytes, a.transfer_name
		FROM attachment a
		JOIN message_attachment_join maj ON a.ROWID = maj.attachment_id
		WHERE maj.message_id = ?
		ORDER BY a.ROWID`, messageID)
	if err != nil {
		return nil, fmt.Errorf("load attachments for message %d: %w", messageID, err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		var filename, mime, uti, transfer sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&a.ID, &filename, &mime, &uti, &size, &transfer); err != nil {
			return nil, err
		}
		a.Filename = filename.String
		a.MimeType = mime.String
		a.UTI = uti.String
		a.TotalBytes = size.Int64
		a.TransferName = transfer.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) scanChats(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := d.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		var displayName, serviceName sql.NullString
		var matched int64
		if err := rows.Scan(&c.ID, &c.GUID, &displayName, &serviceName, &matched); err != nil {
			return nil, err
		}
		c.DisplayName = displayName.String
		c.ServiceName = serviceName.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) scanChatsNoCount(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := d.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		var displayName, serviceName sql.NullString
		if err := rows.Scan(&c.ID, &c.GUID, &displayName, &serviceName); err != nil {
			return nil, err
		}
		c.DisplayName = displayName.String
		c.ServiceName = serviceName.String
		out = append(out, c)
	}
	return out, rows.Err()
}
