package store

import (
	"database/sql"
	"time"
)

// AppendMessage persists a new message and fills in its row ID. Messages are
// never updated or deleted afterwards; only MarkRead touches them.
func (db *DB) AppendMessage(m *Message) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (msg_id, from_user, to_user, body, is_read, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.MsgID, m.From, m.To, m.Body, m.IsRead, m.Timestamp, now)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListBetween returns all messages exchanged between the unordered pair
// (a, b), oldest first. Row ID breaks timestamp ties so the order matches
// persistence order.
func (db *DB) ListBetween(a, b string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, msg_id, from_user, to_user, body, is_read, timestamp
		FROM messages
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY timestamp ASC, id ASC`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListForParticipant returns every message the user sent or received,
// oldest first. Used for the conversation-list bootstrap.
func (db *DB) ListForParticipant(userID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, msg_id, from_user, to_user, body, is_read, timestamp
		FROM messages
		WHERE from_user = ? OR to_user = ?
		ORDER BY timestamp ASC, id ASC`, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// CountUnread returns the number of unread messages addressed to userID.
func (db *DB) CountUnread(userID string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE to_user = ? AND is_read = 0`, userID).
		Scan(&count)
	return count, err
}

// UnreadBySender returns unread counts addressed to userID, grouped by
// sender. Senders with no unread messages are absent from the map.
func (db *DB) UnreadBySender(userID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT from_user, COUNT(*) FROM messages
		WHERE to_user = ? AND is_read = 0
		GROUP BY from_user`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

// MarkRead flips every unread message from fromUser to toUser to read and
// returns the number of rows modified. Calling it again is a no-op.
func (db *DB) MarkRead(fromUser, toUser string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE from_user = ? AND to_user = ? AND is_read = 0`, fromUser, toUser)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MsgID, &m.From, &m.To, &m.Body, &m.IsRead, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
