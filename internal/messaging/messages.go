package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// MessageStore is the persistence boundary for message documents.
type MessageStore interface {
	// Append inserts the message and fills in its id and server-assigned
	// timestamp.
	Append(ctx context.Context, msg *Message) error
	// ListOrdered returns the most recent `limit` messages of a
	// conversation in ascending timestamp order. limit <= 0 means all.
	ListOrdered(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// MarkAllReadExcludingSender flips read=true on every unread message
	// not sent by readerID. Returns the number of rows touched.
	MarkAllReadExcludingSender(ctx context.Context, conversationID, readerID string) (int64, error)
}

type PostgresMessageStore struct {
	db       *sql.DB
	notifier Notifier
}

func NewPostgresMessageStore(db *sql.DB, notifier Notifier) *PostgresMessageStore {
	return &PostgresMessageStore{db: db, notifier: notifier}
}

func (s *PostgresMessageStore) Append(ctx context.Context, msg *Message) error {
	if strings.TrimSpace(msg.Text) == "" && msg.Attachment == nil {
		return ErrEmptyMessage
	}

	var attachment []byte
	if msg.Attachment != nil {
		raw, err := json.Marshal(msg.Attachment)
		if err != nil {
			return storeErr("messages.append", err)
		}
		attachment = raw
	}

	msg.ID = uuid.NewString()
	q := `INSERT INTO messages (id, conversation_id, sender_id, sender_name, body, priority, read, attachment)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, q,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Text, msg.Priority, attachment).
		Scan(&msg.Timestamp)
	if err != nil {
		return storeErr("messages.append", err)
	}

	s.notifier.ThreadChanged(ctx, msg.ConversationID)
	return nil
}

func (s *PostgresMessageStore) ListOrdered(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	// The inner query selects the tail of the thread; the outer one
	// restores ascending order for rendering.
	q := `SELECT id, conversation_id, sender_id, sender_name, body, priority, read, attachment, created_at
		FROM (
			SELECT id, conversation_id, sender_id, sender_name, body, priority, read, attachment, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) tail
		ORDER BY created_at ASC, id ASC`

	var args []any
	if limit > 0 {
		args = []any{conversationID, limit}
	} else {
		q = `SELECT id, conversation_id, sender_id, sender_name, body, priority, read, attachment, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at ASC, id ASC`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("messages.list", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg           Message
			attachmentRaw []byte
		)
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName,
			&msg.Text, &msg.Priority, &msg.Read, &attachmentRaw, &msg.Timestamp)
		if err != nil {
			return nil, storeErr("messages.list", err)
		}
		if len(attachmentRaw) > 0 {
			msg.Attachment = &Attachment{}
			if err := json.Unmarshal(attachmentRaw, msg.Attachment); err != nil {
				return nil, storeErr("messages.list", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("messages.list", err)
	}
	return messages, nil
}

func (s *PostgresMessageStore) MarkAllReadExcludingSender(ctx context.Context, conversationID, readerID string) (int64, error) {
	q := `UPDATE messages SET read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND read = FALSE`
	res, err := s.db.ExecContext(ctx, q, conversationID, readerID)
	if err != nil {
		return 0, storeErr("messages.mark_read", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifier.ThreadChanged(ctx, conversationID)
	}
	return n, nil
}
