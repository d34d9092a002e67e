package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// ConversationStore is the persistence boundary for conversation documents.
type ConversationStore interface {
	// FindContaining lists every conversation userID participates in,
	// most recently updated first.
	FindContaining(ctx context.Context, userID string) ([]Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	// CreateIfAbsent inserts the conversation unless its id already
	// exists. Safe to call concurrently for the same pair.
	CreateIfAbsent(ctx context.Context, conv *Conversation) error
	// UpdateOnNewMessage sets the preview, increments the recipient's
	// unread counter and bumps updated_at in one atomic statement.
	UpdateOnNewMessage(ctx context.Context, id string, preview Preview, recipientID string) error
	ResetUnread(ctx context.Context, id, userID string) error
}

type PostgresConversationStore struct {
	db       *sql.DB
	notifier Notifier
}

func NewPostgresConversationStore(db *sql.DB, notifier Notifier) *PostgresConversationStore {
	return &PostgresConversationStore{db: db, notifier: notifier}
}

const conversationColumns = `id, participant_low, participant_high, participants_info, last_message, unread_count, created_at, updated_at`

func (s *PostgresConversationStore) FindContaining(ctx context.Context, userID string) ([]Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE participant_low = $1 OR participant_high = $1
		ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storeErr("conversations.find", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, storeErr("conversations.find", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("conversations.find", err)
	}
	return conversations, nil
}

func (s *PostgresConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, storeErr("conversations.get", err)
	}
	return conv, nil
}

func (s *PostgresConversationStore) CreateIfAbsent(ctx context.Context, conv *Conversation) error {
	low, high := SortPair(conv.Participants[0], conv.Participants[1])
	info, err := json.Marshal(conv.ParticipantsInfo)
	if err != nil {
		return storeErr("conversations.create", err)
	}
	unread, err := json.Marshal(conv.UnreadCount)
	if err != nil {
		return storeErr("conversations.create", err)
	}

	q := `INSERT INTO conversations (id, participant_low, participant_high, participants_info, unread_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q, conv.ID, low, high, info, unread)
	if err != nil {
		return storeErr("conversations.create", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notifier.ConversationsChanged(ctx, low, high)
	}
	return nil
}

func (s *PostgresConversationStore) UpdateOnNewMessage(ctx context.Context, id string, preview Preview, recipientID string) error {
	snapshot, err := json.Marshal(preview)
	if err != nil {
		return storeErr("conversations.update", err)
	}

	// Single statement so the unread increment is applied in place;
	// concurrent sends into the same conversation cannot lose updates.
	q := `UPDATE conversations
		SET last_message = $2,
		    unread_count = jsonb_set(unread_count, ARRAY[$3], to_jsonb(COALESCE((unread_count->>$3)::int, 0) + 1)),
		    updated_at = now()
		WHERE id = $1
		RETURNING participant_low, participant_high`
	var low, high string
	err = s.db.QueryRowContext(ctx, q, id, snapshot, recipientID).Scan(&low, &high)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConversationNotFound
		}
		return storeErr("conversations.update", err)
	}

	s.notifier.ConversationsChanged(ctx, low, high)
	return nil
}

func (s *PostgresConversationStore) ResetUnread(ctx context.Context, id, userID string) error {
	q := `UPDATE conversations
		SET unread_count = jsonb_set(unread_count, ARRAY[$2], '0'::jsonb)
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, q, id, userID); err != nil {
		return storeErr("conversations.reset_unread", err)
	}

	s.notifier.ConversationsChanged(ctx, userID)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		conv       Conversation
		low, high  string
		infoRaw    []byte
		previewRaw []byte
		unreadRaw  []byte
	)

	err := row.Scan(&conv.ID, &low, &high, &infoRaw, &previewRaw, &unreadRaw, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	conv.Participants = []string{low, high}
	if err := json.Unmarshal(infoRaw, &conv.ParticipantsInfo); err != nil {
		return nil, err
	}
	if len(previewRaw) > 0 {
		conv.LastMessage = &Preview{}
		if err := json.Unmarshal(previewRaw, conv.LastMessage); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(unreadRaw, &conv.UnreadCount); err != nil {
		return nil, err
	}
	return &conv, nil
}
