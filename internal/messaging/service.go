package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"zephia/internal/user"
)

// DefaultHistoryLimit bounds one-shot history fetches.
const DefaultHistoryLimit = 50

// UserDirectory is what the core needs from the identity collaborator.
// Profiles are read-only here except for presence.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	SearchProfiles(ctx context.Context, selfID, term string) ([]user.User, error)
	AllProfiles(ctx context.Context, selfID string) ([]user.User, error)
	SetStatus(ctx context.Context, id string, online bool) error
}

// Service is the synchronization core. It mediates between the
// conversation and message stores, keeps previews and unread counters
// consistent with message inserts, and hands out live feeds. One
// instance is constructed at startup and injected everywhere; there is
// no ambient global.
type Service struct {
	conversations ConversationStore
	messages      MessageStore
	users         UserDirectory
	notifier      Notifier
	log           *slog.Logger
}

func NewService(conversations ConversationStore, messages MessageStore, users UserDirectory, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		users:         users,
		notifier:      notifier,
		log:           log,
	}
}

// StartConversation returns the conversation id for the pair, creating
// the conversation if it does not exist yet. The id is deterministic in
// the pair, so concurrent calls from both sides converge on one document.
func (s *Service) StartConversation(ctx context.Context, self, recipient Participant) (string, error) {
	if self.ID == recipient.ID {
		return "", ErrSelfConversation
	}
	id := ConversationID(self.ID, recipient.ID)

	_, err := s.conversations.Get(ctx, id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return "", err
	}

	conv := &Conversation{
		ID:           id,
		Participants: []string{self.ID, recipient.ID},
		ParticipantsInfo: map[string]ParticipantInfo{
			self.ID:      self.Info,
			recipient.ID: recipient.Info,
		},
		UnreadCount: map[string]int{self.ID: 0, recipient.ID: 0},
	}
	if err := s.conversations.CreateIfAbsent(ctx, conv); err != nil {
		return "", err
	}
	return id, nil
}

// SendMessage appends the message and updates the conversation's preview
// and the recipient's unread counter. When the append succeeds but the
// conversation update fails, the returned error is a *PartialSendError
// carrying the persisted message id: callers must retry the conversation
// update (see RetryConversationUpdate), never resend the message.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, senderName, text, priority string, attachment *Attachment) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return "", ErrEmptyMessage
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !ValidPriority(priority) {
		return "", ErrUnknownPriority
	}

	msg := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           text,
		Priority:       priority,
		Attachment:     attachment,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return "", err
	}

	// Past this point the message exists. A failure below leaves the
	// preview/unread state stale, which is recoverable.
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return msg.ID, &PartialSendError{MessageID: msg.ID, Err: err}
	}

	preview := Preview{
		Text:          previewText(text, attachment),
		SenderID:      senderID,
		Timestamp:     msg.Timestamp,
		Priority:      priority,
		HasAttachment: attachment != nil,
	}
	if err := s.conversations.UpdateOnNewMessage(ctx, conversationID, preview, conv.Other(senderID)); err != nil {
		return msg.ID, &PartialSendError{MessageID: msg.ID, Err: err}
	}
	return msg.ID, nil
}

// previewText builds the denormalized list preview for a message.
func previewText(text string, attachment *Attachment) string {
	switch {
	case attachment != nil && text != "":
		return "📎 " + text
	case attachment != nil:
		return "📎 " + attachment.Name
	default:
		return text
	}
}

// RetryConversationUpdate re-applies the preview/unread update for the
// thread's tail message after a PartialSendError. The original update
// never ran, so applying it once repairs the conversation.
func (s *Service) RetryConversationUpdate(ctx context.Context, conversationID string) error {
	tail, err := s.messages.ListOrdered(ctx, conversationID, 1)
	if err != nil {
		return err
	}
	if len(tail) == 0 {
		return nil
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	msg := tail[0]
	// Update already applied: re-applying would double-book the
	// recipient's unread counter.
	if lm := conv.LastMessage; lm != nil && lm.SenderID == msg.SenderID && lm.Timestamp.Equal(msg.Timestamp) {
		return nil
	}
	preview := Preview{
		Text:          previewText(msg.Text, msg.Attachment),
		SenderID:      msg.SenderID,
		Timestamp:     msg.Timestamp,
		Priority:      msg.Priority,
		HasAttachment: msg.Attachment != nil,
	}
	return s.conversations.UpdateOnNewMessage(ctx, conversationID, preview, conv.Other(msg.SenderID))
}

// MarkRead resets the reader's unread counter and flips the read flag on
// the other participant's messages. The counter reset propagates errors;
// the message batch is best-effort by policy, so the read flow is never
// blocked on it.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if err := s.conversations.ResetUnread(ctx, conversationID, readerID); err != nil {
		return err
	}

	if _, err := s.messages.MarkAllReadExcludingSender(ctx, conversationID, readerID); err != nil {
		s.log.Error("marking messages read failed",
			"conversation_id", conversationID, "reader_id", readerID, "error", err)
	}
	return nil
}

// ConversationsFor lists userID's conversations, most recent first.
func (s *Service) ConversationsFor(ctx context.Context, userID string) ([]Conversation, error) {
	return s.conversations.FindContaining(ctx, userID)
}

// History returns the most recent messages of a conversation in
// ascending order.
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.messages.ListOrdered(ctx, conversationID, limit)
}
