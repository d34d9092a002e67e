package messaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"zephia/internal/user"
)

// Session is one principal's live view over the core: the active
// conversation, the two feed subscriptions and the registered callbacks.
// A session is created per connection and must be Initialized before use
// and Cleaned up when the connection goes away.
type Session struct {
	svc *Service

	mu              sync.Mutex
	self            *user.User
	ctx             context.Context
	cancel          context.CancelFunc
	active          string
	threadSnapshot  []Message
	unsubList       func()
	unsubThread     func()
	onConversations func([]Conversation)
	onMessages      func(conversationID string, messages []Message)
}

func NewSession(svc *Service) *Session {
	return &Session{svc: svc}
}

// OnConversationsChanged registers the conversation-list feed callback.
// Register before Initialize.
func (s *Session) OnConversationsChanged(fn func([]Conversation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConversations = fn
}

// OnMessagesChanged registers the thread feed callback. Register before
// SelectConversation.
func (s *Session) OnMessagesChanged(fn func(conversationID string, messages []Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessages = fn
}

// Initialize binds the session to a profile, marks it online and starts
// the conversation-list feed. The callback receives the full ordered
// snapshot immediately and again on every change.
func (s *Session) Initialize(profile *user.User) error {
	s.mu.Lock()
	if s.self != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.self = profile
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	deliver := func() {
		conversations, err := s.svc.ConversationsFor(ctx, profile.ID)
		if err != nil {
			s.svc.log.Error("conversation feed refresh failed", "user_id", profile.ID, "error", err)
			return
		}
		s.mu.Lock()
		cb := s.onConversations
		s.mu.Unlock()
		if cb != nil {
			cb(conversations)
		}
	}

	unsub, err := s.svc.notifier.SubscribeConversations(ctx, profile.ID, deliver)
	if err != nil {
		s.Cleanup()
		return err
	}
	s.mu.Lock()
	s.unsubList = unsub
	s.mu.Unlock()

	if err := s.svc.users.SetStatus(ctx, profile.ID, true); err != nil {
		s.svc.log.Error("presence update failed", "user_id", profile.ID, "error", err)
	}

	deliver()
	return nil
}

func (s *Session) current() (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return nil, ErrNotInitialized
	}
	return s.self, nil
}

// StartConversation finds or creates the conversation with recipientID.
func (s *Session) StartConversation(ctx context.Context, recipientID string, info ParticipantInfo) (string, error) {
	self, err := s.current()
	if err != nil {
		return "", err
	}
	return s.svc.StartConversation(ctx,
		Participant{ID: self.ID, Info: ParticipantInfo{Name: self.Name, Role: self.Role, Avatar: self.Avatar}},
		Participant{ID: recipientID, Info: info})
}

// StartConversationWith resolves the recipient's current profile and
// finds or creates the conversation with them.
func (s *Session) StartConversationWith(ctx context.Context, recipientID string) (string, error) {
	if _, err := s.current(); err != nil {
		return "", err
	}
	recipient, err := s.svc.users.GetByID(ctx, recipientID)
	if err != nil {
		return "", err
	}
	return s.StartConversation(ctx, recipientID,
		ParticipantInfo{Name: recipient.Name, Role: recipient.Role, Avatar: recipient.Avatar})
}

func (s *Session) SendMessage(ctx context.Context, conversationID, text, priority string, attachment *Attachment) (string, error) {
	self, err := s.current()
	if err != nil {
		return "", err
	}
	return s.svc.SendMessage(ctx, conversationID, self.ID, self.Name, text, priority, attachment)
}

// SelectConversation switches the active thread feed. The previous feed
// is cancelled before the new one is installed so two live feeds never
// overlap.
func (s *Session) SelectConversation(conversationID string) error {
	if _, err := s.current(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.unsubThread != nil {
		s.unsubThread()
		s.unsubThread = nil
	}
	s.active = conversationID
	s.threadSnapshot = nil
	ctx := s.ctx
	s.mu.Unlock()

	deliver := func() {
		messages, err := s.svc.messages.ListOrdered(ctx, conversationID, 0)
		if err != nil {
			s.svc.log.Error("thread feed refresh failed", "conversation_id", conversationID, "error", err)
			return
		}
		s.mu.Lock()
		if s.active != conversationID { // feed switched while we were fetching
			s.mu.Unlock()
			return
		}
		s.threadSnapshot = messages
		cb := s.onMessages
		s.mu.Unlock()
		if cb != nil {
			cb(conversationID, messages)
		}
	}

	unsub, err := s.svc.notifier.SubscribeThread(ctx, conversationID, deliver)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.active != conversationID {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsubThread = unsub
	s.mu.Unlock()

	deliver()
	return nil
}

func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	self, err := s.current()
	if err != nil {
		return err
	}
	return s.svc.MarkRead(ctx, conversationID, self.ID)
}

// Conversations is a one-shot fetch of the caller's conversation list.
func (s *Session) Conversations(ctx context.Context) ([]Conversation, error) {
	self, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.svc.ConversationsFor(ctx, self.ID)
}

func (s *Session) SearchUsers(ctx context.Context, term string) ([]user.User, error) {
	self, err := s.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	return s.svc.users.SearchProfiles(ctx, self.ID, strings.TrimSpace(term))
}

func (s *Session) AllUsers(ctx context.Context) ([]user.User, error) {
	self, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.svc.users.AllProfiles(ctx, self.ID)
}

// SearchInThread runs a case-insensitive search over the active thread's
// latest snapshot.
func (s *Session) SearchInThread(query string) (*ThreadSearch, error) {
	if _, err := s.current(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	snapshot := make([]Message, len(s.threadSnapshot))
	copy(snapshot, s.threadSnapshot)
	s.mu.Unlock()
	return SearchThread(snapshot, query), nil
}

// Cleanup cancels both feeds, marks the user offline and clears state.
// Safe to call more than once.
func (s *Session) Cleanup() {
	s.mu.Lock()
	self := s.self
	if s.unsubThread != nil {
		s.unsubThread()
		s.unsubThread = nil
	}
	if s.unsubList != nil {
		s.unsubList()
		s.unsubList = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.self = nil
	s.active = ""
	s.threadSnapshot = nil
	s.mu.Unlock()

	if self != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.svc.users.SetStatus(ctx, self.ID, false); err != nil {
			s.svc.log.Error("presence update failed", "user_id", self.ID, "error", err)
		}
	}
}
