package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"zephia/internal/user"
)

// In-memory store doubles used across the service and session tests.

type memConversations struct {
	mu             sync.Mutex
	convs          map[string]*Conversation
	failUpdate     error
	failUpdateOnce bool
	failReset      error
	creates        int
}

func newMemConversations() *memConversations {
	return &memConversations{convs: make(map[string]*Conversation)}
}

func (m *memConversations) FindContaining(ctx context.Context, userID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.convs {
		for _, p := range c.Participants {
			if p == userID {
				out = append(out, *cloneConversation(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memConversations) Get(ctx context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (m *memConversations) CreateIfAbsent(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[conv.ID]; ok {
		return nil
	}
	c := cloneConversation(conv)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.convs[conv.ID] = c
	m.creates++
	return nil
}

func (m *memConversations) UpdateOnNewMessage(ctx context.Context, id string, preview Preview, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		err := m.failUpdate
		if m.failUpdateOnce {
			m.failUpdate = nil
		}
		return err
	}
	c, ok := m.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	p := preview
	c.LastMessage = &p
	c.UnreadCount[recipientID]++
	c.UpdatedAt = time.Now()
	return nil
}

func (m *memConversations) ResetUnread(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReset != nil {
		return m.failReset
	}
	if c, ok := m.convs[id]; ok {
		c.UnreadCount[userID] = 0
	}
	return nil
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.ParticipantsInfo = make(map[string]ParticipantInfo, len(c.ParticipantsInfo))
	for k, v := range c.ParticipantsInfo {
		out.ParticipantsInfo[k] = v
	}
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		p := *c.LastMessage
		out.LastMessage = &p
	}
	return &out
}

type memMessages struct {
	mu       sync.Mutex
	msgs     []Message
	seq      int
	failMark error
}

func newMemMessages() *memMessages { return &memMessages{} }

func (m *memMessages) Append(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.ID = fmt.Sprintf("m%d", m.seq)
	msg.Timestamp = time.Unix(int64(m.seq), 0)
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) ListOrdered(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var thread []Message
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID {
			thread = append(thread, msg)
		}
	}
	if limit > 0 && len(thread) > limit {
		thread = thread[len(thread)-limit:]
	}
	return thread, nil
}

func (m *memMessages) MarkAllReadExcludingSender(ctx context.Context, conversationID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark != nil {
		return 0, m.failMark
	}
	var n int64
	for i := range m.msgs {
		if m.msgs[i].ConversationID == conversationID && m.msgs[i].SenderID != readerID && !m.msgs[i].Read {
			m.msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]user.User
	statuses map[string]bool
}

func newFakeDirectory(users ...user.User) *fakeDirectory {
	d := &fakeDirectory{profiles: make(map[string]user.User), statuses: make(map[string]bool)}
	for _, u := range users {
		d.profiles[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) GetByID(ctx context.Context, id string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.profiles[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (d *fakeDirectory) SearchProfiles(ctx context.Context, selfID, term string) ([]user.User, error) {
	var out []user.User
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.profiles {
		if u.ID != selfID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) AllProfiles(ctx context.Context, selfID string) ([]user.User, error) {
	return d.SearchProfiles(ctx, selfID, "")
}

func (d *fakeDirectory) SetStatus(ctx context.Context, id string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[id] = online
	return nil
}

// fakeNotifier records subscriptions and lets tests fire notifications
// synchronously.
type fakeNotifier struct {
	mu            sync.Mutex
	nextID        int
	listSubs      map[int]func()
	threadSubs    map[int]func()
	threadKeys    map[int]string
	unsubscribed  int
	subscriptions int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		listSubs:   make(map[int]func()),
		threadSubs: make(map[int]func()),
		threadKeys: make(map[int]string),
	}
}

func (n *fakeNotifier) ConversationsChanged(ctx context.Context, userIDs ...string) {}
func (n *fakeNotifier) ThreadChanged(ctx context.Context, conversationID string)    {}

func (n *fakeNotifier) SubscribeConversations(ctx context.Context, userID string, fn func()) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.subscriptions++
	id := n.nextID
	n.listSubs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listSubs, id)
		n.unsubscribed++
	}, nil
}

func (n *fakeNotifier) SubscribeThread(ctx context.Context, conversationID string, fn func()) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.subscriptions++
	id := n.nextID
	n.threadSubs[id] = fn
	n.threadKeys[id] = conversationID
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.threadSubs, id)
		delete(n.threadKeys, id)
		n.unsubscribed++
	}, nil
}

func (n *fakeNotifier) fireConversations() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listSubs))
	for _, fn := range n.listSubs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (n *fakeNotifier) fireThread(conversationID string) {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.threadSubs))
	for id, fn := range n.threadSubs {
		if n.threadKeys[id] == conversationID {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (n *fakeNotifier) activeThreadSubs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.threadSubs)
}

func (n *fakeNotifier) activeListSubs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listSubs)
}
