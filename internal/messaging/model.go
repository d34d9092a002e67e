package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Message priorities. The Spanish labels come from the school UI.
const (
	PriorityNormal = "normal"
	PriorityBaja   = "baja"
	PriorityMedia  = "media"
	PriorityAlta   = "alta"
)

func ValidPriority(p string) bool {
	switch p {
	case PriorityNormal, PriorityBaja, PriorityMedia, PriorityAlta:
		return true
	}
	return false
}

// ParticipantInfo is the profile snapshot cached on a conversation at
// creation time. It is deliberately NOT kept in sync with later profile
// edits.
type ParticipantInfo struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Participant pairs a user id with its cached info for conversation creation.
type Participant struct {
	ID   string
	Info ParticipantInfo
}

// Preview is the denormalized last-message snapshot stored on the
// conversation for list rendering.
type Preview struct {
	Text          string    `json:"text"`
	SenderID      string    `json:"sender_id"`
	Timestamp     time.Time `json:"timestamp"`
	Priority      string    `json:"priority"`
	HasAttachment bool      `json:"has_attachment"`
}

type Conversation struct {
	ID               string                     `json:"id"`
	Participants     []string                   `json:"participants"`
	ParticipantsInfo map[string]ParticipantInfo `json:"participants_info"`
	LastMessage      *Preview                   `json:"last_message,omitempty"`
	UnreadCount      map[string]int             `json:"unread_count"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// Other returns the id of the participant that is not selfID.
func (c *Conversation) Other(selfID string) string {
	for _, p := range c.Participants {
		if p != selfID {
			return p
		}
	}
	return ""
}

// OtherInfo returns the cached profile of the participant that is not selfID.
func (c *Conversation) OtherInfo(selfID string) (ParticipantInfo, bool) {
	info, ok := c.ParticipantsInfo[c.Other(selfID)]
	return info, ok
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type,omitempty"`
	Path string `json:"path,omitempty"`
}

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	Text           string      `json:"text"`
	Priority       string      `json:"priority"`
	Read           bool        `json:"read"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Namespace for deterministic conversation ids (uuid v5 over the sorted
// participant pair). Two users can never end up with two conversations:
// both sides compute the same id and creation is insert-if-absent.
var conversationNamespace = uuid.MustParse("9f2c1a34-56de-4b7a-8a01-3c5d9e7f1b42")

// SortPair returns the participant pair in canonical (low, high) order.
func SortPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// ConversationID derives the deterministic id for a participant pair.
// Argument order does not matter.
func ConversationID(a, b string) string {
	low, high := SortPair(a, b)
	return uuid.NewSHA1(conversationNamespace, []byte(low+":"+high)).String()
}

// TotalUnread sums the unread counters for userID across conversations.
func TotalUnread(conversations []Conversation, userID string) int {
	total := 0
	for _, c := range conversations {
		total += c.UnreadCount[userID]
	}
	return total
}
