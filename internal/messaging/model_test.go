package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDDeterministic(t *testing.T) {
	id1 := ConversationID("u1", "u2")
	id2 := ConversationID("u2", "u1")
	assert.Equal(t, id1, id2, "id must not depend on argument order")

	other := ConversationID("u1", "u3")
	assert.NotEqual(t, id1, other)

	// Stable across processes: both sides of a pair always derive the
	// same document identity.
	assert.Equal(t, id1, ConversationID("u1", "u2"))
}

func TestSortPair(t *testing.T) {
	low, high := SortPair("zeta", "alfa")
	assert.Equal(t, "alfa", low)
	assert.Equal(t, "zeta", high)

	low, high = SortPair("alfa", "zeta")
	assert.Equal(t, "alfa", low)
	assert.Equal(t, "zeta", high)
}

func TestConversationOther(t *testing.T) {
	conv := &Conversation{
		Participants: []string{"u1", "u2"},
		ParticipantsInfo: map[string]ParticipantInfo{
			"u1": {Name: "Ana", Role: "docente"},
			"u2": {Name: "Berta", Role: "secretaria"},
		},
	}

	assert.Equal(t, "u2", conv.Other("u1"))
	assert.Equal(t, "u1", conv.Other("u2"))

	info, ok := conv.OtherInfo("u1")
	require.True(t, ok)
	assert.Equal(t, "Berta", info.Name)
}

func TestTotalUnread(t *testing.T) {
	conversations := []Conversation{
		{UnreadCount: map[string]int{"u1": 2, "u2": 0}},
		{UnreadCount: map[string]int{"u1": 3, "u3": 1}},
		{UnreadCount: map[string]int{"u2": 5}},
	}

	assert.Equal(t, 5, TotalUnread(conversations, "u1"))
	assert.Equal(t, 5, TotalUnread(conversations, "u2"))
	assert.Zero(t, TotalUnread(nil, "u1"))
}

func TestValidPriority(t *testing.T) {
	for _, p := range []string{PriorityNormal, PriorityBaja, PriorityMedia, PriorityAlta} {
		assert.True(t, ValidPriority(p), p)
	}
	assert.False(t, ValidPriority("urgente"))
	assert.False(t, ValidPriority(""))
}

func TestPreviewText(t *testing.T) {
	att := &Attachment{Name: "report.pdf"}

	assert.Equal(t, "📎 hi", previewText("hi", att))
	assert.Equal(t, "📎 report.pdf", previewText("", att))
	assert.Equal(t, "hola", previewText("hola", nil))
}
