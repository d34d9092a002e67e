package messaging

import "strings"

// ThreadMatch points at one matching message inside a thread snapshot.
type ThreadMatch struct {
	MessageID string `json:"message_id"`
	Index     int    `json:"index"` // position in the thread, ascending order
}

// ThreadSearch holds the ordered matches for a query plus a navigation
// cursor. Next and Prev wrap around at both ends, mirroring the chat
// search widget.
type ThreadSearch struct {
	Query   string        `json:"query"`
	Matches []ThreadMatch `json:"matches"`
	pos     int
}

// SearchThread finds the messages whose body contains query,
// case-insensitive, in thread order. An empty or whitespace query yields
// no matches.
func SearchThread(messages []Message, query string) *ThreadSearch {
	q := strings.ToLower(strings.TrimSpace(query))
	search := &ThreadSearch{Query: q}
	if q == "" {
		return search
	}

	for i, msg := range messages {
		if strings.Contains(strings.ToLower(msg.Text), q) {
			search.Matches = append(search.Matches, ThreadMatch{MessageID: msg.ID, Index: i})
		}
	}
	return search
}

func (s *ThreadSearch) Len() int { return len(s.Matches) }

// Current returns the match under the cursor.
func (s *ThreadSearch) Current() (ThreadMatch, bool) {
	if len(s.Matches) == 0 {
		return ThreadMatch{}, false
	}
	return s.Matches[s.pos], true
}

// Next advances the cursor, wrapping from the last match to the first.
func (s *ThreadSearch) Next() (ThreadMatch, bool) {
	if len(s.Matches) == 0 {
		return ThreadMatch{}, false
	}
	if s.pos < len(s.Matches)-1 {
		s.pos++
	} else {
		s.pos = 0
	}
	return s.Matches[s.pos], true
}

// Prev moves the cursor back, wrapping from the first match to the last.
func (s *ThreadSearch) Prev() (ThreadMatch, bool) {
	if len(s.Matches) == 0 {
		return ThreadMatch{}, false
	}
	if s.pos > 0 {
		s.pos--
	} else {
		s.pos = len(s.Matches) - 1
	}
	return s.Matches[s.pos], true
}
