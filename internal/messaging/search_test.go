package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thread(texts ...string) []Message {
	msgs := make([]Message, len(texts))
	for i, txt := range texts {
		msgs[i] = Message{ID: string(rune('a' + i)), Text: txt}
	}
	return msgs
}

func TestSearchThreadMatches(t *testing.T) {
	msgs := thread(
		"recordá el pago de la cuota",
		"gracias, lo veo mañana",
		"el pago ya está registrado",
	)

	search := SearchThread(msgs, "pago")
	require.Equal(t, 2, search.Len())
	assert.Equal(t, 0, search.Matches[0].Index)
	assert.Equal(t, 2, search.Matches[1].Index)
}

func TestSearchThreadCaseInsensitive(t *testing.T) {
	msgs := thread("Reunión el LUNES", "nada más")

	search := SearchThread(msgs, "lunes")
	require.Equal(t, 1, search.Len())
	assert.Equal(t, 0, search.Matches[0].Index)

	search = SearchThread(msgs, "  NADA ")
	require.Equal(t, 1, search.Len())
	assert.Equal(t, 1, search.Matches[0].Index)
}

func TestSearchThreadEmptyQuery(t *testing.T) {
	msgs := thread("hola", "chau")

	assert.Zero(t, SearchThread(msgs, "").Len())
	assert.Zero(t, SearchThread(msgs, "   ").Len())

	_, ok := SearchThread(msgs, "").Current()
	assert.False(t, ok)
}

func TestSearchNavigationWrapsForward(t *testing.T) {
	msgs := thread(
		"el pago está pendiente",
		"ok",
		"confirmo el pago",
	)

	search := SearchThread(msgs, "pago")
	require.Equal(t, 2, search.Len())

	current, ok := search.Current()
	require.True(t, ok)
	assert.Equal(t, 0, current.Index)

	next, ok := search.Next()
	require.True(t, ok)
	assert.Equal(t, 2, next.Index, "next from match 0 lands on the thread's index 2")

	wrapped, ok := search.Next()
	require.True(t, ok)
	assert.Equal(t, 0, wrapped.Index, "next from the last match wraps to the first")
}

func TestSearchNavigationWrapsBackward(t *testing.T) {
	msgs := thread("nota uno", "sin relación", "nota dos", "nota tres")

	search := SearchThread(msgs, "nota")
	require.Equal(t, 3, search.Len())

	prev, ok := search.Prev()
	require.True(t, ok)
	assert.Equal(t, 3, prev.Index, "prev from the first match wraps to the last")

	prev, ok = search.Prev()
	require.True(t, ok)
	assert.Equal(t, 2, prev.Index)
}

func TestSearchNavigationNoMatches(t *testing.T) {
	search := SearchThread(thread("hola"), "inexistente")

	_, ok := search.Next()
	assert.False(t, ok)
	_, ok = search.Prev()
	assert.False(t, ok)
}
