package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "zephia/internal/middleware"
)

func authedRequest(method, target string, body []byte, userID, name string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), myMiddleware.UserKey, userID)
	ctx = context.WithValue(ctx, myMiddleware.NameKey, name)
	return req.WithContext(ctx)
}

func TestSendMessageHTTPRepairsPartialFailure(t *testing.T) {
	svc, conversations, _, _, _ := newTestService()
	h := NewHandler(NewHub(testLogger()), svc, nil, testLogger())
	ctx := context.Background()

	convID, err := svc.StartConversation(ctx, ana, berta)
	require.NoError(t, err)

	// The first conversation update fails; the handler's retry succeeds.
	conversations.failUpdate = errors.New("write timeout")
	conversations.failUpdateOnce = true

	body, err := json.Marshal(map[string]string{
		"conversation_id": convID, "text": "Hola", "priority": PriorityNormal,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/messages", body, "u1", "Ana García"))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["message_id"])

	conv, err := conversations.Get(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "Hola", conv.LastMessage.Text)
	assert.Equal(t, 1, conv.UnreadCount["u2"])
}

func TestSendMessageHTTPSurfacesPendingUpdate(t *testing.T) {
	svc, conversations, messages, _, _ := newTestService()
	h := NewHandler(NewHub(testLogger()), svc, nil, testLogger())
	ctx := context.Background()

	convID, err := svc.StartConversation(ctx, ana, berta)
	require.NoError(t, err)

	// A persistent failure: the retry fails too and the pending state is
	// surfaced so the caller does not resend.
	conversations.failUpdate = errors.New("write timeout")

	body, err := json.Marshal(map[string]string{
		"conversation_id": convID, "text": "Hola", "priority": PriorityNormal,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/messages", body, "u1", "Ana García"))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["message_id"])
	assert.Equal(t, "conversation update pending", resp["warning"])

	// The message itself was stored exactly once.
	thread, err := messages.ListOrdered(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, resp["message_id"], thread[0].ID)
}
