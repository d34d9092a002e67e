package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	myMiddleware "zephia/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// AttachmentSigner hands out presigned upload/download URLs for message
// attachments. Nil when object storage is not configured.
type AttachmentSigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type Handler struct {
	hub    *Hub
	svc    *Service
	signer AttachmentSigner
	log    *slog.Logger
}

func NewHandler(hub *Hub, svc *Service, signer AttachmentSigner, log *slog.Logger) *Handler {
	return &Handler{hub: hub, svc: svc, signer: signer, log: log}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profile, err := h.svc.users.GetByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		session: NewSession(h.svc),
		log:     h.log,
	}

	// Feed callbacks go out through the hub to this connection only.
	client.session.OnConversationsChanged(func(conversations []Conversation) {
		total := TotalUnread(conversations, userID)
		client.sendEvent(event{Type: eventConversations, Conversations: conversations, TotalUnread: &total})
	})
	client.session.OnMessagesChanged(func(conversationID string, messages []Message) {
		client.sendEvent(event{Type: eventMessages, ConversationID: conversationID, Messages: messages})
	})

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	if err := client.session.Initialize(profile); err != nil {
		h.log.Error("session initialize failed", "user_id", userID, "error", err)
		client.sendEvent(event{Type: eventError, Error: "initialization failed"})
		conn.Close()
	}
}

// StartConversation finds or creates the conversation with the requested
// recipient. POST /api/conversations {"recipient_id": "..."}
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientID == "" {
		http.Error(w, "recipient_id is required", http.StatusBadRequest)
		return
	}
	if req.RecipientID == selfID {
		http.Error(w, "cannot start a conversation with yourself", http.StatusBadRequest)
		return
	}

	self, err := h.svc.users.GetByID(r.Context(), selfID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	recipient, err := h.svc.users.GetByID(r.Context(), req.RecipientID)
	if err != nil {
		http.Error(w, "recipient not found", http.StatusNotFound)
		return
	}

	id, err := h.svc.StartConversation(r.Context(),
		Participant{ID: self.ID, Info: ParticipantInfo{Name: self.Name, Role: self.Role, Avatar: self.Avatar}},
		Participant{ID: recipient.ID, Info: ParticipantInfo{Name: recipient.Name, Role: recipient.Role, Avatar: recipient.Avatar}})
	if err != nil {
		if errors.Is(err, ErrSelfConversation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"conversation_id": id})
}

// ListConversations returns the caller's conversation list, most recent
// first. GET /api/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := h.svc.ConversationsFor(r.Context(), selfID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(conversations)
}

// GetChatHistory returns the most recent messages of a conversation in
// ascending order. GET /api/messages?conversation_id=...&limit=50
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	if !h.isParticipant(r.Context(), w, conversationID, selfID) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.svc.History(r.Context(), conversationID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(messages)
}

// SendMessage appends a message over plain HTTP. POST /api/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	name, ok2 := r.Context().Value(myMiddleware.NameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConversationID string      `json:"conversation_id"`
		Text           string      `json:"text"`
		Priority       string      `json:"priority"`
		Attachment     *Attachment `json:"attachment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.isParticipant(r.Context(), w, req.ConversationID, selfID) {
		return
	}

	id, err := h.svc.SendMessage(r.Context(), req.ConversationID, selfID, name, req.Text, req.Priority, req.Attachment)
	if err != nil {
		var partial *PartialSendError
		switch {
		case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrUnknownPriority):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &partial):
			// Message stored; only the preview/unread update is stale.
			// Retry that step once before surfacing the gap. 202 tells the
			// caller not to resend.
			if rerr := h.svc.RetryConversationUpdate(r.Context(), req.ConversationID); rerr != nil {
				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(map[string]string{
					"message_id": partial.MessageID,
					"warning":    "conversation update pending",
				})
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"message_id": partial.MessageID})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message_id": id})
}

// MarkRead resets the caller's unread counter for a conversation.
// POST /api/conversations/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "id")
	if !h.isParticipant(r.Context(), w, conversationID, selfID) {
		return
	}

	if err := h.svc.MarkRead(r.Context(), conversationID, selfID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PresignAttachment hands out upload/download URLs for an attachment.
// POST /api/attachments/presign {"conversation_id", "name", "type", "size"}
func (h *Handler) PresignAttachment(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		http.Error(w, "attachments are not configured", http.StatusServiceUnavailable)
		return
	}

	selfID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Name           string `json:"name"`
		Type           string `json:"type"`
		Size           int64  `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if !h.isParticipant(r.Context(), w, req.ConversationID, selfID) {
		return
	}

	key := fmt.Sprintf("attachments/%s/%s-%s", req.ConversationID, uuid.NewString(), req.Name)
	uploadURL, err := h.signer.PresignUpload(r.Context(), key, req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	downloadURL, err := h.signer.PresignDownload(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"upload_url": uploadURL,
		"attachment": Attachment{Name: req.Name, URL: downloadURL, Size: req.Size, Type: req.Type, Path: key},
	})
}

// isParticipant writes an error response and returns false unless userID
// belongs to the conversation.
func (h *Handler) isParticipant(ctx context.Context, w http.ResponseWriter, conversationID, userID string) bool {
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return false
	}
	conv, err := h.svc.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return false
	}
	if !slices.Contains(conv.Participants, userID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}
