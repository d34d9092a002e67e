package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Attachments travel as metadata only, so frames stay small.

	intentTimeout = 10 * time.Second
)

// Inbound intent types.
const (
	intentStart    = "start"
	intentSelect   = "select"
	intentSend     = "send"
	intentMarkRead = "mark_read"
	intentSearch   = "search"
)

// Outbound event types.
const (
	eventConversations = "conversations"
	eventMessages      = "messages"
	eventSent          = "sent"
	eventStarted       = "started"
	eventSearch        = "search"
	eventPresence      = "presence"
	eventError         = "error"
)

// intent is one user action arriving over the websocket.
type intent struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	RecipientID    string      `json:"recipient_id,omitempty"`
	Text           string      `json:"text,omitempty"`
	Priority       string      `json:"priority,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Query          string      `json:"query,omitempty"`
}

// event is one frame pushed to the client.
type event struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Conversations  []Conversation `json:"conversations,omitempty"`
	TotalUnread    *int           `json:"total_unread,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Search         *ThreadSearch  `json:"search,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Online         *bool          `json:"online,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Client is a middleman between one websocket connection and the hub.
// Each client owns a Session, so feeds and the active conversation are
// per-connection state.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	session *Session
	log     *slog.Logger
}

// readPump pumps intents from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		c.session.Cleanup()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read failed", "user_id", c.userID, "error", err)
			}
			break
		}

		var in intent
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendEvent(event{Type: eventError, Error: "malformed frame"})
			continue
		}
		c.handleIntent(in)
	}
}

func (c *Client) handleIntent(in intent) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	switch in.Type {
	case intentStart:
		id, err := c.session.StartConversationWith(ctx, in.RecipientID)
		if err != nil {
			c.sendEvent(event{Type: eventError, Error: err.Error()})
			return
		}
		c.sendEvent(event{Type: eventStarted, ConversationID: id})

	case intentSelect:
		if err := c.session.SelectConversation(in.ConversationID); err != nil {
			c.sendEvent(event{Type: eventError, Error: err.Error()})
			return
		}
		// Opening a thread marks it read, like the original client.
		if err := c.session.MarkRead(ctx, in.ConversationID); err != nil {
			c.log.Error("mark read on select failed", "conversation_id", in.ConversationID, "error", err)
		}

	case intentSend:
		id, err := c.session.SendMessage(ctx, in.ConversationID, in.Text, in.Priority, in.Attachment)
		if err != nil {
			var partial *PartialSendError
			if errors.As(err, &partial) {
				// The message is stored; only the preview/unread update is
				// stale. Retry that step once, then surface what remains.
				if rerr := c.session.svc.RetryConversationUpdate(ctx, in.ConversationID); rerr != nil {
					c.sendEvent(event{Type: eventError, MessageID: partial.MessageID,
						Error: "message sent but conversation update pending"})
				} else {
					c.sendEvent(event{Type: eventSent, ConversationID: in.ConversationID, MessageID: partial.MessageID})
				}
				return
			}
			c.sendEvent(event{Type: eventError, Error: err.Error()})
			return
		}
		c.sendEvent(event{Type: eventSent, ConversationID: in.ConversationID, MessageID: id})

	case intentMarkRead:
		if err := c.session.MarkRead(ctx, in.ConversationID); err != nil {
			c.sendEvent(event{Type: eventError, Error: err.Error()})
		}

	case intentSearch:
		search, err := c.session.SearchInThread(in.Query)
		if err != nil {
			c.sendEvent(event{Type: eventError, Error: err.Error()})
			return
		}
		c.sendEvent(event{Type: eventSearch, Search: search})

	default:
		c.sendEvent(event{Type: eventError, Error: "unknown intent"})
	}
}

func (c *Client) sendEvent(ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("marshal event failed", "type", ev.Type, "error", err)
		return
	}
	c.hub.Deliver(c, payload)
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
