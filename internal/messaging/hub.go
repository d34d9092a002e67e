package messaging

import (
	"encoding/json"
	"log/slog"
)

// Hub is the central router between sessions and websocket clients. It
// tracks connected clients per user, unicasts feed snapshots to the
// connection that subscribed and broadcasts presence transitions.
type Hub struct {
	// clients keyed by user id; one user may hold several connections.
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	broadcast  chan []byte

	log *slog.Logger
}

type delivery struct {
	client  *Client
	payload []byte
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery),
		broadcast:  make(chan []byte),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			conns := h.clients[client.userID]
			if conns == nil {
				conns = make(map[*Client]bool)
				h.clients[client.userID] = conns
				// First connection for this user: announce presence.
				h.broadcastPresence(client.userID, true)
			}
			conns[client] = true

		case client := <-h.unregister:
			if conns, ok := h.clients[client.userID]; ok && conns[client] {
				h.drop(client.userID, client, conns)
			}

		case d := <-h.deliver:
			if conns, ok := h.clients[d.client.userID]; ok && conns[d.client] {
				select {
				case d.client.send <- d.payload:
				default:
					// Slow consumer: drop the connection, not the hub.
					h.drop(d.client.userID, d.client, conns)
				}
			}

		case payload := <-h.broadcast:
			for userID, conns := range h.clients {
				for client := range conns {
					select {
					case client.send <- payload:
					default:
						h.drop(userID, client, conns)
					}
				}
			}
		}
	}
}

// drop removes one connection and, if it was the user's last, announces
// them offline.
func (h *Hub) drop(userID string, client *Client, conns map[*Client]bool) {
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.clients, userID)
		h.broadcastPresence(userID, false)
	}
}

// Deliver routes a payload to one specific connection.
func (h *Hub) Deliver(c *Client, payload []byte) {
	h.deliver <- delivery{client: c, payload: payload}
}

func (h *Hub) broadcastPresence(userID string, online bool) {
	payload, err := json.Marshal(event{Type: eventPresence, UserID: userID, Online: &online})
	if err != nil {
		h.log.Error("marshal presence event failed", "error", err)
		return
	}
	for _, conns := range h.clients {
		for client := range conns {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}
