package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

// DefaultQueueSize is used when NewHub is given a non-positive size.
const DefaultQueueSize = 256

// Hub maps each user to their single live connection and delivers events
// to it. Delivery is best-effort: events for offline users, or events that
// overflow the queue, are dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	queue chan delivery
}

type delivery struct {
	userID uuid.UUID
	data   []byte
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		queue:   make(chan delivery, queueSize),
	}
}

// Run delivers queued events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case d := <-h.queue:
			h.deliver(d)
		}
	}
}

// Register makes c the user's live connection. A previous connection for the
// same user is closed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	total := len(h.clients)
	h.mu.Unlock()

	if prev != nil {
		prev.close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
	log.Debug().Str("user_id", c.userID.String()).Int("connected", total).Msg("WebSocket client registered")
}

// Unregister removes c if it is still the user's live connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.close(websocket.StatusNormalClosure, "")
	log.Debug().Str("user_id", c.userID.String()).Int("connected", total).Msg("WebSocket client unregistered")
}

// Connected reports whether the user has a live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Notify queues event for userID without blocking.
func (h *Hub) Notify(userID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal notification")
		return
	}

	select {
	case h.queue <- delivery{userID: userID, data: data}:
	default:
		log.Debug().Str("user_id", userID.String()).Str("type", event.Type).Msg("Notification queue full, dropping event")
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	c, ok := h.clients[d.userID]
	h.mu.RUnlock()
	if !ok {
		log.Debug().Str("user_id", d.userID.String()).Msg("User offline, dropping event")
		return
	}

	if !c.enqueue(d.data) {
		log.Warn().Str("user_id", d.userID.String()).Msg("Client send buffer full, disconnecting")
		h.Unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
