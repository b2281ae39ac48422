package sse

import (
	"sync"

	"github.com/taskboard/taskboard/internal/domain/event"
)

// Hub fans out board notifications to connected SSE clients. It implements
// event.Hub. Sends never block: a client whose channel is full simply
// misses the message and re-fetches full state on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*event.SSEClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*event.SSEClient),
	}
}

func (h *Hub) Register(client *event.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[client.ClientID]; ok {
		old.Close()
	}
	h.clients[client.ClientID] = client
}

// Unregister removes exactly the given client. A reconnect registers a
// replacement under the same id; the stale connection's teardown must not
// tear that replacement down, so removal is by identity, not by id.
func (h *Hub) Unregister(client *event.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[client.ClientID]; ok && cur == client {
		cur.Close()
		delete(h.clients, client.ClientID)
	}
}

func (h *Hub) GetClient(clientID string) *event.SSEClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) BroadcastToAll(message *event.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		trySend(c, message)
	}
}

func (h *Hub) SendToClient(clientID string, message *event.SSEMessage) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return event.ErrClientNotFound
	}
	if !trySend(c, message) {
		return event.ErrChannelFull
	}
	return nil
}

// Stop closes every client connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *event.SSEClient, msg *event.SSEMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
