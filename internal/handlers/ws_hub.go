package handlers

import (
	"sync"

	"github.com/gorilla/websocket"
)

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	closeOnce sync.Once
}

func (c *wsClient) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *wsClient) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// EventHub fans notification events out to the websocket streams of a user.
// A user may hold several streams (one per device).
type EventHub struct {
	mu    sync.Mutex
	users map[string]map[*wsClient]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		users: make(map[string]map[*wsClient]struct{}),
	}
}

func (h *EventHub) Add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.users[client.userID]
	if !ok {
		clients = make(map[*wsClient]struct{})
		h.users[client.userID] = clients
	}
	clients[client] = struct{}{}
}

func (h *EventHub) Remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.users[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; exists {
		client.closeSend()
		delete(clients, client)
	}
	if len(clients) == 0 {
		delete(h.users, client.userID)
	}
}

// SendTo queues payload on every stream of userID and returns how many
// accepted it. A stream whose buffer is full is dropped.
func (h *EventHub) SendTo(userID string, payload []byte) int {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	delivered := 0
	for _, client := range clients {
		if !client.trySend(payload) {
			_ = client.conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func (h *EventHub) Online(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID]) > 0
}

func (h *EventHub) CloseAll() {
	h.mu.Lock()
	users := h.users
	h.users = make(map[string]map[*wsClient]struct{})
	h.mu.Unlock()

	for _, clients := range users {
		for client := range clients {
			_ = client.conn.Close()
			client.closeSend()
		}
	}
}
