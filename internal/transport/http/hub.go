package http

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// Hub tracks connected clients and the game rooms they belong to. It
// implements app.Broadcaster; frames are queued per client in call order.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

type client struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister drops the client from every room, closes its send queue and
// returns the rooms it was in.
func (h *Hub) unregister(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	delete(h.clients, id)
	pins := make([]string, 0, len(c.rooms))
	for pin := range c.rooms {
		pins = append(pins, pin)
		if members := h.rooms[pin]; members != nil {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, pin)
			}
		}
	}
	close(c.send)
	return pins
}

func (h *Hub) JoinRoom(pin, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members := h.rooms[pin]
	if members == nil {
		members = make(map[string]*client)
		h.rooms[pin] = members
	}
	members[connID] = c
	c.rooms[pin] = struct{}{}
}

// CloseRoom forgets a room once its game is over.
func (h *Hub) CloseRoom(pin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.rooms[pin] {
		delete(c.rooms, pin)
	}
	delete(h.rooms, pin)
}

func (h *Hub) ToRoom(pin string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event for broadcast")
		return
	}
	h.mu.RLock()
	var slow []*client
	for _, c := range h.rooms[pin] {
		if !enqueue(c, data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.drop(slow)
}

func (h *Hub) ToConn(connID string, event domain.Event) {
	h.sendJSON(connID, event)
}

func (h *Hub) sendJSON(connID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("failed to marshal frame")
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	delivered := !ok || enqueue(c, data)
	h.mu.RUnlock()
	if !delivered {
		h.drop([]*client{c})
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func enqueue(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// drop closes connections whose send queue is full; their read loop then
// unregisters them and reports the disconnect.
func (h *Hub) drop(clients []*client) {
	for _, c := range clients {
		log.Warn().Str("conn_id", c.id).Msg("connection send buffer full, closing connection")
		_ = c.conn.Close()
	}
}
