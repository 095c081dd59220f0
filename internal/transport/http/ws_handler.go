package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const disconnectTimeout = 5 * time.Second

// ConnectionConfig holds WebSocket connection settings.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		CheckOrigin:    func(r *http.Request) bool { return true },
	}
}

type WSHandler struct {
	service  *app.GameService
	hub      *Hub
	config   ConnectionConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, hub *Hub, config ConnectionConfig) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type ackFrame struct {
	Type    string     `json:"type"`
	ID      string     `json:"id,omitempty"`
	Payload ackPayload `json:"payload"`
}

type ackPayload struct {
	Pin     string `json:"pin,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type pinPayload struct {
	Pin string `json:"pin"`
}

type joinPayload struct {
	Pin      string `json:"pin"`
	Nickname string `json:"nickname"`
}

type answerPayload struct {
	Pin           string `json:"pin"`
	SelectedIndex *int   `json:"selectedIndex"`
	AnswerIndex   *int   `json:"answerIndex"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, h.config.SendBuffer),
		rooms: make(map[string]struct{}),
	}
	h.hub.register(c)
	log.Debug().Str("conn_id", c.id).Msg("connection established")

	writerDone := make(chan struct{})
	go h.writePump(c, writerDone)

	h.readLoop(r.Context(), c)

	pins := h.hub.unregister(c.id)
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	h.service.Disconnect(ctx, c.id, pins)
	cancel()
	<-writerDone
	_ = conn.Close()
	log.Debug().Str("conn_id", c.id).Int("games", len(pins)).Msg("connection closed")
}

// writePump is the only goroutine writing to the connection.
func (h *WSHandler) writePump(c *client, done chan<- struct{}) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("ws write error")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))

		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.sendError(c.id, "invalid message")
			continue
		}
		h.dispatch(ctx, c.id, inbound)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, connID string, in inboundMessage) {
	switch in.Type {
	case "create-game":
		var host domain.HostInfo
		if !h.decode(connID, in, &host) {
			return
		}
		pin, err := h.service.CreateGame(ctx, connID, host)
		if err != nil {
			h.ack(connID, in.ID, ackPayload{Error: err.Error()})
			return
		}
		h.ack(connID, in.ID, ackPayload{Pin: pin})

	case "join-game":
		var payload joinPayload
		if !h.decode(connID, in, &payload) {
			return
		}
		if err := h.service.JoinGame(ctx, connID, payload.Pin, payload.Nickname); err != nil {
			h.ack(connID, in.ID, ackPayload{Error: joinError(err)})
			return
		}
		h.ack(connID, in.ID, ackPayload{Success: true})

	case "join-room":
		pin, ok := h.decodePin(connID, in)
		if !ok {
			return
		}
		h.report(connID, in.Type, h.service.JoinRoom(ctx, connID, pin))

	case "start-game":
		pin, ok := h.decodePin(connID, in)
		if !ok {
			return
		}
		h.report(connID, in.Type, h.service.StartGame(ctx, connID, pin))

	case "submit-answer":
		var payload answerPayload
		if !h.decode(connID, in, &payload) {
			return
		}
		selected := payload.SelectedIndex
		if selected == nil {
			selected = payload.AnswerIndex
		}
		if selected == nil {
			h.sendError(connID, "invalid answer payload")
			return
		}
		h.report(connID, in.Type, h.service.SubmitAnswer(ctx, connID, payload.Pin, *selected))

	case "next-question":
		pin, ok := h.decodePin(connID, in)
		if !ok {
			return
		}
		h.report(connID, in.Type, h.service.NextQuestion(ctx, connID, pin))

	case "game-ended":
		pin, ok := h.decodePin(connID, in)
		if !ok {
			return
		}
		h.report(connID, in.Type, h.service.EndGame(ctx, connID, pin))

	default:
		h.sendError(connID, "unsupported message type")
	}
}

func (h *WSHandler) decode(connID string, in inboundMessage, v any) bool {
	if len(in.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		h.sendError(connID, "invalid "+in.Type+" payload")
		return false
	}
	return true
}

// decodePin accepts {"pin": "..."} or a bare "..." string.
func (h *WSHandler) decodePin(connID string, in inboundMessage) (string, bool) {
	var pin string
	if err := json.Unmarshal(in.Payload, &pin); err == nil {
		return pin, true
	}
	var payload pinPayload
	if err := json.Unmarshal(in.Payload, &payload); err != nil {
		h.sendError(connID, "invalid "+in.Type+" payload")
		return "", false
	}
	return payload.Pin, true
}

func (h *WSHandler) ack(connID, id string, payload ackPayload) {
	h.hub.sendJSON(connID, ackFrame{Type: "ack", ID: id, Payload: payload})
}

func (h *WSHandler) sendError(connID, message string) {
	h.hub.sendJSON(connID, domain.Event{Type: "error", Payload: errorPayload{Message: message}})
}

// report logs errors that are not surfaced to the client.
func (h *WSHandler) report(connID, op string, err error) {
	if err != nil {
		log.Debug().Err(err).Str("conn_id", connID).Str("op", op).Msg("event not applied")
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		return "Invalid or closed game PIN."
	case errors.Is(err, domain.ErrInvalidNickname):
		return "Nickname is required."
	default:
		return err.Error()
	}
}
