package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/safego"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // all origins accepted; restrict behind a proxy in production
	},
}

// Pipeline answers one query. The orchestrator satisfies this.
type Pipeline interface {
	Handle(ctx context.Context, query *entity.Query, source string) *entity.Response
}

// MessageType discriminates websocket frames.
type MessageType string

const (
	MessageTypeChat        MessageType = "chat"
	MessageTypeResponse    MessageType = "response"
	MessageTypeRateLimited MessageType = "rate_limited"
	MessageTypeError       MessageType = "error"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// Frame is one websocket message in either direction. Chat frames carry
// Content, SessionID and Voice inbound; response frames carry the full
// pipeline result back.
type Frame struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Content   string      `json:"content,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Voice     bool        `json:"voice,omitempty"`
	PrefixTag string      `json:"prefix_tag,omitempty"`
	Sources   []string    `json:"sources,omitempty"`
	Method    string      `json:"method,omitempty"`
	Error     string      `json:"error,omitempty"`
	TimedOut  bool        `json:"timed_out,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Hub tracks live websocket clients and dispatches their chat frames
// into the response pipeline.
type Hub struct {
	pipeline Pipeline
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(pipeline Pipeline, logger *zap.Logger) *Hub {
	return &Hub{
		pipeline: pipeline,
		logger:   logger.With(zap.String("component", "websocket")),
		clients:  make(map[*client]struct{}),
	}
}

// Handler returns the gin route handler that upgrades the connection.
// user_id is required; session_id is optional and defaults per user.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.serve(c.Writer, c.Request)
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every live connection. New upgrades are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = "ws-" + userID
	}

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 16),
		userID:    userID,
		sessionID: sessionID,
		logger:    h.logger.With(zap.String("user_id", userID)),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Client connected", zap.String("user_id", userID), zap.String("session_id", sessionID))

	safego.Go(c.logger, "ws-write", c.writePump)
	safego.Go(c.logger, "ws-read", c.readPump)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

const (
	readLimit    = 64 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	sessionID string
	logger    *zap.Logger
}

// readPump consumes frames until the connection dies. Chat frames spawn
// one pipeline call each, so a slow answer never blocks the next read.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
		c.logger.Info("Client disconnected")
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Read error", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.reply(Frame{Type: MessageTypeError, Error: "malformed frame"})
			continue
		}

		switch frame.Type {
		case MessageTypePing:
			c.reply(Frame{Type: MessageTypePong})
		case MessageTypeChat:
			c.dispatch(frame)
		default:
			c.reply(Frame{Type: MessageTypeError, ID: frame.ID, Error: "unsupported frame type"})
		}
	}
}

// dispatch runs one chat frame through the pipeline on its own goroutine.
func (c *client) dispatch(frame Frame) {
	sessionID := frame.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}

	query, err := entity.NewQuery(c.userID, sessionID, frame.Content, frame.Voice)
	if err != nil {
		c.reply(Frame{Type: MessageTypeError, ID: frame.ID, Error: err.Error()})
		return
	}

	safego.Go(c.logger, "ws-dispatch", func() {
		resp := c.hub.pipeline.Handle(context.Background(), query, "websocket")
		if resp == nil {
			c.reply(Frame{Type: MessageTypeRateLimited, ID: frame.ID, SessionID: sessionID})
			return
		}
		c.reply(Frame{
			Type:      MessageTypeResponse,
			ID:        query.RequestID(),
			Content:   resp.Content,
			SessionID: sessionID,
			PrefixTag: resp.PrefixTag,
			Sources:   resp.Sources,
			Method:    string(resp.Method),
			Error:     resp.Error,
			TimedOut:  resp.TimedOut,
		})
	})
}

// reply queues one frame for the write pump, dropping it if the client
// stopped draining.
func (c *client) reply(frame Frame) {
	frame.Timestamp = time.Now().Unix()
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	defer func() { recover() }() // send on closed channel loses a race with drop
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
