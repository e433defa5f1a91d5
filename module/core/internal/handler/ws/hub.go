package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher"
)

var (
	_ publisher.EventPublisher    = (*Hub)(nil)
	_ publisher.ViewportPublisher = (*Hub)(nil)
)

const (
	sendBufferSize = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type message struct {
	Type     string           `json:"type"`
	Viewport *domain.Viewport `json:"viewport,omitempty"`
	Event    *domain.Event    `json:"event,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes viewport updates and session events to every connected viewer.
// A viewer that cannot keep up is disconnected rather than slowing the session.
type Hub struct {
	log *slog.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	viewport []byte
	closed   bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger.With("component", "viewport_hub"),
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) Register(r *gin.RouterGroup) {
	r.GET("/session/ws", h.Serve)
}

func (h *Hub) PublishViewport(vp domain.Viewport) {
	b, err := json.Marshal(message{Type: "viewport", Viewport: &vp})
	if err != nil {
		h.log.Error("marshal viewport", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewport = b
	h.broadcastLocked(b)
}

func (h *Hub) Publish(_ context.Context, event *domain.Event) error {
	b, err := json.Marshal(message{Type: "event", Event: event})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(b)
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer and turns away new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) Serve(ctx *gin.Context) {
	if h.isClosed() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.viewport != nil {
		c.send <- h.viewport
	}
	h.mu.Unlock()
	h.log.Info("viewer connected", "remote", ctx.Request.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) broadcastLocked(b []byte) {
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping slow viewer")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// readPump only watches for the viewer going away; inbound messages are ignored.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.log.Info("viewer disconnected", "error", err)
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
