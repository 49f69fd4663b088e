package binding

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pixelpath/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// ClientMessage is what browser widgets send over the socket.
type ClientMessage struct {
	Type  string  `json:"type"`
	Lat   float64 `json:"lat,omitempty"`
	Lng   float64 `json:"lng,omitempty"`
	Index int     `json:"index,omitempty"`
}

// Hub is a Widget that fans frames out to WebSocket clients and feeds their
// clicks back into the binding.
type Hub struct {
	binding  *Binding
	logger   *slog.Logger
	upgrader websocket.Upgrader
	detach   func()

	mu      sync.Mutex
	closed  bool
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub attaches a hub to b. checkOrigin may be nil to accept any origin.
func NewHub(b *Binding, logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		binding: b,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*wsClient]struct{}),
	}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	h.detach = b.Attach(h)
	return h
}

// Render queues f for every client. A client whose queue is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) Render(_ context.Context, f Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow websocket client", slog.String("session", f.Session))
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// Clients is the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// The first message a client receives is a full frame with the route.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogError(h.logger, "websocket upgrade failed", err, slog.String("component", "hub"))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	// The full frame is taken and queued under h.mu so a Render racing with the
	// connect is either already reflected in it or queued right after it.
	if err := h.register(c); err != nil {
		logging.LogError(h.logger, "initial frame failed", err, slog.String("component", "hub"))
		conn.Close()
		return
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

var errHubClosed = errors.New("hub closed")

func (h *Hub) register(c *wsClient) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	full, err := h.binding.FullFrame()
	if err != nil {
		return err
	}
	msg, err := json.Marshal(full)
	if err != nil {
		return err
	}
	c.send <- msg
	h.clients[c] = struct{}{}
	return nil
}

// Close detaches the hub and disconnects every client.
func (h *Hub) Close() {
	h.detach()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var m ClientMessage
		if err := c.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LogError(h.logger, "websocket read failed", err, slog.String("component", "hub"))
			}
			return
		}
		if err := h.dispatch(m); err != nil {
			logging.LogError(h.logger, "websocket message rejected", err,
				slog.String("component", "hub"),
				slog.String("type", m.Type))
		}
	}
}

var errUnknownMessage = errors.New("unknown message type")

func (h *Hub) dispatch(m ClientMessage) error {
	switch m.Type {
	case "map_click":
		return h.binding.HandleEvent(MapClick{Lat: m.Lat, Lng: m.Lng})
	case "timeline_click", "seek":
		return h.binding.HandleEvent(TimelineClick{Index: m.Index})
	case "play":
		return h.binding.Play()
	case "pause":
		return h.binding.Pause()
	default:
		return errUnknownMessage
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
