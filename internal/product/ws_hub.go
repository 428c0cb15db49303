package product

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/product-calculator/internal/metrics"
	"github.com/atmx/product-calculator/internal/model"
	"github.com/atmx/product-calculator/internal/summary"
)

// WebSocket event types.
const (
	EventProductCreated  = "product_created"
	EventProductUpdated  = "product_updated"
	EventProductDeleted  = "product_deleted"
	EventProductsCleared = "products_cleared"
	EventSummaryUpdated  = "summary_updated"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type      string          `json:"type"`
	ProductID int64           `json:"productId,omitempty"`
	Product   *model.Product  `json:"product,omitempty"`
	Count     int             `json:"count"`
	Summary   *summary.Update `json:"summary,omitempty"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 32
)

// wsClient is one connection and its outbound queue. Only the client's
// write pump writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans product changes and recomputed summaries out to every
// connected client. A client that falls a full queue behind is dropped
// instead of slowing down product writes.
type WSHub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	stopOnce   sync.Once

	mu    sync.RWMutex
	count int
}

// NewWSHub creates a hub. Run must be started before clients connect.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop. Must be called in a goroutine.
func (h *WSHub) Run() {
	defer h.closeAll()
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			slog.Info("ws client connected", "total", len(h.clients))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slog.Warn("ws client too slow, dropping")
					h.drop(c)
				}
			}

		case <-h.done:
			return
		}
	}
}

func (h *WSHub) drop(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *WSHub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}

func (h *WSHub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// Stop ends Run and disconnects every client.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast queues msg for every connected client. It never blocks: when
// the hub is backed up the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("ws message encode failed", "type", msg.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast queue full, message dropped", "type", msg.Type)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // same policy as the CORS middleware
	},
}

// HandleWS upgrades GET /api/v1/ws. Clients only listen; anything they
// send is read and discarded.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendQueue)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// writePump delivers queued messages and keeps the connection alive with
// pings. It exits when the hub closes c.send or a write fails.
func (h *WSHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump detects disconnects and unregisters the client.
func (h *WSHub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
