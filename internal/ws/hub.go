// Package ws is the snapshot broadcast sink: a WebSocket hub that fans
// price-table and leaderboard snapshots out to connected observers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papertrade/trading-engine/internal/metrics"
)

// Message is a JSON envelope sent to observers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotFunc returns the full current state (price table + ranked
// leaderboard) pushed to every new observer before it joins the
// fan-out list.
type SnapshotFunc func(ctx context.Context) []Message

// Hub manages WebSocket connections. Publish never blocks the caller:
// observers that cannot keep up or have disconnected are dropped.
type Hub struct {
	snapshot   SnapshotFunc
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a hub. snapshot may be nil, in which case new
// observers receive no catch-up state.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot:   snapshot,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// Publish sends a snapshot of the given kind to all connected
// observers. Drops the message if the buffer is full rather than
// blocking trade execution or the pipelines.
func (h *Hub) Publish(kind string, payload any) {
	data, err := json.Marshal(Message{Type: kind, Data: payload})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// pingInterval is a variable so tests can shorten the keepalive cycle.
var pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS handles WebSocket upgrade requests. The new observer gets
// one immediate full snapshot before joining the fan-out list.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	if h.snapshot != nil {
		for _, msg := range h.snapshot(r.Context()) {
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}
		}
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies. The
	// write happens under the read lock: the broadcast loop writes under
	// the write lock, and a connection tolerates only one writer at a
	// time, so a ping must never interleave with a broadcast.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			if !ok {
				h.mu.RUnlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			h.mu.RUnlock()
			if err != nil {
				return
			}
		}
	}()
}
