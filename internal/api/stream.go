package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
	streamBuffer     = 64
)

// Hub fans committed operation events out to WebSocket clients.
// It implements comptroller.Publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[xid.ID]*streamClient
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type streamClient struct {
	id   xid.ID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub creates a hub with no clients
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		clients: make(map[xid.ID]*streamClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Publish never blocks: a client whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("stream client too slow, dropping event", "client", client.id.String(), "subject", subject)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &streamClient{
		id:   xid.New(),
		conn: conn,
		send: make(chan []byte, streamBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "client", client.id.String())

	go h.readPump(client)
	h.writePump(c.Request.Context(), client)
}

// readPump discards client frames and notices disconnects
func (h *Hub) readPump(client *streamClient) {
	defer close(client.done)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, client *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		client.conn.Close()
		h.logger.Debug("stream client disconnected", "client", client.id.String())
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.conn.Close()
	}
}
