package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write before the subscriber is
	// considered dead.
	writeWait = 5 * time.Second

	// sendBuffer is the per-subscriber event queue. A subscriber that lets
	// it fill is dropped rather than allowed to stall the feed.
	sendBuffer = 16
)

// client owns one subscriber connection. All writes go through the send
// queue and a single writer goroutine, since a websocket connection does
// not support concurrent writers.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed exactly once, on unsubscribe
}

// Broadcaster pushes events to WebSocket subscribers, keyed by tenant so one
// vessel's feed never leaks into another's. Delivery is best-effort: a
// failed or slow subscriber is dropped, never waited on.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]*client // tenant id -> subscribers
	logger  *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[string]map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Subscribe registers a connection for a tenant's feed and starts its
// writer goroutine.
func (b *Broadcaster) Subscribe(tenantID string, conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[tenantID] == nil {
		b.clients[tenantID] = make(map[*websocket.Conn]*client)
	}
	b.clients[tenantID][conn] = c
	b.mu.Unlock()

	go b.writePump(tenantID, c)
}

// Unsubscribe removes a connection from every feed and stops its writer.
// Safe to call more than once; only the call that finds the connection
// closes its done channel.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tenantID, clients := range b.clients {
		if c, ok := clients[conn]; ok {
			delete(clients, conn)
			close(c.done)
			if len(clients) == 0 {
				delete(b.clients, tenantID)
			}
		}
	}
}

// writePump is the sole writer for one connection. It drains the send queue
// until the client is unsubscribed or a write fails.
func (b *Broadcaster) writePump(tenantID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.logger.Warn("dropping feed subscriber after failed write",
					"error", err,
					"tenant_id", tenantID,
				)
				b.drop(c)
				return
			}
		}
	}
}

// drop unsubscribes and closes a dead connection, which also unblocks the
// handler's read loop.
func (b *Broadcaster) drop(c *client) {
	b.Unsubscribe(c.conn)
	_ = c.conn.Close()
}

// Notify queues the event for all subscribers of its tenant. A subscriber
// whose queue is full has stopped draining and is dropped; Notify itself
// never blocks on a connection.
func (b *Broadcaster) Notify(ctx context.Context, ev Event) {
	b.mu.RLock()
	conns := b.clients[ev.TenantID]
	targets := make([]*client, 0, len(conns))
	for _, c := range conns {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal event", "error", err)
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
			// Already unsubscribed.
		default:
			b.logger.Warn("dropping slow feed subscriber",
				"tenant_id", ev.TenantID,
			)
			b.drop(c)
		}
	}
}

// ConnectionCount returns the number of subscribers for a tenant.
func (b *Broadcaster) ConnectionCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[tenantID])
}
