// Package ws exposes the observable session state to WebSocket clients.
// It is a read-only observer surface: it consumes the snapshot stream and
// never feeds anything back into the session.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cuffmon/cuffmon/internal/session"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans session snapshots out to connected WebSocket clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	last    []byte
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*client]bool)}
}

// AddClient registers a connection and immediately sends it the most recent
// snapshot, so a late joiner does not wait for the next state change.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	last := b.last
	b.mu.Unlock()

	if last != nil {
		select {
		case c.send <- last:
		default:
		}
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run consumes the snapshot stream until it is closed or the session shuts
// down. Call in its own goroutine.
func (b *Broadcaster) Run(states <-chan session.Snapshot) {
	for snap := range states {
		b.Broadcast(snap)
	}
}

// Broadcast sends one snapshot to every client. Clients that cannot keep up
// are disconnected: the next joiner gets a fresh snapshot anyway.
func (b *Broadcaster) Broadcast(snap session.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("[ws] marshal snapshot", "error", err)
		return
	}

	b.mu.Lock()
	b.last = data
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("[ws] client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}
