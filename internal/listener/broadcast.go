package listener

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout     = 10 * time.Second
	snapshotMaxScans = 50
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans recorded scans out to viewer connections.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	store   *Store
	buffer  int
}

func NewBroadcaster(store *Store, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		clients: make(map[*client]bool),
		store:   store,
		buffer:  buffer,
	}
}

// AddClient registers a viewer and queues a snapshot of recent scans.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, b.buffer),
	}

	data, _ := json.Marshal(outFrame{Type: EventSnapshot, Payload: b.store.Recent(snapshotMaxScans)})
	c.send <- data

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c
}

// RemoveClient unregisters c. It is safe to call more than once.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Publish sends sc to every viewer. Viewers that cannot keep up are
// disconnected.
func (b *Broadcaster) Publish(sc Scan) {
	data, err := json.Marshal(outFrame{Type: EventScan, Payload: sc})
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws viewer too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
