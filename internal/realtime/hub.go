package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names pushed by the collector
const (
	EventCollectStarted  = "collect_started"
	EventPlantUpdated    = "plant_updated"
	EventCollectFinished = "collect_finished"
	EventInsightCreated  = "insight_created"
)

// Message frame sent to websocket clients
type Message struct {
	Type  string      `json:"type"` // event / hello
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	TS    string      `json:"ts"`
}

// Client one websocket connection; the handler drains Send
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans events out to every registered client
type Hub struct {
	mu sync.RWMutex

	clients   map[*Client]struct{}
	broadcast chan []byte
}

// NewHub starts the dispatch goroutine
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan []byte, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for msg := range h.broadcast {
		var slow []*Client
		h.mu.RLock()
		for c := range h.clients {
			select {
			case c.Send <- msg:
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()
		// slow readers are dropped
		for _, c := range slow {
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
}

// Register adds a connection; it is visible to Count and Broadcast on return
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unregister removes a connection and closes its Send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.remove(c)
}

// Count connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for all clients; dropped when the queue is full
func (h *Hub) Broadcast(event string, data interface{}) {
	b, err := json.Marshal(Message{
		Type:  "event",
		Event: event,
		Data:  data,
		TS:    time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
	}
}

// Hello sends the initial snapshot to one client
func (h *Hub) Hello(c *Client, data interface{}) {
	b, err := json.Marshal(Message{
		Type: "hello",
		Data: data,
		TS:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	select {
	case c.Send <- b:
	default:
	}
}

var (
	defaultHub *Hub
	once       sync.Once
)

// Default process-wide hub
func Default() *Hub {
	once.Do(func() {
		defaultHub = NewHub()
	})
	return defaultHub
}
