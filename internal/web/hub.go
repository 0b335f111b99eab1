package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nightloom/server/internal/engine"
)

// Client is one WebSocket subscriber. A client subscribed to a session
// only receives that session's events; an empty session id receives all.
type Client struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *EventHub
	mu        sync.Mutex
	closed    bool
}

// EventHub fans turn events out to connected clients. It implements
// engine.EventSink.
type EventHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan engine.Event
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewEventHub creates a hub; call Run on its own goroutine.
func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		events:     make(chan engine.Event, 1000),
		logger:     logger,
	}
}

// Run starts the hub's event loop.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.events:
			h.fanOut(event)
		}
	}
}

// Publish implements engine.EventSink. Events are dropped rather than
// blocking the turn pipeline when the hub is saturated.
func (h *EventHub) Publish(event engine.Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("event channel full, dropping event",
			zap.String("type", event.Type),
			zap.String("session_id", event.SessionID))
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.logger.Debug("client connected",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID),
		zap.Int("total", len(h.clients)))

	go client.writePump()
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		h.logger.Debug("client disconnected",
			zap.String("client_id", client.ID),
			zap.Int("total", len(h.clients)))
	}
}

func (h *EventHub) fanOut(event engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}

	for _, client := range h.clients {
		if client.SessionID != "" && client.SessionID != event.SessionID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full",
				zap.String("client_id", client.ID))
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.Conn.Close()
}

// readPump drains the connection until it closes. Inbound messages are
// ignored; the socket is push only.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}
