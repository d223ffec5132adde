package sessions

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Client is one connected websocket. Pushes are queued and written by a
// single goroutine; a client that falls behind loses pushes, not the server.
type Client struct {
	ID     string
	Writer *WebSocketWriter
	Logger *log.Logger

	send      chan Push
	done      chan struct{}
	closeOnce sync.Once
}

// Hub fans pushes out to every connected client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *log.Logger
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues p for every client.
func (h *Hub) Broadcast(p Push) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(p)
	}
}

// Serve registers conn and blocks until the connection ends. Commands read
// from the client are passed to onCommand.
func (h *Hub) Serve(conn *websocket.Conn, onCommand func(*Client, Command)) {
	c := NewClient(conn)
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Printf("Client %s connected (%d total)", c.ID, h.Count())

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.ID)
		h.mu.Unlock()
		c.Close()
		h.logger.Printf("Client %s disconnected", c.ID)
	}()

	go c.writeLoop()
	c.readLoop(onCommand)
}

// Close shuts down every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}

func (c *Client) enqueue(p Push) {
	select {
	case <-c.done:
	case c.send <- p:
	default:
		c.Logger.Printf("Dropping %s push for slow client", p.Type)
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Writer.Conn.Close()
	})
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case p := <-c.send:
			if err := c.Writer.WriteResponse(p); err != nil {
				c.Logger.Printf("Error writing push: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.Writer.WritePing(); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(onCommand func(*Client, Command)) {
	conn := c.Writer.Conn
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Logger.Printf("Read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.Writer.WriteError("invalid command")
			continue
		}
		if cmd.Type == Command_Ping {
			c.enqueue(Push{Type: Push_Pong})
			continue
		}
		if onCommand != nil {
			onCommand(c, cmd)
		}
	}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  log.New(os.Stdout, "[WS] ", log.LstdFlags),
	}
}

// NewClient wraps a websocket connection.
func NewClient(conn *websocket.Conn) *Client {
	id := uuid.NewString()
	logger := log.New(os.Stdout, fmt.Sprintf("[WS %s] ", id), log.LstdFlags)
	return &Client{
		ID:     id,
		Writer: &WebSocketWriter{Conn: conn, Logger: logger},
		Logger: logger,
		send:   make(chan Push, sendBuffer),
		done:   make(chan struct{}),
	}
}
