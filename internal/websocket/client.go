// One Client per observer connection, with the usual gorilla read/write
// pump pair. The read pump answers liveness pings and accepts stop
// instructions; the write pump drains the send channel and keeps the
// transport alive with pings.

package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaehyun-ko/newsight/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to localhost or behind a reverse proxy; origin
	// checks are left to the deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a single observer subscription to one session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string

	// The mutex guards send against the read pump queueing a pong while
	// the hub goroutine closes the subscription.
	mu     sync.Mutex
	closed bool
	send   chan []byte

	greeting []byte
	// terminal re-reads the session's state on the hub goroutine at
	// registration time, so a session that finished between the HTTP
	// handler's snapshot and the register cannot slip past unnoticed.
	terminal func() *models.ProgressEvent
}

// controlMessage is what observers may send over the socket.
type controlMessage struct {
	Type string `json:"type"`
}

// ServeWs upgrades the connection and attaches it to the session's room.
// The greeting event is delivered first. The terminal callback is invoked
// once, on the hub goroutine, right after registration; a non-nil result
// (the session already finished) is delivered after the greeting and the
// connection is then closed.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, sessionID string, greeting models.ProgressEvent, terminal func() *models.ProgressEvent) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for session %s: %v", sessionID, err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
		terminal:  terminal,
	}
	client.greeting, _ = json.Marshal(greeting)

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// queue attempts a non-blocking delivery into the client's send buffer and
// reports whether it fit. Queueing to a closed subscription is a no-op.
func (c *Client) queue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the subscription down. Safe to call at most once per
// client from the hub goroutine; queue callers observe the closed flag
// instead of a closed channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error for session %s: %v", c.sessionID, err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			pong, _ := json.Marshal(models.ProgressEvent{
				Type:      models.EventPong,
				SessionID: c.sessionID,
			})
			c.queue(pong)
		case "stop":
			if c.hub.OnStop != nil {
				c.hub.OnStop(c.sessionID)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the subscription.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
