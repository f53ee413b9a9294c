package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what a viewer may send us
	maxMessageSize = 4 * 1024

	// sendBuffer is how many messages a client may fall behind
	sendBuffer = 64
)

// Client represents a single websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient creates a new client and registers it with the hub.
// initial messages are queued ahead of any broadcast.
// It returns nil if the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn, initial ...Message) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer+len(initial)),
	}
	for _, m := range initial {
		client.send <- m
	}

	select {
	case hub.register <- client:
		return client
	case <-hub.done:
		return nil
	}
}

// Serve registers conn with hub and blocks until the connection closes.
// It is meant to be used as a websocket handler body.
func Serve(hub *Hub, conn *websocket.Conn, initial ...Message) {
	client := NewClient(hub, conn, initial...)
	if client == nil {
		conn.Close()
		return
	}
	client.Run()
}

// Run pumps messages until the viewer disconnects.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump discards viewer input. It returns, and unregisters the client,
// once the connection fails or the pong deadline passes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case message, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(message.Type.wsType(), message.Data)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
