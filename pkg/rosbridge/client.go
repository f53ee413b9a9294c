package rosbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-lidarplot/pkg/protocol"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// writeWait is how long to wait for a write to complete
const writeWait = 10 * time.Second

// Client is a rosbridge v2 WebSocket client.
// Incoming publications are dispatched to handlers from a single read
// goroutine, one message at a time.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	subs   map[string]*Subscription

	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex

	// Stats
	messagesReceived atomic.Int64
	decodeErrors     atomic.Int64
	statusMessages   atomic.Int64
	reconnectCount   atomic.Int64
}

// Subscription is an active topic subscription. It stays registered across
// reconnects until closed.
type Subscription struct {
	ID    string
	Topic string
	Type  string

	client  *Client
	handler func(msg *protocol.Message)
}

// Close unsubscribes from the topic.
func (s *Subscription) Close() error {
	return s.client.unsubscribe(s)
}

// New creates a new rosbridge client.
// Call Connect() to establish the session.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		subs:   make(map[string]*Subscription),
	}, nil
}

// Connect opens the WebSocket session, re-sends every registered
// subscription and starts the read loop. The session is torn down when
// ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed, connected := c.closed, c.conn != nil
	c.mu.RUnlock()

	if closed {
		return io.ErrClosedPipe
	}
	if connected {
		return nil // Already connected
	}

	c.logger.Info("connecting to rosbridge", "url", c.cfg.URL)

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial rosbridge: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return io.ErrClosedPipe
	}
	if c.conn != nil {
		// lost a race with a concurrent Connect
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		if err := c.send(conn, c.subscribeOp(s)); err != nil {
			c.logger.Warn("failed to resubscribe", "topic", s.Topic, "error", err)
		}
	}

	go c.readLoop(ctx, conn)

	c.logger.Info("connected to rosbridge",
		"url", c.cfg.URL,
		"subscriptions", len(subs),
	)

	return nil
}

// ConnectWithRetry connects with automatic retry on failure.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil || err == io.ErrClosedPipe {
			return err
		}

		attempts++

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("max reconnect attempts (%d) reached: %w", c.cfg.MaxReconnectAttempts, err)
		}

		c.logger.Warn("rosbridge connection failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// Subscribe registers handler for every message published on topic.
// The subscription is sent immediately when connected, otherwise on the
// next Connect.
func (c *Client) Subscribe(topic, msgType string, handler func(msg *protocol.Message)) (*Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	s := &Subscription{
		ID:      fmt.Sprintf("subscribe:%s:%s", topic, uuid.NewString()),
		Topic:   topic,
		Type:    msgType,
		client:  c,
		handler: handler,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	c.subs[s.ID] = s
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.send(conn, c.subscribeOp(s)); err != nil {
			c.mu.Lock()
			delete(c.subs, s.ID)
			c.mu.Unlock()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	c.logger.Debug("subscribed to topic", "topic", topic, "id", s.ID)

	return s, nil
}

// SubscribeScan subscribes to a LaserScan topic. Publications that do not
// decode as a scan are counted and dropped.
func (c *Client) SubscribeScan(topic string, h scan.Handler) (io.Closer, error) {
	sub, err := c.Subscribe(topic, scan.MessageType, func(msg *protocol.Message) {
		s, err := msg.GetLaserScan()
		if err != nil {
			c.decodeErrors.Add(1)
			c.logger.Debug("failed to decode laser scan", "topic", topic, "error", err)
			return
		}
		h(s)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Scans returns the client as a scan.Subscriber.
func (c *Client) Scans() scan.Subscriber {
	return scan.SubscriberFunc(c.SubscribeScan)
}

func (c *Client) unsubscribe(s *Subscription) error {
	c.mu.Lock()
	if _, ok := c.subs[s.ID]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, s.ID)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := c.send(conn, protocol.NewUnsubscribeMessage(s.ID, s.Topic)); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", s.Topic, err)
	}
	return nil
}

func (c *Client) subscribeOp(s *Subscription) *protocol.Message {
	return protocol.NewSubscribeMessage(s.ID, s.Topic, s.Type, c.cfg.ThrottleRate, c.cfg.QueueLength)
}

func (c *Client) send(conn *websocket.Conn, msg *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readLoop owns reads on conn. When the connection drops it reconnects,
// unless the client was closed or ctx is done.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()
			conn.Close()

			if closed || ctx.Err() != nil {
				return
			}

			c.logger.Warn("rosbridge connection lost", "error", err)
			c.reconnectCount.Add(1)
			if err := c.ConnectWithRetry(ctx); err != nil && err != io.ErrClosedPipe && ctx.Err() == nil {
				c.logger.Error("rosbridge reconnect abandoned", "error", err)
			}
			return
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.decodeErrors.Add(1)
		c.logger.Debug("dropping malformed rosbridge message", "error", err)
		return
	}
	c.messagesReceived.Add(1)

	switch msg.Op {
	case protocol.OpPublish:
		c.mu.RLock()
		handlers := make([]func(*protocol.Message), 0, 1)
		for _, s := range c.subs {
			if s.Topic == msg.Topic {
				handlers = append(handlers, s.handler)
			}
		}
		c.mu.RUnlock()

		for _, h := range handlers {
			h(msg)
		}

	case protocol.OpStatus:
		c.statusMessages.Add(1)
		st, err := msg.GetStatus()
		if err != nil {
			c.decodeErrors.Add(1)
			return
		}
		if st.Level == "error" || st.Level == "warning" {
			c.logger.Warn("rosbridge status", "level", st.Level, "id", msg.ID, "msg", st.Text)
		} else {
			c.logger.Debug("rosbridge status", "level", st.Level, "id", msg.ID, "msg", st.Text)
		}

	default:
		c.logger.Debug("ignoring rosbridge operation", "op", msg.Op)
	}
}

// IsConnected returns true if the client has a live session.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Close unsubscribes everything and closes the session.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	if conn != nil {
		for _, s := range subs {
			if err := c.send(conn, protocol.NewUnsubscribeMessage(s.ID, s.Topic)); err != nil {
				c.logger.Debug("error unsubscribing", "topic", s.Topic, "error", err)
				break
			}
		}

		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if err := conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	c.logger.Info("rosbridge client closed")
	return nil
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	connected := c.conn != nil && !c.closed
	subs := len(c.subs)
	c.mu.RUnlock()

	return ClientStats{
		Connected:        connected,
		Subscriptions:    subs,
		MessagesReceived: c.messagesReceived.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		StatusMessages:   c.statusMessages.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected        bool  `json:"connected"`
	Subscriptions    int   `json:"subscriptions"`
	MessagesReceived int64 `json:"messages_received"`
	DecodeErrors     int64 `json:"decode_errors"`
	StatusMessages   int64 `json:"status_messages"`
	ReconnectCount   int64 `json:"reconnect_count"`
}
