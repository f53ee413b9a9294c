// Package ingest provides a WebSocket endpoint that sensors push scans to.
//
// A sensor connects to /ws/scan/:sensor and sends either rosbridge publish
// envelopes or bare LaserScan JSON objects. Bare scans are attributed to
// the topic given in the "topic" query parameter, or /scan.
package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-lidarplot/pkg/protocol"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// AllTopics subscribes to scans from every topic.
const AllTopics = "*"

// SensorConnection represents a connected sensor
type SensorConnection struct {
	ID        string
	Topic     string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Scans     uint64

	mu sync.Mutex
}

// Send sends a rosbridge operation to the sensor
func (s *SensorConnection) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

type subscription struct {
	id      uint64
	topic   string
	handler scan.Handler
}

// Hub manages WebSocket connections from sensors and hands decoded scans
// to subscribers. Handlers run on the connection's read goroutine, so
// scans from different sensors may arrive concurrently.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sensors map[string]*SensorConnection
	subs    map[uint64]*subscription
	nextSub uint64

	// Stats
	messagesReceived atomic.Uint64
	scansReceived    atomic.Uint64
	decodeErrors     atomic.Uint64
}

// NewHub creates a new sensor hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		sensors: make(map[string]*SensorConnection),
		subs:    make(map[uint64]*subscription),
	}
}

// Subscribe registers h for scans on topic. AllTopics matches every scan.
func (h *Hub) Subscribe(topic string, handler scan.Handler) (io.Closer, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	h.mu.Lock()
	h.nextSub++
	sub := &subscription{id: h.nextSub, topic: topic, handler: handler}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug("subscribed to sensor scans", "topic", topic)

	return scan.CloserFunc(func() error {
		h.mu.Lock()
		delete(h.subs, sub.id)
		h.mu.Unlock()
		return nil
	}), nil
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws/scan", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Sensor connection endpoint
	app.Get("/ws/scan", websocket.New(h.handleSensor))
	app.Get("/ws/scan/:sensor", websocket.New(h.handleSensor))
}

// handleSensor handles a sensor WebSocket connection
func (h *Hub) handleSensor(c *websocket.Conn) {
	// Get sensor ID from path or generate one
	sensorID := c.Params("sensor")
	if sensorID == "" {
		sensorID = generateSensorID()
	}

	sensor := &SensorConnection{
		ID:        sensorID,
		Topic:     c.Query("topic", scan.DefaultTopic),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	// Register sensor
	h.mu.Lock()
	h.sensors[sensorID] = sensor
	sensorCount := len(h.sensors)
	h.mu.Unlock()

	h.logger.Info("sensor connected", "sensor", sensorID, "topic", sensor.Topic, "total", sensorCount)

	defer func() {
		h.mu.Lock()
		if h.sensors[sensorID] == sensor {
			delete(h.sensors, sensorID)
		}
		sensorCount := len(h.sensors)
		h.mu.Unlock()

		h.logger.Info("sensor disconnected", "sensor", sensorID, "total", sensorCount)
	}()

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("sensor read error", "sensor", sensorID, "error", err)
			return
		}

		sensor.mu.Lock()
		sensor.LastSeen = time.Now()
		sensor.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(sensor, data)
	}
}

// handleMessage decodes a scan pushed by a sensor and dispatches it
func (h *Hub) handleMessage(sensor *SensorConnection, data []byte) {
	topic, s, err := protocol.DecodeScan(data)
	if err != nil {
		h.decodeErrors.Add(1)
		h.logger.Debug("dropping undecodable scan", "sensor", sensor.ID, "error", err)
		if err := sensor.Send(protocol.NewStatusMessage("", "error", err.Error())); err != nil {
			h.logger.Debug("failed to report status", "sensor", sensor.ID, "error", err)
		}
		return
	}
	if topic == "" {
		topic = sensor.Topic
	}
	if s.Header.FrameID == "" {
		s.Header.FrameID = sensor.ID
	}

	h.scansReceived.Add(1)
	sensor.mu.Lock()
	sensor.Scans++
	sensor.mu.Unlock()

	h.mu.RLock()
	handlers := make([]scan.Handler, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.topic == AllTopics || sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(s)
	}
}

// GetSensor returns a sensor connection by ID
func (h *Hub) GetSensor(sensorID string) *SensorConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sensors[sensorID]
}

// SensorCount returns the number of connected sensors
func (h *Hub) SensorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sensors)
}

// Stats contains hub statistics
type Stats struct {
	SensorCount      int    `json:"sensor_count"`
	Subscriptions    int    `json:"subscriptions"`
	MessagesReceived uint64 `json:"messages_received"`
	ScansReceived    uint64 `json:"scans_received"`
	DecodeErrors     uint64 `json:"decode_errors"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	sensors, subs := len(h.sensors), len(h.subs)
	h.mu.RUnlock()

	return Stats{
		SensorCount:      sensors,
		Subscriptions:    subs,
		MessagesReceived: h.messagesReceived.Load(),
		ScansReceived:    h.scansReceived.Load(),
		DecodeErrors:     h.decodeErrors.Load(),
	}
}

// SensorInfo contains info about a connected sensor
type SensorInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Scans     uint64    `json:"scans"`
}

// GetSensorInfos returns info about all connected sensors
func (h *Hub) GetSensorInfos() []SensorInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SensorInfo, 0, len(h.sensors))
	for _, s := range h.sensors {
		s.mu.Lock()
		infos = append(infos, SensorInfo{
			ID:        s.ID,
			Topic:     s.Topic,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
			Scans:     s.Scans,
		})
		s.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for sensor management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sensors := api.Group("/sensors")

	// List connected sensors
	sensors.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sensors": h.GetSensorInfos(),
			"count":   h.SensorCount(),
		})
	})

	// Get hub stats
	sensors.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

// generateSensorID creates a unique sensor ID
func generateSensorID() string {
	return "sensor-" + uuid.NewString()
}
