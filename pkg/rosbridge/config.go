// Package rosbridge provides a WebSocket client for a rosbridge v2 server.
//
// This package handles:
//   - Session management with automatic reconnection
//   - Topic subscriptions that survive reconnects
//   - Decoding sensor_msgs/LaserScan publications into scan samples
package rosbridge

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds rosbridge client configuration.
type Config struct {
	// URL is the rosbridge WebSocket endpoint.
	// Examples: "ws://localhost:9090", "ws://192.168.1.20:9090"
	URL string `yaml:"url" json:"url"`

	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// ReconnectInterval is how often to attempt reconnection on failure.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`

	// MaxReconnectAttempts is the maximum number of reconnection attempts.
	// 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`

	// ThrottleRate is the minimum time between messages the server sends
	// for a subscription, in milliseconds. 0 sends every message.
	ThrottleRate int `yaml:"throttle_rate" json:"throttle_rate"`

	// QueueLength is the server-side queue per subscription.
	// 1 drops stale scans when the node falls behind.
	QueueLength int `yaml:"queue_length" json:"queue_length"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:9090",
		HandshakeTimeout:     10 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 0, // Unlimited
		ThrottleRate:         0,
		QueueLength:          1,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be 'ws' or 'wss', got '%s'", u.Scheme)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive")
	}
	if c.ThrottleRate < 0 || c.QueueLength < 0 {
		return fmt.Errorf("throttle_rate and queue_length must not be negative")
	}
	return nil
}
