// Package protocol defines the rosbridge v2 JSON operations used to
// subscribe to ROS topics over a WebSocket and to publish scans into the node.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Op identifies a rosbridge operation
type Op string

const (
	// Client → Server operations
	OpSubscribe   Op = "subscribe"   // Start receiving a topic
	OpUnsubscribe Op = "unsubscribe" // Stop receiving a topic
	OpAdvertise   Op = "advertise"   // Announce a topic we publish
	OpUnadvertise Op = "unadvertise" // Withdraw an advertisement
	OpSetLevel    Op = "set_level"   // Set status message verbosity

	// Bidirectional
	OpPublish Op = "publish" // Message on a topic

	// Server → Client
	OpStatus Op = "status" // Status or error report
)

// Message is the envelope of every rosbridge operation.
// Msg holds the ROS message for publish and a plain string for status.
type Message struct {
	Op           Op              `json:"op"`
	ID           string          `json:"id,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Type         string          `json:"type,omitempty"`
	ThrottleRate int             `json:"throttle_rate,omitempty"` // milliseconds
	QueueLength  int             `json:"queue_length,omitempty"`
	Level        string          `json:"level,omitempty"`
	Msg          json.RawMessage `json:"msg,omitempty"`
}

// ParseMsg unmarshals the message payload into the provided value
func (m *Message) ParseMsg(v interface{}) error {
	if len(m.Msg) == 0 {
		return fmt.Errorf("%s message has no payload", m.Op)
	}
	return json.Unmarshal(m.Msg, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a rosbridge operation from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Op == "" {
		return nil, fmt.Errorf("failed to parse message: missing op")
	}
	return &msg, nil
}

// IsEnvelope reports whether data looks like a rosbridge operation rather
// than a bare ROS message.
func IsEnvelope(data []byte) bool {
	var probe struct {
		Op *string `json:"op"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &probe); err != nil {
		return false
	}
	return probe.Op != nil
}

// Status is the payload of a status operation
type Status struct {
	Level string `json:"level"` // "error", "warning", "info", "none"
	Text  string `json:"msg"`
}
