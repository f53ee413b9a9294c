package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSubscribeMessage creates a subscribe operation.
// A throttle rate of 0 delivers every message; queue length 1 keeps only
// the newest message when the client falls behind.
func NewSubscribeMessage(id, topic, msgType string, throttleMs, queueLength int) *Message {
	return &Message{
		Op:           OpSubscribe,
		ID:           id,
		Topic:        topic,
		Type:         msgType,
		ThrottleRate: throttleMs,
		QueueLength:  queueLength,
	}
}

// NewUnsubscribeMessage creates an unsubscribe operation
func NewUnsubscribeMessage(id, topic string) *Message {
	return &Message{Op: OpUnsubscribe, ID: id, Topic: topic}
}

// NewAdvertiseMessage creates an advertise operation
func NewAdvertiseMessage(id, topic, msgType string) *Message {
	return &Message{Op: OpAdvertise, ID: id, Topic: topic, Type: msgType}
}

// NewPublishMessage creates a publish operation carrying v
func NewPublishMessage(topic string, v interface{}) (*Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message data: %w", err)
	}
	return &Message{Op: OpPublish, Topic: topic, Msg: raw}, nil
}

// NewScanMessage creates a publish operation carrying a scan sample
func NewScanMessage(topic string, s *scan.Sample) (*Message, error) {
	return NewPublishMessage(topic, s)
}

// NewStatusMessage creates a status report
func NewStatusMessage(id, level, text string) *Message {
	raw, _ := json.Marshal(text)
	return &Message{Op: OpStatus, ID: id, Level: level, Msg: raw}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetLaserScan extracts a scan sample from a publish operation
func (m *Message) GetLaserScan() (*scan.Sample, error) {
	if m.Op != OpPublish {
		return nil, fmt.Errorf("expected %s operation, got %s", OpPublish, m.Op)
	}
	var s scan.Sample
	if err := m.ParseMsg(&s); err != nil {
		return nil, fmt.Errorf("failed to decode laser scan: %w", err)
	}
	return &s, nil
}

// GetStatus extracts a status report
func (m *Message) GetStatus() (*Status, error) {
	if m.Op != OpStatus {
		return nil, fmt.Errorf("expected %s operation, got %s", OpStatus, m.Op)
	}
	st := &Status{Level: m.Level}
	if len(m.Msg) > 0 {
		if err := json.Unmarshal(m.Msg, &st.Text); err != nil {
			return nil, fmt.Errorf("failed to decode status: %w", err)
		}
	}
	return st, nil
}

// DecodeScan decodes a scan pushed by a sensor. It accepts either a
// publish envelope or a bare LaserScan object and returns the topic the
// envelope named, if any.
func DecodeScan(data []byte) (topic string, s *scan.Sample, err error) {
	if IsEnvelope(data) {
		msg, err := ParseMessage(data)
		if err != nil {
			return "", nil, err
		}
		s, err := msg.GetLaserScan()
		if err != nil {
			return msg.Topic, nil, err
		}
		return msg.Topic, s, nil
	}

	var bare scan.Sample
	if err := json.Unmarshal(data, &bare); err != nil {
		return "", nil, fmt.Errorf("failed to decode laser scan: %w", err)
	}
	return "", &bare, nil
}
