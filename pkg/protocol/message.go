// Package protocol defines the WebSocket messages exchanged between the
// classification service and a presenter watching a session.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-elephant/pkg/session"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Service → presenter
	TypeState  MessageType = "state"  // Session state changed
	TypeResult MessageType = "result" // Prediction finished
	TypeError  MessageType = "error"  // Acquisition or prediction failed

	// Presenter → service
	TypeCommand MessageType = "command" // Drive the session

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Presenter → Service Message Types
// =============================================================================

// Action names a session operation a presenter may trigger.
type Action string

const (
	ActionRetry       Action = "retry"
	ActionLeave       Action = "leave"
	ActionCameraStart Action = "camera_start"
	ActionCapture     Action = "capture"
	ActionCameraStop  Action = "camera_stop"
)

// CommandData asks the service to run an action on the watched session
type CommandData struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"` // echoed in an error reply
}

// ErrorData is the direct reply to a rejected message.
type ErrorData struct {
	session.ErrorInfo
	ID string `json:"id,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
