package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-elephant/pkg/session"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewEventMessage wraps a session event; the data is the session view.
func NewEventMessage(ev session.Event) (*Message, error) {
	t, err := typeOf(ev.Type)
	if err != nil {
		return nil, err
	}
	return NewMessage(t, ev.View)
}

// NewViewMessage reports the current view as a state message.
func NewViewMessage(v session.View) (*Message, error) {
	return NewMessage(TypeState, v)
}

// NewErrorMessage reports an error that is not tied to a session
// transition, such as a rejected command. id is the command id, if any.
func NewErrorMessage(id string, info session.ErrorInfo) (*Message, error) {
	return NewMessage(TypeError, ErrorData{ErrorInfo: info, ID: id})
}

// NewCommandMessage creates a command message
func NewCommandMessage(action Action, id string) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{Action: action, ID: id})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

func typeOf(t session.EventType) (MessageType, error) {
	switch t {
	case session.EventState:
		return TypeState, nil
	case session.EventResult:
		return TypeResult, nil
	case session.EventError:
		return TypeError, nil
	default:
		return "", fmt.Errorf("unknown session event %q", t)
	}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetView extracts the session view from a state, result or error message.
func (m *Message) GetView() (*session.View, error) {
	var data session.View
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCommandData extracts command data from a message
func (m *Message) GetCommandData() (*CommandData, error) {
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	switch data.Action {
	case ActionRetry, ActionLeave, ActionCameraStart, ActionCapture, ActionCameraStop:
	default:
		return nil, fmt.Errorf("unknown action %q", data.Action)
	}
	return &data, nil
}

// GetErrorData extracts a direct error reply from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
