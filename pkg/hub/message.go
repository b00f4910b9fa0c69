// Package hub provides a thread-safe websocket fan-out hub using the
// channel-based broadcast pattern. Clients subscribe to one topic; in this
// service a topic is a session id.
package hub

// Message is a pre-encoded JSON text frame delivered to clients
type Message struct {
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// delivery routes a message to a topic, or to a single client when to is set.
type delivery struct {
	topic string
	to    *Client
	msg   Message
}
