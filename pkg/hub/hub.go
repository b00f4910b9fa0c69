package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-elephant/internal/log"
)

// Hub maintains the subscribed clients per topic and fans messages out to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Subscribed clients by topic
	topics map[string]map[*Client]bool

	// Inbound messages to deliver
	deliver chan delivery

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Guards topics for read-only access from outside the run loop
	mu sync.RWMutex

	done chan struct{}
	once sync.Once
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		topics:     make(map[string]map[*Client]bool),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			subs := h.topics[client.topic]
			if subs == nil {
				subs = make(map[*Client]bool)
				h.topics[client.topic] = subs
			}
			subs[client] = true
			count := len(subs)
			h.mu.Unlock()
			h.logger.Debug("client connected", "topic", client.topic, "subscribers", count)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			count := len(h.topics[client.topic])
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "topic", client.topic, "subscribers", count)

		case d := <-h.deliver:
			h.mu.Lock()
			if d.to != nil {
				if h.topics[d.to.topic][d.to] {
					h.sendLocked(d.to, d.msg)
				}
			} else {
				for client := range h.topics[d.topic] {
					h.sendLocked(client, d.msg)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendLocked queues msg for client, dropping the client if it is too slow.
func (h *Hub) sendLocked(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		h.removeLocked(client)
		h.logger.Warn("dropped slow client", "topic", client.topic)
	}
}

func (h *Hub) removeLocked(client *Client) {
	subs, ok := h.topics[client.topic]
	if !ok || !subs[client] {
		return
	}
	delete(subs, client)
	close(client.send)
	if len(subs) == 0 {
		delete(h.topics, client.topic)
	}
}

func (h *Hub) shutdown() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		for client := range subs {
			close(client.send)
		}
		delete(h.topics, topic)
	}
}

// Publish sends a message to every subscriber of topic
func (h *Hub) Publish(topic string, msg Message) {
	h.enqueue(delivery{topic: topic, msg: msg})
}

// PublishJSON encodes and publishes a JSON message
func (h *Hub) PublishJSON(topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(topic, NewJSONMessage(data))
	return nil
}

// SendTo delivers a message to one client only, e.g. a reply to a command
func (h *Hub) SendTo(client *Client, msg Message) {
	h.enqueue(delivery{to: client, msg: msg})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case <-h.done:
	case h.deliver <- d:
	default:
		// Delivery channel full - drop message
		h.logger.Warn("delivery channel full, dropping message", "topic", d.topic)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

// Subscribers returns the number of clients watching topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
