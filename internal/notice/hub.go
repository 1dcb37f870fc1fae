package notice

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

type Topic string

const (
	TopicDiner Topic = "diner"
	TopicStaff Topic = "staff"
)

// Event is one message pushed to websocket subscribers.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type topicEvent struct {
	topic Topic
	event Event
}

// Hub fans events out to the websocket clients subscribed to a topic.
type Hub struct {
	logger *zap.Logger

	rooms      map[Topic]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *topicEvent
	quit       chan struct{}

	mu sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		rooms:      make(map[Topic]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicEvent, 256),
		quit:       make(chan struct{}),
	}
}

// Run is the hub's main loop; call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for topic, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, topic)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.topic] == nil {
				h.rooms[client.topic] = make(map[*Client]bool)
			}
			h.rooms[client.topic][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()

		case te := <-h.broadcast:
			message, err := json.Marshal(te.event)
			if err != nil {
				h.logger.Error("encoding push event", zap.String("type", te.event.Type), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[te.topic] {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("push client too slow, dropping", zap.String("topic", string(te.topic)))
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops Run and closes every client.
func (h *Hub) Close() {
	close(h.quit)
}

func (h *Hub) dropLocked(client *Client) {
	clients, ok := h.rooms[client.topic]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.topic)
	}
}

// Broadcast queues an event for every client on topic. Payloads that cannot
// be encoded are logged and dropped.
func (h *Hub) Broadcast(topic Topic, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding push payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &topicEvent{topic: topic, event: Event{Type: eventType, Payload: raw}}:
	case <-h.quit:
	}
}

// ClientCount reports how many clients are subscribed to topic.
func (h *Hub) ClientCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// TopicSink publishes notices to one hub topic.
type TopicSink struct {
	hub   *Hub
	topic Topic
}

func NewTopicSink(hub *Hub, topic Topic) *TopicSink {
	return &TopicSink{hub: hub, topic: topic}
}

func (s *TopicSink) Publish(n Notice) {
	s.hub.Broadcast(s.topic, "notice", n)
}
