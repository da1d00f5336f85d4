// Package events fans queue changes out to server-sent-event subscribers.
package events

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Action 队列变更类型
const (
	ActionEnqueued     = "enqueued"
	ActionStarted      = "started"
	ActionCompleted    = "completed"
	ActionPaused       = "paused"
	ActionResumed      = "resumed"
	ActionCancelled    = "cancelled"
	ActionRepositioned = "repositioned"
)

// QueueUpdate is the payload of a queue_update event.
type QueueUpdate struct {
	MachineID string `json:"machine_id"`
	QueueID   string `json:"queue_id,omitempty"`
	Action    string `json:"action"`
}

// Event is one server-sent event.
type Event struct {
	Type string
	Data string
}

// Subscriber receives events for one machine, or all machines when
// MachineID is empty.
type Subscriber struct {
	ID        string
	MachineID string
	Events    chan Event
}

// Hub manages subscriber registration and broadcast.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]*Subscriber), logger: logger}
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.ID] = s
	h.logger.Debug("subscriber registered", zap.String("id", s.ID), zap.String("machine_id", s.MachineID), zap.Int("total", len(h.subs)))
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		close(s.Events)
		delete(h.subs, id)
		h.logger.Debug("subscriber unregistered", zap.String("id", id), zap.Int("total", len(h.subs)))
	}
}

// Publish sends a queue_update to matching subscribers. A full buffer drops
// the event for that subscriber only. Safe on a nil hub.
func (h *Hub) Publish(u QueueUpdate) {
	if h == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	ev := Event{Type: "queue_update", Data: string(data)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.MachineID != "" && s.MachineID != u.MachineID {
			continue
		}
		select {
		case s.Events <- ev:
		default:
			h.logger.Warn("subscriber buffer full, skipping event", zap.String("id", s.ID))
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
