// Package hub fans message-bus events out to live observers. It is the one
// piece of state in the process mutated by multiple goroutines at once, so
// every touch of the subscriber set goes through the mutex.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how far a slow consumer may fall behind before it
// is treated as gone.
const subscriberBuffer = 16

type Subscriber struct {
	id     string
	events chan []byte
}

// Events yields broadcast payloads. The channel closes when the subscriber
// is removed, either by Unsubscribe or by a failed delivery.
func (s *Subscriber) Events() <-chan []byte {
	return s.events
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
}

func New() *Hub {
	return &Hub{
		subscribers: map[string]*Subscriber{},
	}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		events: make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	total := len(h.subscribers)
	h.mu.Unlock()

	slog.Info("observer connected", slog.Int("total", total))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove must be called with the lock held.
func (h *Hub) remove(sub *Subscriber) {
	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	close(sub.events)
	slog.Info("observer disconnected", slog.Int("total", len(h.subscribers)))
}

// Broadcast delivers event to every live subscriber. Delivery is at most
// once: a subscriber whose buffer is full is dropped after the sweep, and a
// dead consumer never blocks delivery to the rest.
func (h *Hub) Broadcast(event []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dead []*Subscriber
	for _, sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			dead = append(dead, sub)
		}
	}

	for _, sub := range dead {
		slog.Warn("dropping unresponsive observer")
		h.remove(sub)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Relay forwards every payload from the message-bus stream to the
// subscribers for the lifetime of ctx.
func (h *Hub) Relay(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-messages:
			if !ok {
				return
			}
			h.Broadcast(payload)
		}
	}
}
