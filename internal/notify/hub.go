// Package notify carries NotificationEvents from the server to the parts of
// the client that wait for them.
package notify

import (
	"sync"

	"github.com/tariel-x/callsupport/internal/models"
)

const defaultBuffer = 8

// Source hands out subscriptions to a stream of notification events.
type Source interface {
	Subscribe(buffer int) *Subscription
}

// Subscription is a scoped handle on a Source. Close releases it; once Close
// returns no further event is delivered on Events.
type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan models.NotificationEvent
	once sync.Once
}

func (s *Subscription) Events() <-chan models.NotificationEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.hub != nil {
			s.hub.remove(s.id)
			return
		}
		close(s.ch)
	})
}

// Hub is an in-process event stream. Delivery is best effort: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub := &Subscription{ch: make(chan models.NotificationEvent)}
		sub.Close()
		return sub
	}

	h.nextID++
	sub := &Subscription{
		hub: h,
		id:  h.nextID,
		ch:  make(chan models.NotificationEvent, buffer),
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every subscriber that has room and returns how many
// received it.
func (h *Hub) Publish(ev models.NotificationEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close releases every subscription. Later subscriptions are born closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}
