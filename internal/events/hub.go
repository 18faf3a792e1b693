package events

import (
	"context"
	"sync"
)

// Hub fans events out to in-process subscribers. A subscriber that does
// not keep up loses events rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	ch     chan StockEvent
	filter func(StockEvent) bool
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]*subscription{}}
}

// Subscribe returns a channel of events matching filter (nil = all) and a
// cancel func that must be called to release it.
func (h *Hub) Subscribe(buffer int, filter func(StockEvent) bool) (<-chan StockEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StockEvent, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = &subscription{ch: ch, filter: filter}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

func (h *Hub) Publish(_ context.Context, evts ...StockEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range evts {
		for _, s := range h.subs {
			if s.filter != nil && !s.filter(e) {
				continue
			}
			select {
			case s.ch <- e:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	return nil
}
