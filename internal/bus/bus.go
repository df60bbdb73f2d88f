// Package bus is the broker-internal publish/subscribe mechanism. Apps
// observe state changes and protocol events through it without coupling
// to each other.
package bus

import (
	"sync"
)

// Handler receives every payload dispatched on the topic it subscribed to.
type Handler func(payload interface{})

type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

func New() *Bus {
	return &Bus{
		subs: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for topic. Handlers cannot be removed; the
// bus lives as long as the broker does.
func (b *Bus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], handler)
	b.mu.Unlock()
}

// Dispatch delivers payload to every subscriber of topic, synchronously and
// in subscription order.
func (b *Bus) Dispatch(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		handler(payload)
	}
}
