package eventbus

import (
	"encoding/json"
	"sort"
	"sync"
)

// Handler consumes the raw JSON payload of a pushed event.
type Handler func(payload json.RawMessage)

// Bus fans pushed events out to handlers registered per topic.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]map[uint64]Handler)}
}

// On registers h for topic. The returned function removes exactly this
// registration and may be called any number of times.
func (b *Bus) On(topic string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	byID := b.handlers[topic]
	if byID == nil {
		byID = make(map[uint64]Handler)
		b.handlers[topic] = byID
	}
	byID[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if byID, ok := b.handlers[topic]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(b.handlers, topic)
			}
		}
	}
}

// Emit delivers payload to every handler of topic in registration order.
// Handlers run on the caller's goroutine, outside the bus lock.
func (b *Bus) Emit(topic string, payload json.RawMessage) {
	b.mu.RLock()
	byID := b.handlers[topic]
	ids := make([]uint64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, byID[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

// Count returns the number of handlers registered for topic.
func (b *Bus) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
