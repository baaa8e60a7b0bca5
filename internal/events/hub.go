package events

import (
	"sync"
)

// hub is the listener registry shared by CallbackEvent and ChannelEvent.
// T is the notified value, L is the listener representation.
type hub[T any, L any] struct {
	mu                    sync.RWMutex
	listeners             map[uint64]L
	nextID                uint64
	sendLastEventOnListen bool
	lastEvent             *T
}

func newHub[T any, L any](sendLastEventOnListen bool) hub[T, L] {
	return hub[T, L]{
		listeners:             make(map[uint64]L),
		sendLastEventOnListen: sendLastEventOnListen,
	}
}

// add registers a listener and returns its id plus a copy of the last event
// when it should be replayed to the new listener.
func (h *hub[T, L]) add(listener L) (uint64, *T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = listener
	if !h.sendLastEventOnListen || h.lastEvent == nil {
		return id, nil
	}
	replay := *h.lastEvent
	return id, &replay
}

func (h *hub[T, L]) remover(id uint64) func() {
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// record stores value as the last event (when enabled) and returns a snapshot
// of the listeners so delivery can happen outside the lock.
func (h *hub[T, L]) record(value T) []L {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendLastEventOnListen {
		v := value
		h.lastEvent = &v
	}
	result := make([]L, 0, len(h.listeners))
	for _, l := range h.listeners {
		result = append(result, l)
	}
	return result
}

func (h *hub[T, L]) latest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var zero T
	if h.lastEvent == nil {
		return zero, false
	}
	return *h.lastEvent, true
}

func (h *hub[T, L]) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
