package events

// ChannelEvent fans a value out to registered channels.
// Sends never block: a full channel misses that value.
type ChannelEvent[T any] struct {
	hub hub[T, chan<- T]
}

// NewChannelEvent creates a ChannelEvent. With sendLastEventOnListen set, the
// most recent value is pushed into a newly registered channel.
func NewChannelEvent[T any](sendLastEventOnListen bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{hub: newHub[T, chan<- T](sendLastEventOnListen)}
}

// Listen registers ch and returns its deregistration function.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	id, replay := e.hub.add(ch)
	if replay != nil {
		trySend(ch, *replay)
	}
	return e.hub.remover(id)
}

// Notify sends value to every registered channel that has room.
func (e *ChannelEvent[T]) Notify(value T) {
	for _, ch := range e.hub.record(value) {
		trySend(ch, value)
	}
}

// Latest returns the last notified value when replay is enabled.
func (e *ChannelEvent[T]) Latest() (T, bool) {
	return e.hub.latest()
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	return e.hub.count()
}

func trySend[T any](ch chan<- T, value T) {
	select {
	case ch <- value:
	default:
	}
}
