package events

// CallbackEvent fans a value out to registered callbacks.
// Callbacks run synchronously on the notifying goroutine, outside any lock.
type CallbackEvent[T any] struct {
	hub hub[T, func(T)]
}

// NewCallbackEvent creates a CallbackEvent. With sendLastEventOnListen set, a
// new listener is called immediately with the most recent value, if any.
func NewCallbackEvent[T any](sendLastEventOnListen bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{hub: newHub[T, func(T)](sendLastEventOnListen)}
}

// Listen registers callback and returns its deregistration function.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}
	id, replay := e.hub.add(callback)
	if replay != nil {
		callback(*replay)
	}
	return e.hub.remover(id)
}

// Notify calls every registered callback with value.
func (e *CallbackEvent[T]) Notify(value T) {
	for _, callback := range e.hub.record(value) {
		callback(value)
	}
}

// Latest returns the last notified value when replay is enabled.
func (e *CallbackEvent[T]) Latest() (T, bool) {
	return e.hub.latest()
}

// ListenerCount returns the current number of registered listeners
func (e *CallbackEvent[T]) ListenerCount() int {
	return e.hub.count()
}
