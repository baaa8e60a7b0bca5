package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallbackEvent(t *testing.T) {
	event := NewCallbackEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.False(t, event.hub.sendLastEventOnListen)

	replaying := NewCallbackEvent[int](true)
	assert.True(t, replaying.hub.sendLastEventOnListen)
}

func TestCallbackEvent_ListenNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var received []string
	unregister := event.Listen(func(v string) { received = append(received, v) })
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("a")
	event.Notify("b")
	assert.Equal(t, []string{"a", "b"}, received)

	unregister()
	event.Notify("c")
	assert.Equal(t, []string{"a", "b"}, received)
	assert.Equal(t, 0, event.ListenerCount())
}

func TestCallbackEvent_ReplaysLastEvent(t *testing.T) {
	event := NewCallbackEvent[int](true)

	_, ok := event.Latest()
	assert.False(t, ok)

	var early []int
	event.Listen(func(v int) { early = append(early, v) })
	assert.Empty(t, early)

	event.Notify(7)
	var late []int
	event.Listen(func(v int) { late = append(late, v) })
	assert.Equal(t, []int{7}, late)

	latest, ok := event.Latest()
	require.True(t, ok)
	assert.Equal(t, 7, latest)
}

func TestCallbackEvent_NoReplayWhenDisabled(t *testing.T) {
	event := NewCallbackEvent[int](false)
	event.Notify(1)

	var received []int
	event.Listen(func(v int) { received = append(received, v) })
	assert.Empty(t, received)
}

func TestCallbackEvent_UnregisterDuringNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var received []string
	var unregister func()
	unregister = event.Listen(func(v string) {
		received = append(received, v)
		if v == "stop" {
			unregister()
		}
	})

	event.Notify("one")
	event.Notify("stop")
	event.Notify("two")
	assert.Equal(t, []string{"one", "stop"}, received)

	// repeated unregister is harmless
	unregister()
	assert.Equal(t, 0, event.ListenerCount())
}

func TestCallbackEvent_ConcurrentNotify(t *testing.T) {
	event := NewCallbackEvent[int](false)

	var mu sync.Mutex
	total := 0
	for i := 0; i < 10; i++ {
		event.Listen(func(v int) {
			mu.Lock()
			total++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			event.Notify(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, total)
}

func TestCallbackEvent_NilCallbackPanics(t *testing.T) {
	event := NewCallbackEvent[string](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
