package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_FanOutAndDrop(t *testing.T) {
	bus := NewEventBus(nil)
	a, cancelA := bus.Subscribe(1)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.NotesChanged()
	bus.Publish(ConnectivityChangedEvent{Connected: true})

	// a 的缓冲区只有 1，第二个事件被丢弃
	assert.Len(t, a, 1)
	assert.Len(t, b, 2)
	assert.Equal(t, "notes-changed", (<-b).EventName())
	assert.Equal(t, ConnectivityChangedEvent{Connected: true}, <-b)

	cancelA()
	cancelA()
	_, open := <-a
	assert.True(t, open, "buffered event still readable after cancel")
	_, open = <-a
	assert.False(t, open)

	bus.NotesChanged()
	assert.Len(t, b, 1)
}
