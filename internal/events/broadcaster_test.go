package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
)

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b := NewBroadcaster(2)
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(domain.TransitionEvent{EntityID: "e1"})

	assert.Equal(t, "e1", (<-a).EntityID)
	assert.Equal(t, "e1", (<-c).EntityID)

	b.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
	b.Unsubscribe(a)
}

func TestBroadcaster_DropsForSlowReader(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()

	b.Publish(domain.TransitionEvent{EntityID: "first"})
	b.Publish(domain.TransitionEvent{EntityID: "second"})

	require.Len(t, ch, 1)
	assert.Equal(t, "first", (<-ch).EntityID)
}
