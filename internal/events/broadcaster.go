// Package events fans transition events out to in-process subscribers.
package events

import (
	"sync"

	"github.com/vadiminshakov/remit/internal/domain"
)

const defaultBuffer = 64

// Broadcaster delivers every published event to all subscribers via buffered channels.
// A subscriber that falls behind misses events rather than blocking the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.TransitionEvent]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[chan domain.TransitionEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping it for slow readers.
func (b *Broadcaster) Publish(e domain.TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *Broadcaster) Subscribe() chan domain.TransitionEvent {
	ch := make(chan domain.TransitionEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan domain.TransitionEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
