// Package memtransport is an in-memory, channel-based Transport used by
// tests. Each subscriber has a bounded channel; Send reports false (the
// flowcontrol-visible "sink full" signal) when any addressed subscriber's
// channel is at capacity, without blocking.
package memtransport

import (
	"sync"

	"github.com/AlexxNica/RocketSpeed/internal/model"
)

// Transport is an in-memory Transport implementation.
type Transport struct {
	mu       sync.Mutex
	streams  map[model.SubscriberID]chan model.Message
	capacity int
}

// New returns a Transport whose per-subscriber channels hold capacity
// messages before Send starts refusing.
func New(capacity int) *Transport {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Transport{streams: make(map[model.SubscriberID]chan model.Message), capacity: capacity}
}

// Register creates (or replaces) the delivery channel for sub, returning
// it for the test to drain.
func (t *Transport) Register(sub model.SubscriberID) <-chan model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan model.Message, t.capacity)
	t.streams[sub] = ch
	return ch
}

// Unregister removes sub's channel.
func (t *Transport) Unregister(sub model.SubscriberID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, sub)
}

// Send attempts a non-blocking enqueue onto every addressed subscriber's
// channel. Returns true only if every send succeeded.
func (t *Transport) Send(subs []model.SubscriberID, msg model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ok := true
	for _, sub := range subs {
		ch, exists := t.streams[sub]
		if !exists {
			continue
		}
		select {
		case ch <- msg:
		default:
			ok = false
		}
	}
	return ok
}
