package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// MemoryBus is an in-process Bus: per-subject channel fanout with non-blocking
// sends. Used by tests and single-node runs without NATS.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string][]chan Event{}}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[subject] {
		select {
		case ch <- ev:
		default: // drop if subscriber is behind
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[subject]
		for i, sub := range chans {
			if sub == ch {
				b.subs[subject] = append(chans[:i], chans[i+1:]...)
				close(sub)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (b *MemoryBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close drops all subscribers and closes their channels.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = map[string][]chan Event{}
	b.closed = true
}
