package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// eventSink is the delivery channel behind a subscription. Unsubscribe does
// not wait for in-flight message callbacks, so sends and the close race; the
// closed flag keeps a late callback from sending on a closed channel.
type eventSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan Event, subscriberBuffer)}
}

func (s *eventSink) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default: // drop if subscriber is behind
	}
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// NATSBus publishes JSON events over core NATS. Core NATS gives at-most-once
// per connected subscriber; combined with consumer reconnects the effective
// contract for this core stays best-effort, which is all the pipeline asks
// for.
type NATSBus struct {
	nc *nats.Conn
}

func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

func (b *NATSBus) Publish(ctx context.Context, subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.Type, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject string) (<-chan Event, func(), error) {
	sink := newEventSink()
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return // malformed events are dropped
		}
		sink.send(ev)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	cancel := func() {
		_ = sub.Unsubscribe()
		sink.close()
	}
	return sink.ch, cancel, nil
}

func (b *NATSBus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}
