package feed

import (
	"context"
	"sync"
)

// Broker fans change events out to channel subscribers.
type Broker interface {
	Publish(ctx context.Context, channel string, event Event) error
	// Subscribe returns a receive channel and a cancel func that releases it.
	Subscribe(ctx context.Context, channel string) (<-chan Event, func())
}

// MemoryBroker is an in-process Broker used when Redis is not configured,
// and in tests.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]chan Event)}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub <- event:
		default:
			// slow subscriber, drop rather than block the writer
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan Event, func()) {
	events := make(chan Event, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], events)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, sub := range subs {
			if sub == events {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(events)
				return
			}
		}
	}
	return events, cancel
}
