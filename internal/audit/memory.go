package audit

import (
	"context"
	"sync"
)

// InMemoryPublisher collects events for assertions in tests; also the sink
// when Kafka is not configured.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemory() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *InMemoryPublisher) Close() {}
